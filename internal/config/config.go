package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`

	// Object storage holding the patients' uploaded DICOM files.
	AWSBucketName   string `mapstructure:"AWS_BUCKET_NAME"`
	AWSBucketRegion string `mapstructure:"AWS_BUCKET_REGION"`
	AWSAccessKey    string `mapstructure:"AWS_ACCESS_KEY"`
	AWSSecretKey    string `mapstructure:"AWS_SECRET_KEY"`

	// DICOM to PNG conversion service.
	DicomToPngURL string `mapstructure:"DCM_TO_PNG_URL"`

	// Content-addressed store (IPFS HTTP API).
	IPFSAPIURL string `mapstructure:"IPFS_API_URL"`

	// Ledger operator (pays for transactions) and treasury (initial
	// owner of minted serials).
	HederaNetwork     string `mapstructure:"HEDERA_NETWORK"`
	HederaAccountID   string `mapstructure:"HEDERA_ACCOUNT_ID"`
	HederaPrivateKey  string `mapstructure:"HEDERA_PRIVATE_KEY"`
	HederaTreasuryID  string `mapstructure:"HEDERA_TREASURY_ID"`
	HederaTreasuryKey string `mapstructure:"HEDERA_TREASURY_KEY"`

	// Royalty schedule applied to every token class. Defaults match the
	// historical 50% fee with a 1-hbar fallback.
	RoyaltyNumerator   int64 `mapstructure:"ROYALTY_NUMERATOR"`
	RoyaltyDenominator int64 `mapstructure:"ROYALTY_DENOMINATOR"`
	RoyaltyFallbackFee int64 `mapstructure:"ROYALTY_FALLBACK_FEE"`

	// Outbound webhook for issuance lifecycle events (optional).
	WebhookURL    string `mapstructure:"WEBHOOK_URL"`
	WebhookSecret string `mapstructure:"WEBHOOK_SECRET"`

	IssuanceLockTTL time.Duration `mapstructure:"ISSUANCE_LOCK_TTL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", []string{"*"})
	v.SetDefault("HEDERA_NETWORK", "testnet")
	v.SetDefault("ROYALTY_NUMERATOR", 5)
	v.SetDefault("ROYALTY_DENOMINATOR", 10)
	v.SetDefault("ROYALTY_FALLBACK_FEE", 1)
	v.SetDefault("ISSUANCE_LOCK_TTL", 30*time.Minute)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "CORS_ORIGINS", "AUTH_SIGNING_KEY", "AUTH_ISSUER",
		"AWS_BUCKET_NAME", "AWS_BUCKET_REGION", "AWS_ACCESS_KEY", "AWS_SECRET_KEY",
		"DCM_TO_PNG_URL", "IPFS_API_URL",
		"HEDERA_NETWORK", "HEDERA_ACCOUNT_ID", "HEDERA_PRIVATE_KEY",
		"HEDERA_TREASURY_ID", "HEDERA_TREASURY_KEY",
		"ROYALTY_NUMERATOR", "ROYALTY_DENOMINATOR", "ROYALTY_FALLBACK_FEE",
		"WEBHOOK_URL", "WEBHOOK_SECRET", "ISSUANCE_LOCK_TTL",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests are not authenticated and in-memory stores may substitute")
		log.Println("WARNING: for unconfigured backends. Do NOT use this configuration in production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// HederaConfigured reports whether both the operator and the treasury
// credentials are present, i.e. whether a real ledger client can be built.
func (c *Config) HederaConfigured() bool {
	return c.HederaAccountID != "" && c.HederaPrivateKey != "" &&
		c.HederaTreasuryID != "" && c.HederaTreasuryKey != ""
}

// S3Configured reports whether the object-storage settings are complete.
func (c *Config) S3Configured() bool {
	return c.AWSBucketName != "" && c.AWSBucketRegion != ""
}

// Validate checks that the configuration is safe to run. Outside development
// every external collaborator the issuance workflow depends on must be
// configured; there is no in-memory fallback in production.
func (c *Config) Validate() error {
	if c.IsDev() {
		return nil
	}
	if c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV is not development")
	}
	if !c.S3Configured() {
		return fmt.Errorf("AWS_BUCKET_NAME and AWS_BUCKET_REGION are required when ENV is not development")
	}
	if c.DicomToPngURL == "" {
		return fmt.Errorf("DCM_TO_PNG_URL is required when ENV is not development")
	}
	if c.IPFSAPIURL == "" {
		return fmt.Errorf("IPFS_API_URL is required when ENV is not development")
	}
	if !c.HederaConfigured() {
		return fmt.Errorf("HEDERA_ACCOUNT_ID, HEDERA_PRIVATE_KEY, HEDERA_TREASURY_ID and HEDERA_TREASURY_KEY are required when ENV is not development")
	}
	if c.RoyaltyDenominator <= 0 || c.RoyaltyNumerator < 0 || c.RoyaltyNumerator > c.RoyaltyDenominator {
		return fmt.Errorf("royalty schedule %d/%d is not a valid fraction", c.RoyaltyNumerator, c.RoyaltyDenominator)
	}
	return nil
}
