package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/HadleyLab/ucfwealth-server/internal/config"
	"github.com/HadleyLab/ucfwealth-server/internal/domain/files"
	"github.com/HadleyLab/ucfwealth-server/internal/domain/issuance"
	"github.com/HadleyLab/ucfwealth-server/internal/domain/ledgeraccount"
	"github.com/HadleyLab/ucfwealth-server/internal/domain/patient"
	"github.com/HadleyLab/ucfwealth-server/internal/domain/settings"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/auth"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/contentstore"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/db"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/events"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/imaging"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/joblock"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/ledger"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/middleware"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/objectstore"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/webhook"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ucfwealth-server",
		Short: "Medical imaging NFT issuance server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(accountCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Write a forward migration that reverses the change instead.")
			return nil
		},
	})

	return cmd
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage patient ledger accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a ledger account for a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientFlag, _ := cmd.Flags().GetString("patient")
			if patientFlag == "" {
				return fmt.Errorf("--patient is required")
			}
			patientID, err := uuid.Parse(patientFlag)
			if err != nil {
				return fmt.Errorf("invalid patient id: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.HederaConfigured() {
				return fmt.Errorf("HEDERA_ACCOUNT_ID, HEDERA_PRIVATE_KEY, HEDERA_TREASURY_ID and HEDERA_TREASURY_KEY must be configured")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			client, err := ledger.NewHederaClient(cfg.HederaNetwork, cfg.HederaAccountID, cfg.HederaPrivateKey)
			if err != nil {
				return err
			}

			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
			svc := ledgeraccount.NewService(ledgeraccount.NewAccountRepoPG(pool), client, logger)
			acct, err := svc.Provision(ctx, patientID)
			if err != nil {
				return fmt.Errorf("provision ledger account: %w", err)
			}

			fmt.Printf("Ledger account %s provisioned for patient %s\n", acct.AccountID, patientID)
			return nil
		},
	}
	createCmd.Flags().String("patient", "", "Patient UUID")

	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(60 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthSigningKey),
			Issuer:     cfg.AuthIssuer,
		}))
	}

	// External collaborators. Outside development Validate has already
	// required the real backends, so the in-memory fallbacks only ever run
	// in dev.
	var store objectstore.ObjectStore
	if cfg.S3Configured() {
		store, err = objectstore.NewS3ObjectStore(ctx, objectstore.S3Config{
			Bucket:    cfg.AWSBucketName,
			Region:    cfg.AWSBucketRegion,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize object store")
		}
	} else {
		logger.Warn().Msg("AWS bucket not configured, using in-memory object store")
		store = objectstore.NewInMemoryObjectStore()
	}

	var content contentstore.ContentStore
	if cfg.IPFSAPIURL != "" {
		content = contentstore.NewIPFSStore(cfg.IPFSAPIURL)
	} else {
		logger.Warn().Msg("IPFS_API_URL not configured, using in-memory content store")
		content = contentstore.NewInMemoryContentStore()
	}

	treasury := ledger.Account{
		AccountID:  cfg.HederaTreasuryID,
		PrivateKey: cfg.HederaTreasuryKey,
	}
	var ledgerClient ledger.Client
	if cfg.HederaConfigured() {
		ledgerClient, err = ledger.NewHederaClient(cfg.HederaNetwork, cfg.HederaAccountID, cfg.HederaPrivateKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize ledger client")
		}
	} else {
		logger.Warn().Msg("Hedera credentials not configured, using in-memory ledger")
		mem := ledger.NewInMemoryLedger()
		if treasury.AccountID == "" {
			treasury, err = mem.CreateAccount(ctx)
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to create in-memory treasury")
			}
		} else {
			mem.RegisterAccount(treasury)
		}
		ledgerClient = mem
	}

	var lock joblock.Lock
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		lock = joblock.NewRedisLock(redis.NewClient(opts), "ucfwealth")
	} else {
		logger.Warn().Msg("REDIS_URL not configured, using in-process job lock")
		lock = joblock.NewInMemoryLock()
	}

	converter := imaging.NewConverter(cfg.DicomToPngURL)

	// Events and webhooks
	dispatcher := events.NewDispatcher(logger)
	if notifier := webhook.NewNotifier(cfg.WebhookURL, cfg.WebhookSecret, logger); notifier != nil {
		dispatcher.Subscribe("issuance", events.ActionCompleted, func(ctx context.Context, ev events.Event) {
			_ = notifier.Notify(ctx, "issuance.completed", map[string]any{"patient_id": ev.Payload})
		})
		dispatcher.Subscribe("issuance", events.ActionFailed, func(ctx context.Context, ev events.Event) {
			_ = notifier.Notify(ctx, "issuance.failed", map[string]any{"patient_id": ev.Payload})
		})
	}

	// API groups
	api := e.Group("/api")
	fhirGroup := e.Group("/fhir")

	// Domain services
	patientSvc := patient.NewService(patient.NewPatientRepoPG(pool), dispatcher)
	patient.NewHandler(patientSvc).RegisterRoutes(api, fhirGroup)

	settingsSvc := settings.NewService(settings.NewSettingsRepoPG(pool), logger)
	settingsSvc.RegisterSubscriptions(dispatcher)
	settings.NewHandler(settingsSvc).RegisterRoutes(api)

	accountSvc := ledgeraccount.NewService(ledgeraccount.NewAccountRepoPG(pool), ledgerClient, logger)
	ledgeraccount.NewHandler(accountSvc).RegisterRoutes(api)

	royalty := ledger.RoyaltySchedule{
		Numerator:   cfg.RoyaltyNumerator,
		Denominator: cfg.RoyaltyDenominator,
		FallbackFee: cfg.RoyaltyFallbackFee,
	}
	issuanceSvc := issuance.NewService(issuance.ServiceConfig{
		Repo:       issuance.NewJobRepoPG(pool),
		Lock:       lock,
		LockTTL:    cfg.IssuanceLockTTL,
		Stager:     issuance.NewStager(store, converter, content, logger),
		Registrar:  issuance.NewRegistrar(ledgerClient, treasury, royalty, logger),
		Transferor: issuance.NewTransferor(ledgerClient, treasury, logger),
		Accounts:   accountSvc,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	issuance.NewHandler(issuanceSvc).RegisterRoutes(api)

	files.NewHandler(store, converter).RegisterRoutes(api)

	// Background worker for issuance runs
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	issuanceSvc.StartWorker(workerCtx)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	stopWorker()
	dispatcher.Wait()
	logger.Info().Msg("server stopped")
	return nil
}
