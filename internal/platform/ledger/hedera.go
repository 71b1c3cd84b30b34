package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashgraph/hedera-sdk-go/v2"
)

// classKeys holds the per-class key set generated at creation time. The
// supply key is needed again for every mint; the rest are kept so the keys
// survive for the lifetime of the issuance run.
type classKeys struct {
	admin  hedera.PrivateKey
	supply hedera.PrivateKey
	freeze hedera.PrivateKey
	wipe   hedera.PrivateKey
}

// HederaClient implements Client against a Hedera network using the official
// SDK. The operator account configured on the underlying client pays for
// every transaction.
type HederaClient struct {
	client *hedera.Client

	mu   sync.Mutex
	keys map[string]classKeys
}

// NewHederaClient connects to the named network ("mainnet", "previewnet" or
// "testnet") and sets the operator used to pay transaction fees.
func NewHederaClient(network, operatorID, operatorKey string) (*HederaClient, error) {
	var client *hedera.Client
	switch network {
	case "mainnet":
		client = hedera.ClientForMainnet()
	case "previewnet":
		client = hedera.ClientForPreviewnet()
	default:
		client = hedera.ClientForTestnet()
	}

	opID, err := hedera.AccountIDFromString(operatorID)
	if err != nil {
		return nil, fmt.Errorf("parse operator account id: %w", err)
	}
	opKey, err := hedera.PrivateKeyFromString(operatorKey)
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}
	client.SetOperator(opID, opKey)

	return &HederaClient{
		client: client,
		keys:   make(map[string]classKeys),
	}, nil
}

// Close releases the underlying network client.
func (h *HederaClient) Close() error {
	return h.client.Close()
}

func (h *HederaClient) CreateAccount(ctx context.Context) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	key, err := hedera.PrivateKeyGenerateEd25519()
	if err != nil {
		return Account{}, fmt.Errorf("generate account key: %w", err)
	}

	resp, err := hedera.NewAccountCreateTransaction().
		SetKey(key.PublicKey()).
		SetInitialBalance(hedera.NewHbar(0)).
		Execute(h.client)
	if err != nil {
		return Account{}, fmt.Errorf("submit account create: %w", err)
	}
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return Account{}, fmt.Errorf("account create receipt: %w", err)
	}
	if receipt.AccountID == nil {
		return Account{}, fmt.Errorf("account create receipt carried no account id")
	}

	return Account{
		AccountID:  receipt.AccountID.String(),
		PrivateKey: key.String(),
	}, nil
}

func (h *HederaClient) CreateTokenClass(ctx context.Context, spec TokenClassSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	treasuryID, treasuryKey, err := parseAccount(spec.Treasury)
	if err != nil {
		return "", err
	}

	keys, err := generateClassKeys()
	if err != nil {
		return "", err
	}

	fee := hedera.NewCustomRoyaltyFee().
		SetNumerator(spec.Royalty.Numerator).
		SetDenominator(spec.Royalty.Denominator).
		SetFeeCollectorAccountID(treasuryID).
		SetFallbackFee(hedera.NewCustomFixedFee().SetHbarAmount(hedera.NewHbar(float64(spec.Royalty.FallbackFee))))

	tx, err := hedera.NewTokenCreateTransaction().
		SetTokenName(spec.Name).
		SetTokenSymbol(spec.Symbol).
		SetTokenType(hedera.TokenTypeNonFungibleUnique).
		SetDecimals(0).
		SetInitialSupply(0).
		SetTreasuryAccountID(treasuryID).
		SetSupplyType(hedera.TokenSupplyTypeFinite).
		SetMaxSupply(spec.MaxSupply).
		SetCustomFees([]hedera.Fee{fee}).
		SetAdminKey(keys.admin.PublicKey()).
		SetSupplyKey(keys.supply.PublicKey()).
		SetFreezeKey(keys.freeze.PublicKey()).
		SetWipeKey(keys.wipe.PublicKey()).
		FreezeWith(h.client)
	if err != nil {
		return "", fmt.Errorf("freeze token create: %w", err)
	}

	// Creation must carry both the treasury and the admin signature.
	resp, err := tx.Sign(treasuryKey).Sign(keys.admin).Execute(h.client)
	if err != nil {
		return "", fmt.Errorf("submit token create: %w", err)
	}
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return "", fmt.Errorf("token create receipt: %w", err)
	}
	if receipt.TokenID == nil {
		return "", fmt.Errorf("token create receipt carried no token id")
	}

	classID := receipt.TokenID.String()
	h.mu.Lock()
	h.keys[classID] = keys
	h.mu.Unlock()

	return classID, nil
}

func (h *HederaClient) MintSerial(ctx context.Context, tokenClassID string, metadata []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tokenID, err := hedera.TokenIDFromString(tokenClassID)
	if err != nil {
		return 0, fmt.Errorf("parse token id: %w", err)
	}

	h.mu.Lock()
	keys, ok := h.keys[tokenClassID]
	h.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: no supply key held for %s", ErrTokenClassNotFound, tokenClassID)
	}

	tx, err := hedera.NewTokenMintTransaction().
		SetTokenID(tokenID).
		SetMetadata(metadata).
		FreezeWith(h.client)
	if err != nil {
		return 0, fmt.Errorf("freeze mint: %w", err)
	}

	resp, err := tx.Sign(keys.supply).Execute(h.client)
	if err != nil {
		return 0, fmt.Errorf("submit mint: %w", err)
	}
	receipt, err := resp.GetReceipt(h.client)
	if err != nil {
		return 0, fmt.Errorf("mint receipt: %w", err)
	}
	if len(receipt.SerialNumbers) == 0 {
		return 0, fmt.Errorf("mint receipt carried no serial numbers")
	}
	return receipt.SerialNumbers[0], nil
}

func (h *HederaClient) Associate(ctx context.Context, tokenClassID string, account Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tokenID, err := hedera.TokenIDFromString(tokenClassID)
	if err != nil {
		return fmt.Errorf("parse token id: %w", err)
	}
	accountID, accountKey, err := parseAccount(account)
	if err != nil {
		return err
	}

	tx, err := hedera.NewTokenAssociateTransaction().
		SetAccountID(accountID).
		SetTokenIDs(tokenID).
		FreezeWith(h.client)
	if err != nil {
		return fmt.Errorf("freeze associate: %w", err)
	}

	resp, err := tx.Sign(accountKey).Execute(h.client)
	if err != nil {
		return fmt.Errorf("submit associate: %w", err)
	}
	if _, err := resp.GetReceipt(h.client); err != nil {
		return fmt.Errorf("associate receipt: %w", err)
	}
	return nil
}

func (h *HederaClient) TransferSerial(ctx context.Context, tokenClassID string, serial int64, treasury Account, recipientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tokenID, err := hedera.TokenIDFromString(tokenClassID)
	if err != nil {
		return fmt.Errorf("parse token id: %w", err)
	}
	treasuryID, treasuryKey, err := parseAccount(treasury)
	if err != nil {
		return err
	}
	recipient, err := hedera.AccountIDFromString(recipientID)
	if err != nil {
		return fmt.Errorf("parse recipient account id: %w", err)
	}

	nftID := hedera.NftID{TokenID: tokenID, SerialNumber: serial}
	tx, err := hedera.NewTransferTransaction().
		AddNftTransfer(nftID, treasuryID, recipient).
		FreezeWith(h.client)
	if err != nil {
		return fmt.Errorf("freeze transfer: %w", err)
	}

	resp, err := tx.Sign(treasuryKey).Execute(h.client)
	if err != nil {
		return fmt.Errorf("submit transfer: %w", err)
	}
	if _, err := resp.GetReceipt(h.client); err != nil {
		return fmt.Errorf("transfer receipt: %w", err)
	}
	return nil
}

func (h *HederaClient) Balance(ctx context.Context, accountID, tokenClassID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	acc, err := hedera.AccountIDFromString(accountID)
	if err != nil {
		return 0, fmt.Errorf("parse account id: %w", err)
	}
	tokenID, err := hedera.TokenIDFromString(tokenClassID)
	if err != nil {
		return 0, fmt.Errorf("parse token id: %w", err)
	}

	balance, err := hedera.NewAccountBalanceQuery().
		SetAccountID(acc).
		Execute(h.client)
	if err != nil {
		return 0, fmt.Errorf("balance query: %w", err)
	}
	return balance.Tokens.Get(tokenID), nil
}

func parseAccount(a Account) (hedera.AccountID, hedera.PrivateKey, error) {
	id, err := hedera.AccountIDFromString(a.AccountID)
	if err != nil {
		return hedera.AccountID{}, hedera.PrivateKey{}, fmt.Errorf("parse account id %q: %w", a.AccountID, err)
	}
	key, err := hedera.PrivateKeyFromString(a.PrivateKey)
	if err != nil {
		return hedera.AccountID{}, hedera.PrivateKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return id, key, nil
}

func generateClassKeys() (classKeys, error) {
	var keys classKeys
	var err error
	if keys.admin, err = hedera.PrivateKeyGenerateEd25519(); err != nil {
		return keys, fmt.Errorf("generate admin key: %w", err)
	}
	if keys.supply, err = hedera.PrivateKeyGenerateEd25519(); err != nil {
		return keys, fmt.Errorf("generate supply key: %w", err)
	}
	if keys.freeze, err = hedera.PrivateKeyGenerateEd25519(); err != nil {
		return keys, fmt.Errorf("generate freeze key: %w", err)
	}
	if keys.wipe, err = hedera.PrivateKeyGenerateEd25519(); err != nil {
		return keys, fmt.Errorf("generate wipe key: %w", err)
	}
	return keys, nil
}
