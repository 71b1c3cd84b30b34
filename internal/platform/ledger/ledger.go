// Package ledger abstracts the distributed-ledger operations the issuance
// workflow depends on: account provisioning, capped-supply token-class
// creation, per-serial minting, association and custody transfer. It defines
// the Client interface, a Hedera-backed implementation, and an in-memory
// implementation suitable for testing and development.
package ledger

import (
	"context"
	"errors"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrTokenClassNotFound = errors.New("token class not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrNotAssociated      = errors.New("account is not associated with token class")
	ErrMaxSupplyReached   = errors.New("token class max supply reached")
	ErrSerialNotOwned     = errors.New("serial is not owned by the sending account")
	ErrInvalidKey         = errors.New("invalid account key")
)

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Account is a ledger account in string-encoded form, the way it is persisted
// on a LedgerAccount resource.
type Account struct {
	AccountID  string
	PrivateKey string
}

// RoyaltySchedule is the custom fee attached to every token class this
// service creates. The fraction is collected on downstream exchanges; the
// fallback fee applies when an exchange carries no fungible value.
type RoyaltySchedule struct {
	Numerator   int64
	Denominator int64
	FallbackFee int64
}

// TokenClassSpec describes a capped-supply NFT collection to create.
// MaxSupply must equal the number of assets that will be minted into it.
type TokenClassSpec struct {
	Name      string
	Symbol    string
	MaxSupply int64
	Treasury  Account
	Royalty   RoyaltySchedule
}

// Client is the set of ledger operations the issuance workflow uses. Each
// call submits one transaction (or query) and waits for its receipt; a
// returned error means the operation did not take effect, except where the
// underlying network makes that indeterminate (receipt timeout).
type Client interface {
	// CreateAccount provisions a fresh account with a zero starting balance
	// and returns its identifier and string-encoded private key.
	CreateAccount(ctx context.Context) (Account, error)

	// CreateTokenClass creates a finite-supply NFT class owned by the
	// treasury and returns its identifier. Admin, supply, freeze and wipe
	// keys are generated per class, distinct from the treasury key; the
	// creation transaction is signed by both the treasury and the admin key.
	CreateTokenClass(ctx context.Context, spec TokenClassSpec) (string, error)

	// MintSerial mints the next serial of the class carrying the given
	// metadata bytes (a content identifier), signed by the class supply key.
	// Serials are assigned by submission order, starting at 1.
	MintSerial(ctx context.Context, tokenClassID string, metadata []byte) (int64, error)

	// Associate opts the account into holding units of the class, signed by
	// the account's own key. Required before any transfer to that account.
	Associate(ctx context.Context, tokenClassID string, account Account) error

	// TransferSerial moves one serial from the treasury to the recipient,
	// signed by the treasury key.
	TransferSerial(ctx context.Context, tokenClassID string, serial int64, treasury Account, recipientID string) error

	// Balance returns how many units of the class the account holds.
	Balance(ctx context.Context, accountID, tokenClassID string) (uint64, error)
}
