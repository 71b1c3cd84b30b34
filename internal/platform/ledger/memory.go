package ledger

import (
	"context"
	"fmt"
	"sync"
)

type memoryToken struct {
	spec     TokenClassSpec
	serials  [][]byte          // metadata per serial, index 0 => serial 1
	owners   map[int64]string  // serial -> account id
	members  map[string]bool   // associated account ids
}

// InMemoryLedger is a thread-safe Client that models the ledger rules the
// workflow depends on: finite supply, serials assigned by submission order,
// and the association gate before custody transfer. Used in tests and in
// development when no ledger credentials are configured.
type InMemoryLedger struct {
	mu       sync.Mutex
	seq      int
	accounts map[string]string // account id -> private key
	tokens   map[string]*memoryToken
}

// NewInMemoryLedger returns an empty in-memory ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		accounts: make(map[string]string),
		tokens:   make(map[string]*memoryToken),
	}
}

func (l *InMemoryLedger) CreateAccount(_ context.Context) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	acc := Account{
		AccountID:  fmt.Sprintf("0.0.%d", 1000+l.seq),
		PrivateKey: fmt.Sprintf("302e0201-mem-%d", l.seq),
	}
	l.accounts[acc.AccountID] = acc.PrivateKey
	return acc, nil
}

// RegisterAccount makes an externally-created account known to the ledger,
// so a treasury configured out of band can hold and send serials.
func (l *InMemoryLedger) RegisterAccount(a Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[a.AccountID] = a.PrivateKey
}

func (l *InMemoryLedger) CreateTokenClass(_ context.Context, spec TokenClassSpec) (string, error) {
	if spec.MaxSupply <= 0 {
		return "", fmt.Errorf("max supply must be positive, got %d", spec.MaxSupply)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[spec.Treasury.AccountID]; !ok {
		l.accounts[spec.Treasury.AccountID] = spec.Treasury.PrivateKey
	}

	l.seq++
	classID := fmt.Sprintf("0.0.%d", 5000+l.seq)
	l.tokens[classID] = &memoryToken{
		spec:    spec,
		owners:  make(map[int64]string),
		members: map[string]bool{spec.Treasury.AccountID: true},
	}
	return classID, nil
}

func (l *InMemoryLedger) MintSerial(_ context.Context, tokenClassID string, metadata []byte) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tok, ok := l.tokens[tokenClassID]
	if !ok {
		return 0, ErrTokenClassNotFound
	}
	if int64(len(tok.serials)) >= tok.spec.MaxSupply {
		return 0, ErrMaxSupplyReached
	}

	meta := make([]byte, len(metadata))
	copy(meta, metadata)
	tok.serials = append(tok.serials, meta)

	serial := int64(len(tok.serials))
	tok.owners[serial] = tok.spec.Treasury.AccountID
	return serial, nil
}

func (l *InMemoryLedger) Associate(_ context.Context, tokenClassID string, account Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tok, ok := l.tokens[tokenClassID]
	if !ok {
		return ErrTokenClassNotFound
	}
	key, ok := l.accounts[account.AccountID]
	if !ok {
		return ErrAccountNotFound
	}
	if key != account.PrivateKey {
		return ErrInvalidKey
	}
	tok.members[account.AccountID] = true
	return nil
}

func (l *InMemoryLedger) TransferSerial(_ context.Context, tokenClassID string, serial int64, treasury Account, recipientID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tok, ok := l.tokens[tokenClassID]
	if !ok {
		return ErrTokenClassNotFound
	}
	if !tok.members[recipientID] {
		return ErrNotAssociated
	}
	if tok.owners[serial] != treasury.AccountID {
		return ErrSerialNotOwned
	}
	tok.owners[serial] = recipientID
	return nil
}

func (l *InMemoryLedger) Balance(_ context.Context, accountID, tokenClassID string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tok, ok := l.tokens[tokenClassID]
	if !ok {
		return 0, ErrTokenClassNotFound
	}
	var held uint64
	for _, owner := range tok.owners {
		if owner == accountID {
			held++
		}
	}
	return held, nil
}

// SerialMetadata returns the metadata minted for the given serial.
func (l *InMemoryLedger) SerialMetadata(tokenClassID string, serial int64) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tok, ok := l.tokens[tokenClassID]
	if !ok || serial < 1 || serial > int64(len(tok.serials)) {
		return nil, false
	}
	return tok.serials[serial-1], true
}

// OwnerOf returns the account currently holding the given serial.
func (l *InMemoryLedger) OwnerOf(tokenClassID string, serial int64) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tok, ok := l.tokens[tokenClassID]
	if !ok {
		return "", false
	}
	owner, ok := tok.owners[serial]
	return owner, ok
}

// MintedCount returns how many serials exist in the given class.
func (l *InMemoryLedger) MintedCount(tokenClassID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	tok, ok := l.tokens[tokenClassID]
	if !ok {
		return 0
	}
	return len(tok.serials)
}
