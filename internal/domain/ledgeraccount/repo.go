package ledgeraccount

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a patient has no ledger account yet.
var ErrNotFound = errors.New("ledger account not found")

type AccountRepository interface {
	Create(ctx context.Context, a *LedgerAccount) error
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*LedgerAccount, error)
}
