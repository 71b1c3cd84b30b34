package ledgeraccount

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HadleyLab/ucfwealth-server/internal/platform/ledger"
)

type Service struct {
	repo   AccountRepository
	client ledger.Client
	logger zerolog.Logger
}

func NewService(repo AccountRepository, client ledger.Client, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		client: client,
		logger: logger.With().Str("component", "ledgeraccount").Logger(),
	}
}

// Provision returns the patient's ledger account, creating one on the ledger
// when none exists. Repeated calls return the same account.
func (s *Service) Provision(ctx context.Context, patientID uuid.UUID) (*LedgerAccount, error) {
	existing, err := s.repo.GetByPatient(ctx, patientID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	account, err := s.client.CreateAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger account: %w", err)
	}

	a := &LedgerAccount{
		PatientID:  patientID,
		AccountID:  account.AccountID,
		AccountKey: account.PrivateKey,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to persist ledger account: %w", err)
	}

	s.logger.Info().
		Str("patient_id", patientID.String()).
		Str("account_id", a.AccountID).
		Msg("ledger account provisioned")
	return a, nil
}

// Get returns the patient's ledger account or ErrNotFound.
func (s *Service) Get(ctx context.Context, patientID uuid.UUID) (*LedgerAccount, error) {
	return s.repo.GetByPatient(ctx, patientID)
}

// AccountForPatient exposes the account in the ledger package's shape so the
// issuance worker can sign association transactions with it.
func (s *Service) AccountForPatient(ctx context.Context, patientID uuid.UUID) (ledger.Account, error) {
	a, err := s.repo.GetByPatient(ctx, patientID)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{AccountID: a.AccountID, PrivateKey: a.AccountKey}, nil
}
