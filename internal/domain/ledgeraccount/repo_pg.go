package ledgeraccount

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type accountRepoPG struct{ pool *pgxpool.Pool }

func NewAccountRepoPG(pool *pgxpool.Pool) AccountRepository {
	return &accountRepoPG{pool: pool}
}

const accountCols = `id, patient_id, account_id, account_key, created_at`

func (r *accountRepoPG) Create(ctx context.Context, a *LedgerAccount) error {
	a.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ledger_account (id, patient_id, account_id, account_key)
		VALUES ($1,$2,$3,$4)`,
		a.ID, a.PatientID, a.AccountID, a.AccountKey)
	return err
}

func (r *accountRepoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*LedgerAccount, error) {
	var a LedgerAccount
	err := r.pool.QueryRow(ctx,
		`SELECT `+accountCols+` FROM ledger_account WHERE patient_id = $1`, patientID).
		Scan(&a.ID, &a.PatientID, &a.AccountID, &a.AccountKey, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
