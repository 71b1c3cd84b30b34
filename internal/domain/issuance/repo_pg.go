package issuance

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type jobRepoPG struct{ pool *pgxpool.Pool }

func NewJobRepoPG(pool *pgxpool.Pool) JobRepository {
	return &jobRepoPG{pool: pool}
}

const jobCols = `id, patient_id, status, token_class_id, total_assets, minted_count,
	transferred_count, error_stage, error_item, error_detail, started_at, finished_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.PatientID, &j.Status, &j.TokenClassID, &j.TotalAssets, &j.MintedCount,
		&j.TransferredCount, &j.ErrorStage, &j.ErrorItem, &j.ErrorDetail, &j.StartedAt, &j.FinishedAt)
	return &j, err
}

func (r *jobRepoPG) UpsertInProgress(ctx context.Context, patientID uuid.UUID) (*Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `
		INSERT INTO issuance_job (id, patient_id, status)
		VALUES ($1, $2, 'in-progress')
		ON CONFLICT (patient_id) DO UPDATE
		SET status = 'in-progress',
		    token_class_id = NULL,
		    total_assets = 0,
		    minted_count = 0,
		    transferred_count = 0,
		    error_stage = NULL,
		    error_item = NULL,
		    error_detail = NULL,
		    started_at = NOW(),
		    finished_at = NULL
		RETURNING `+jobCols,
		uuid.New(), patientID))
}

func (r *jobRepoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*Job, error) {
	j, err := scanJob(r.pool.QueryRow(ctx,
		`SELECT `+jobCols+` FROM issuance_job WHERE patient_id = $1`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *jobRepoPG) SetTotal(ctx context.Context, patientID uuid.UUID, total int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE issuance_job SET total_assets = $2 WHERE patient_id = $1`, patientID, total)
	return err
}

func (r *jobRepoPG) SetTokenClass(ctx context.Context, patientID uuid.UUID, tokenClassID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE issuance_job SET token_class_id = $2 WHERE patient_id = $1`, patientID, tokenClassID)
	return err
}

func (r *jobRepoPG) IncrementMinted(ctx context.Context, patientID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE issuance_job SET minted_count = minted_count + 1 WHERE patient_id = $1`, patientID)
	return err
}

func (r *jobRepoPG) IncrementTransferred(ctx context.Context, patientID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE issuance_job SET transferred_count = transferred_count + 1 WHERE patient_id = $1`, patientID)
	return err
}

func (r *jobRepoPG) MarkCompleted(ctx context.Context, patientID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE issuance_job SET status = 'completed', finished_at = NOW() WHERE patient_id = $1`,
		patientID)
	return err
}

func (r *jobRepoPG) MarkFailed(ctx context.Context, patientID uuid.UUID, stage string, item *int, detail string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE issuance_job
		SET status = 'failed', error_stage = $2, error_item = $3, error_detail = $4, finished_at = NOW()
		WHERE patient_id = $1`,
		patientID, stage, item, detail)
	return err
}
