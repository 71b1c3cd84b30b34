package issuance

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned when a patient has no issuance job.
var ErrJobNotFound = errors.New("issuance job not found")

// JobRepository persists issuance jobs. All counter updates are individual
// statements so partial progress survives a crashed worker.
type JobRepository interface {
	// UpsertInProgress creates the patient's job row or resets it to a
	// fresh in-progress run.
	UpsertInProgress(ctx context.Context, patientID uuid.UUID) (*Job, error)
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*Job, error)
	SetTotal(ctx context.Context, patientID uuid.UUID, total int) error
	SetTokenClass(ctx context.Context, patientID uuid.UUID, tokenClassID string) error
	IncrementMinted(ctx context.Context, patientID uuid.UUID) error
	IncrementTransferred(ctx context.Context, patientID uuid.UUID) error
	MarkCompleted(ctx context.Context, patientID uuid.UUID) error
	MarkFailed(ctx context.Context, patientID uuid.UUID, stage string, item *int, detail string) error
}
