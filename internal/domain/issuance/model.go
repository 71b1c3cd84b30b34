// Package issuance implements the asset issuance pipeline: staging a
// patient's imaging files into a content-addressed store, registering a
// finite-supply token class, minting one serial per staged asset, and
// transferring the serials to the patient's ledger account. The pipeline
// runs as a single durable background job per patient.
package issuance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job statuses. A job is created in-progress and always ends completed or
// failed once the worker returns.
const (
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Pipeline stages, recorded on failure so a stuck run can be reconciled.
const (
	StageStaging      = "staging"
	StageRegistration = "registration"
	StageTransfer     = "transfer"
)

// Job maps to the issuance_job table. One row per patient; restarting a job
// resets the row.
type Job struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	Status           string     `db:"status" json:"status"`
	TokenClassID     *string    `db:"token_class_id" json:"token_class_id,omitempty"`
	TotalAssets      int        `db:"total_assets" json:"total_assets"`
	MintedCount      int        `db:"minted_count" json:"minted_count"`
	TransferredCount int        `db:"transferred_count" json:"transferred_count"`
	ErrorStage       *string    `db:"error_stage" json:"error_stage,omitempty"`
	ErrorItem        *int       `db:"error_item" json:"error_item,omitempty"`
	ErrorDetail      *string    `db:"error_detail" json:"error_detail,omitempty"`
	StartedAt        time.Time  `db:"started_at" json:"started_at"`
	FinishedAt       *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// StagedAsset is one source file carried through the pipeline. MetadataCID
// becomes the metadata of the serial minted for it.
type StagedAsset struct {
	FileName    string `json:"file_name"`
	ImageCID    string `json:"image_cid"`
	MetadataCID string `json:"metadata_cid"`
}

// ItemError wraps a pipeline failure with the stage and the 1-based item
// number it occurred on.
type ItemError struct {
	Stage string
	Item  int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s item %d: %v", e.Stage, e.Item, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
