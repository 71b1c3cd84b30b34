package ledgeraccount

import (
	"time"

	"github.com/google/uuid"

	"github.com/HadleyLab/ucfwealth-server/internal/platform/fhir"
)

// LedgerAccount maps to the ledger_account table. Exactly one per patient;
// the private key never leaves the server.
type LedgerAccount struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	AccountID  string    `db:"account_id" json:"account_id"`
	AccountKey string    `db:"account_key" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ToFHIR renders the account as a Basic resource referencing its patient.
// The private key is deliberately absent.
func (a *LedgerAccount) ToFHIR() map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Basic",
		"id":           a.ID.String(),
		"code": fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: "https://ucfwealth.io/fhir/codes", Code: "ledger-account"}},
			Text:   a.AccountID,
		},
		"subject": fhir.FormatReference("Patient", a.PatientID.String()),
		"created": a.CreatedAt.Format("2006-01-02"),
	}
}
