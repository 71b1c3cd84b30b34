package settings

import (
	"time"

	"github.com/google/uuid"
)

// PatientSettings maps to the patient_settings table. One row per patient,
// provisioned with defaults when the patient is created.
type PatientSettings struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	PatientID             uuid.UUID `db:"patient_id" json:"patient_id"`
	SelectedQuestionnaire string    `db:"selected_questionnaire" json:"selected_questionnaire"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// QuestionnaireSettings maps to the questionnaire_settings table. A single
// admin-managed row controlling which questionnaires the intake flow offers.
type QuestionnaireSettings struct {
	ID                uuid.UUID `db:"id" json:"id"`
	PersonalInfo      string    `db:"personal_info" json:"personal_info"`
	QuestionnaireList []string  `db:"questionnaire_list" json:"questionnaire_list"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultQuestionnaire is assigned to new patients until an admin changes it.
const DefaultQuestionnaire = "personal-information"
