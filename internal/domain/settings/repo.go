package settings

import (
	"context"

	"github.com/google/uuid"
)

type SettingsRepository interface {
	UpsertPatientSettings(ctx context.Context, s *PatientSettings) error
	GetPatientSettings(ctx context.Context, patientID uuid.UUID) (*PatientSettings, error)
	UpsertQuestionnaireSettings(ctx context.Context, s *QuestionnaireSettings) error
	GetQuestionnaireSettings(ctx context.Context) (*QuestionnaireSettings, error)
}
