package settings

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HadleyLab/ucfwealth-server/internal/platform/events"
)

type Service struct {
	repo   SettingsRepository
	logger zerolog.Logger
}

func NewService(repo SettingsRepository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "settings").Logger(),
	}
}

// RegisterSubscriptions provisions default patient settings whenever a
// patient is created.
func (s *Service) RegisterSubscriptions(dispatcher *events.Dispatcher) {
	dispatcher.Subscribe("patient", events.ActionCreate, func(ctx context.Context, ev events.Event) {
		patientID, ok := ev.Payload.(uuid.UUID)
		if !ok {
			return
		}
		if err := s.EnsureDefaults(ctx, patientID); err != nil {
			s.logger.Error().Err(err).
				Str("patient_id", patientID.String()).
				Msg("failed to provision patient settings")
		}
	})
}

// EnsureDefaults creates the patient's settings row with defaults when none
// exists yet. Existing settings are left untouched.
func (s *Service) EnsureDefaults(ctx context.Context, patientID uuid.UUID) error {
	if _, err := s.repo.GetPatientSettings(ctx, patientID); err == nil {
		return nil
	}
	return s.repo.UpsertPatientSettings(ctx, &PatientSettings{
		PatientID:             patientID,
		SelectedQuestionnaire: DefaultQuestionnaire,
	})
}

func (s *Service) GetPatientSettings(ctx context.Context, patientID uuid.UUID) (*PatientSettings, error) {
	return s.repo.GetPatientSettings(ctx, patientID)
}

func (s *Service) UpdatePatientSettings(ctx context.Context, ps *PatientSettings) error {
	return s.repo.UpsertPatientSettings(ctx, ps)
}

func (s *Service) GetQuestionnaireSettings(ctx context.Context) (*QuestionnaireSettings, error) {
	return s.repo.GetQuestionnaireSettings(ctx)
}

func (s *Service) UpdateQuestionnaireSettings(ctx context.Context, qs *QuestionnaireSettings) error {
	return s.repo.UpsertQuestionnaireSettings(ctx, qs)
}
