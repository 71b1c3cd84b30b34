package settings

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type settingsRepoPG struct{ pool *pgxpool.Pool }

func NewSettingsRepoPG(pool *pgxpool.Pool) SettingsRepository {
	return &settingsRepoPG{pool: pool}
}

const patientSettingsCols = `id, patient_id, selected_questionnaire, created_at, updated_at`

func scanPatientSettings(row pgx.Row) (*PatientSettings, error) {
	var s PatientSettings
	err := row.Scan(&s.ID, &s.PatientID, &s.SelectedQuestionnaire, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *settingsRepoPG) UpsertPatientSettings(ctx context.Context, s *PatientSettings) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient_settings (id, patient_id, selected_questionnaire)
		VALUES ($1,$2,$3)
		ON CONFLICT (patient_id) DO UPDATE
		SET selected_questionnaire = EXCLUDED.selected_questionnaire, updated_at = NOW()`,
		s.ID, s.PatientID, s.SelectedQuestionnaire)
	return err
}

func (r *settingsRepoPG) GetPatientSettings(ctx context.Context, patientID uuid.UUID) (*PatientSettings, error) {
	return scanPatientSettings(r.pool.QueryRow(ctx,
		`SELECT `+patientSettingsCols+` FROM patient_settings WHERE patient_id = $1`, patientID))
}

const questionnaireSettingsCols = `id, personal_info, questionnaire_list, created_at, updated_at`

func scanQuestionnaireSettings(row pgx.Row) (*QuestionnaireSettings, error) {
	var s QuestionnaireSettings
	err := row.Scan(&s.ID, &s.PersonalInfo, &s.QuestionnaireList, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *settingsRepoPG) UpsertQuestionnaireSettings(ctx context.Context, s *QuestionnaireSettings) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	// Single-row table: collapse every write onto one row.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO questionnaire_settings (id, singleton, personal_info, questionnaire_list)
		VALUES ($1, TRUE, $2, $3)
		ON CONFLICT (singleton) DO UPDATE
		SET personal_info = EXCLUDED.personal_info,
		    questionnaire_list = EXCLUDED.questionnaire_list,
		    updated_at = NOW()`,
		s.ID, s.PersonalInfo, s.QuestionnaireList)
	return err
}

func (r *settingsRepoPG) GetQuestionnaireSettings(ctx context.Context) (*QuestionnaireSettings, error) {
	return scanQuestionnaireSettings(r.pool.QueryRow(ctx,
		`SELECT `+questionnaireSettingsCols+` FROM questionnaire_settings LIMIT 1`))
}
