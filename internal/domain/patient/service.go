package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/HadleyLab/ucfwealth-server/internal/platform/events"
)

type Service struct {
	repo       PatientRepository
	dispatcher *events.Dispatcher
}

func NewService(repo PatientRepository, dispatcher *events.Dispatcher) *Service {
	return &Service{repo: repo, dispatcher: dispatcher}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("patient name is required")
	}
	p.Active = true
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	p.VersionID = 1
	if s.dispatcher != nil {
		s.dispatcher.Publish(ctx, events.Event{
			Resource: "patient",
			Action:   events.ActionCreate,
			Payload:  p.ID,
		})
	}
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetPatientByFHIRID(ctx context.Context, fhirID string) (*Patient, error) {
	return s.repo.GetByFHIRID(ctx, fhirID)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("patient name is required")
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}
