package patient

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HadleyLab/ucfwealth-server/internal/platform/events"
)

type mockPatientRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	if p.FHIRID == "" {
		p.FHIRID = p.ID.String()
	}
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient %s not found", id)
	}
	return p, nil
}

func (m *mockPatientRepo) GetByFHIRID(_ context.Context, fhirID string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.FHIRID == fhirID {
			return p, nil
		}
	}
	return nil, fmt.Errorf("patient %s not found", fhirID)
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; !ok {
		return fmt.Errorf("patient %s not found", p.ID)
	}
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.patients, id)
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*Patient
	for _, p := range m.patients {
		items = append(items, p)
	}
	total := len(items)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total, nil
}

func newTestService() (*Service, *mockPatientRepo, *events.Dispatcher) {
	repo := newMockPatientRepo()
	dispatcher := events.NewDispatcher(zerolog.Nop())
	return NewService(repo, dispatcher), repo, dispatcher
}

func TestCreatePatient(t *testing.T) {
	svc, repo, _ := newTestService()

	p := &Patient{Name: "Jane Doe"}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected an assigned id")
	}
	if !p.Active {
		t.Error("expected new patient to be active")
	}
	if len(repo.patients) != 1 {
		t.Errorf("expected 1 stored patient, got %d", len(repo.patients))
	}
}

func TestCreatePatient_RequiresName(t *testing.T) {
	svc, _, _ := newTestService()

	if err := svc.CreatePatient(context.Background(), &Patient{Name: "   "}); err == nil {
		t.Error("expected error for blank name")
	}
}

func TestCreatePatient_PublishesEvent(t *testing.T) {
	svc, _, dispatcher := newTestService()

	got := make(chan uuid.UUID, 1)
	dispatcher.Subscribe("patient", events.ActionCreate, func(ctx context.Context, ev events.Event) {
		id, _ := ev.Payload.(uuid.UUID)
		got <- id
	})

	p := &Patient{Name: "Jane Doe"}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dispatcher.Wait()

	if id := <-got; id != p.ID {
		t.Errorf("expected event payload %s, got %s", p.ID, id)
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.GetPatient(context.Background(), uuid.New()); err == nil {
		t.Error("expected error for unknown patient")
	}
}

func TestUpdatePatient_RequiresName(t *testing.T) {
	svc, _, _ := newTestService()

	p := &Patient{Name: "Jane Doe"}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Name = ""
	if err := svc.UpdatePatient(context.Background(), p); err == nil {
		t.Error("expected error for blank name")
	}
}
