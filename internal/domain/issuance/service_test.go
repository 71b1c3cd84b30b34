package issuance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HadleyLab/ucfwealth-server/internal/platform/contentstore"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/events"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/joblock"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/ledger"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/objectstore"
)

// ---------------------------------------------------------------------------
// Mocks and fixtures
// ---------------------------------------------------------------------------

type mockJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

func newMockJobRepo() *mockJobRepo {
	return &mockJobRepo{jobs: make(map[uuid.UUID]*Job)}
}

func (m *mockJobRepo) UpsertInProgress(_ context.Context, patientID uuid.UUID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[patientID]
	if !ok {
		j = &Job{ID: uuid.New(), PatientID: patientID}
		m.jobs[patientID] = j
	}
	j.Status = StatusInProgress
	j.TokenClassID = nil
	j.TotalAssets = 0
	j.MintedCount = 0
	j.TransferredCount = 0
	j.ErrorStage = nil
	j.ErrorItem = nil
	j.ErrorDetail = nil
	j.StartedAt = time.Now()
	j.FinishedAt = nil
	cp := *j
	return &cp, nil
}

func (m *mockJobRepo) GetByPatient(_ context.Context, patientID uuid.UUID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[patientID]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *mockJobRepo) SetTotal(_ context.Context, patientID uuid.UUID, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[patientID].TotalAssets = total
	return nil
}

func (m *mockJobRepo) SetTokenClass(_ context.Context, patientID uuid.UUID, tokenClassID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[patientID].TokenClassID = &tokenClassID
	return nil
}

func (m *mockJobRepo) IncrementMinted(_ context.Context, patientID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[patientID].MintedCount++
	return nil
}

func (m *mockJobRepo) IncrementTransferred(_ context.Context, patientID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[patientID].TransferredCount++
	return nil
}

func (m *mockJobRepo) MarkCompleted(_ context.Context, patientID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.jobs[patientID].Status = StatusCompleted
	m.jobs[patientID].FinishedAt = &now
	return nil
}

func (m *mockJobRepo) MarkFailed(_ context.Context, patientID uuid.UUID, stage string, item *int, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	j := m.jobs[patientID]
	j.Status = StatusFailed
	j.ErrorStage = &stage
	j.ErrorItem = item
	j.ErrorDetail = &detail
	j.FinishedAt = &now
	return nil
}

// fakeConverter derives PNG bytes from the signed URL's path. Query params
// carry the expiry and must not influence the output, or CIDs would change
// between otherwise identical runs.
type fakeConverter struct{}

func (fakeConverter) FetchPNG(_ context.Context, downloadURL string) (io.ReadCloser, error) {
	u, err := url.Parse(downloadURL)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader("png:" + u.Path)), nil
}

// flakyLedger fails TransferSerial at a chosen serial.
type flakyLedger struct {
	ledger.Client
	failTransferAt int64
}

func (f *flakyLedger) TransferSerial(ctx context.Context, tokenClassID string, serial int64, treasury ledger.Account, recipientID string) error {
	if serial == f.failTransferAt {
		return fmt.Errorf("simulated transfer outage")
	}
	return f.Client.TransferSerial(ctx, tokenClassID, serial, treasury, recipientID)
}

type staticAccountSource struct {
	account ledger.Account
	err     error
}

func (s *staticAccountSource) AccountForPatient(context.Context, uuid.UUID) (ledger.Account, error) {
	return s.account, s.err
}

type fixture struct {
	svc      *Service
	repo     *mockJobRepo
	files    *objectstore.InMemoryObjectStore
	content  *contentstore.InMemoryContentStore
	ledger   *ledger.InMemoryLedger
	treasury ledger.Account
	patient  ledger.Account
}

func newFixture(t *testing.T, client ledger.Client) *fixture {
	t.Helper()

	lg := ledger.NewInMemoryLedger()
	if client == nil {
		client = lg
	} else if fl, ok := client.(*flakyLedger); ok {
		fl.Client = lg
	}

	treasury := ledger.Account{AccountID: "0.0.2", PrivateKey: "treasury-key"}
	lg.RegisterAccount(treasury)

	patientAcct, err := lg.CreateAccount(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	files := objectstore.NewInMemoryObjectStore()
	content := contentstore.NewInMemoryContentStore()
	repo := newMockJobRepo()

	royalty := ledger.RoyaltySchedule{Numerator: 5, Denominator: 10, FallbackFee: 1}
	logger := zerolog.Nop()

	svc := NewService(ServiceConfig{
		Repo:       repo,
		Lock:       joblock.NewInMemoryLock(),
		LockTTL:    time.Minute,
		Stager:     NewStager(files, fakeConverter{}, content, logger),
		Registrar:  NewRegistrar(client, treasury, royalty, logger),
		Transferor: NewTransferor(client, treasury, logger),
		Accounts:   &staticAccountSource{account: patientAcct},
		Dispatcher: events.NewDispatcher(logger),
		Logger:     logger,
	})

	return &fixture{
		svc:      svc,
		repo:     repo,
		files:    files,
		content:  content,
		ledger:   lg,
		treasury: treasury,
		patient:  patientAcct,
	}
}

func (f *fixture) putFiles(patientID uuid.UUID, names ...string) {
	for _, name := range names {
		f.files.Put(patientID.String()+"/"+name, []byte("dicom-bytes-"+name))
	}
}

func waitForTerminal(t *testing.T, svc *Service, patientID uuid.UUID) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.Status(context.Background(), patientID)
		if err == nil && job.Status != StatusInProgress {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("issuance did not reach a terminal state in time")
	return nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestIssuance_HappyPath(t *testing.T) {
	f := newFixture(t, nil)
	patientID := uuid.New()
	f.putFiles(patientID, "scan-001.dcm", "scan-002.dcm", "scan-003.dcm")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.StartWorker(ctx)

	job, err := f.svc.Start(ctx, patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusInProgress {
		t.Errorf("expected in-progress ack, got %q", job.Status)
	}

	job = waitForTerminal(t, f.svc, patientID)
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (detail %v)", job.Status, job.ErrorDetail)
	}
	if job.TotalAssets != 3 || job.MintedCount != 3 || job.TransferredCount != 3 {
		t.Errorf("expected 3/3/3 counters, got %d/%d/%d",
			job.TotalAssets, job.MintedCount, job.TransferredCount)
	}
	if job.TokenClassID == nil {
		t.Fatal("expected token class id on completed job")
	}
	if job.FinishedAt == nil {
		t.Error("expected finished_at on completed job")
	}

	// Every serial ended up with the patient.
	for serial := int64(1); serial <= 3; serial++ {
		owner, ok := f.ledger.OwnerOf(*job.TokenClassID, serial)
		if !ok || owner != f.patient.AccountID {
			t.Errorf("serial %d: expected owner %s, got %s", serial, f.patient.AccountID, owner)
		}
	}

	balance, err := f.ledger.Balance(context.Background(), f.patient.AccountID, *job.TokenClassID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 3 {
		t.Errorf("expected balance 3, got %d", balance)
	}
}

func TestIssuance_SerialMetadataPreservesOrder(t *testing.T) {
	f := newFixture(t, nil)
	patientID := uuid.New()
	f.putFiles(patientID, "a.dcm", "b.dcm", "c.dcm")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.StartWorker(ctx)

	if _, err := f.svc.Start(ctx, patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job := waitForTerminal(t, f.svc, patientID)
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", job.Status)
	}

	// Re-stage to recompute the expected CIDs; the content store derives
	// CIDs from content, so identical inputs give identical CIDs.
	stager := NewStager(f.files, fakeConverter{}, f.content, zerolog.Nop())
	assets, err := stager.Stage(context.Background(), patientID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, asset := range assets {
		serial := int64(i + 1)
		meta, ok := f.ledger.SerialMetadata(*job.TokenClassID, serial)
		if !ok {
			t.Fatalf("serial %d: no metadata", serial)
		}
		if string(meta) != asset.MetadataCID {
			t.Errorf("serial %d: expected metadata %q, got %q", serial, asset.MetadataCID, meta)
		}
	}
}

func TestIssuance_ZeroFilesFailsBeforeLedger(t *testing.T) {
	f := newFixture(t, nil)
	patientID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.StartWorker(ctx)

	if _, err := f.svc.Start(ctx, patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job := waitForTerminal(t, f.svc, patientID)

	if job.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", job.Status)
	}
	if job.ErrorStage == nil || *job.ErrorStage != StageStaging {
		t.Errorf("expected staging stage, got %v", job.ErrorStage)
	}
	if job.ErrorDetail == nil || !strings.Contains(*job.ErrorDetail, "no source files") {
		t.Errorf("unexpected detail: %v", job.ErrorDetail)
	}
	if job.TokenClassID != nil {
		t.Error("expected no token class for a zero-file run")
	}
	if f.content.Len() != 0 {
		t.Error("expected nothing published for a zero-file run")
	}
}

func TestIssuance_TransferFailureRecordsStageAndItem(t *testing.T) {
	fl := &flakyLedger{failTransferAt: 2}
	f := newFixture(t, fl)
	patientID := uuid.New()
	f.putFiles(patientID, "a.dcm", "b.dcm", "c.dcm")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.StartWorker(ctx)

	if _, err := f.svc.Start(ctx, patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job := waitForTerminal(t, f.svc, patientID)

	if job.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", job.Status)
	}
	if job.ErrorStage == nil || *job.ErrorStage != StageTransfer {
		t.Errorf("expected transfer stage, got %v", job.ErrorStage)
	}
	if job.ErrorItem == nil || *job.ErrorItem != 2 {
		t.Errorf("expected error item 2, got %v", job.ErrorItem)
	}
	if job.MintedCount != 3 {
		t.Errorf("expected 3 minted before the failure, got %d", job.MintedCount)
	}
	if job.TransferredCount != 1 {
		t.Errorf("expected 1 transferred before the failure, got %d", job.TransferredCount)
	}
	if job.TokenClassID == nil {
		t.Error("expected token class id preserved for reconciliation")
	}
}

func TestIssuance_MissingAccountAbortsBeforeLedger(t *testing.T) {
	f := newFixture(t, nil)
	// The account lookup fails, so nothing may be staged or minted.
	f.svc.accounts = &staticAccountSource{err: fmt.Errorf("no ledger account for patient")}
	patientID := uuid.New()
	f.putFiles(patientID, "a.dcm", "b.dcm", "c.dcm")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.StartWorker(ctx)

	if _, err := f.svc.Start(ctx, patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job := waitForTerminal(t, f.svc, patientID)

	if job.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", job.Status)
	}
	if job.ErrorStage == nil || *job.ErrorStage != StageTransfer {
		t.Errorf("expected transfer stage, got %v", job.ErrorStage)
	}
	if job.TokenClassID != nil {
		t.Errorf("expected no token class without a recipient account, got %q", *job.TokenClassID)
	}
	if job.MintedCount != 0 {
		t.Errorf("expected zero mints without a recipient account, got %d", job.MintedCount)
	}
	if f.content.Len() != 0 {
		t.Errorf("expected nothing published to the content store, got %d objects", f.content.Len())
	}
}

func TestIssuance_AssociationFailureMeansZeroTransfers(t *testing.T) {
	f := newFixture(t, nil)
	// Point the account source at an account the ledger has never seen.
	f.svc.accounts = &staticAccountSource{
		account: ledger.Account{AccountID: "0.0.9999", PrivateKey: "bogus"},
	}
	patientID := uuid.New()
	f.putFiles(patientID, "a.dcm", "b.dcm")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.StartWorker(ctx)

	if _, err := f.svc.Start(ctx, patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job := waitForTerminal(t, f.svc, patientID)

	if job.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", job.Status)
	}
	if job.ErrorStage == nil || *job.ErrorStage != StageTransfer {
		t.Errorf("expected transfer stage, got %v", job.ErrorStage)
	}
	if job.TransferredCount != 0 {
		t.Errorf("expected zero transfers after association failure, got %d", job.TransferredCount)
	}
}

func TestStart_DuplicateReturnsAlreadyRunning(t *testing.T) {
	f := newFixture(t, nil)
	patientID := uuid.New()
	f.putFiles(patientID, "a.dcm")

	// No worker running: the first start holds the lease.
	if _, err := f.svc.Start(context.Background(), patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.Start(context.Background(), patientID); err != ErrAlreadyRunning {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStart_AllowedAgainAfterRunFinishes(t *testing.T) {
	f := newFixture(t, nil)
	patientID := uuid.New()
	f.putFiles(patientID, "a.dcm")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.StartWorker(ctx)

	if _, err := f.svc.Start(ctx, patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForTerminal(t, f.svc, patientID)

	if _, err := f.svc.Start(ctx, patientID); err != nil {
		t.Errorf("expected restart after terminal state, got %v", err)
	}
}

func TestIssuance_PublishesCompletionEvent(t *testing.T) {
	f := newFixture(t, nil)
	patientID := uuid.New()
	f.putFiles(patientID, "a.dcm")

	got := make(chan uuid.UUID, 1)
	f.svc.dispatcher.Subscribe("issuance", events.ActionCompleted, func(ctx context.Context, ev events.Event) {
		id, _ := ev.Payload.(uuid.UUID)
		got <- id
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.StartWorker(ctx)

	if _, err := f.svc.Start(ctx, patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForTerminal(t, f.svc, patientID)

	select {
	case id := <-got:
		if id != patientID {
			t.Errorf("expected event for %s, got %s", patientID, id)
		}
	case <-time.After(time.Second):
		t.Error("expected a completion event")
	}
}

func TestMarkInProgress_ResetsJobRow(t *testing.T) {
	f := newFixture(t, nil)
	patientID := uuid.New()

	job, err := f.svc.MarkInProgress(context.Background(), patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusInProgress {
		t.Errorf("expected in-progress, got %q", job.Status)
	}
	if job.MintedCount != 0 || job.TransferredCount != 0 {
		t.Error("expected fresh counters")
	}
}

func TestMarkInProgress_RejectedWhileRunActive(t *testing.T) {
	f := newFixture(t, nil)
	patientID := uuid.New()
	f.putFiles(patientID, "a.dcm")

	// No worker running: the start holds the lease.
	if _, err := f.svc.Start(context.Background(), patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.MarkInProgress(context.Background(), patientID); err != ErrAlreadyRunning {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestMarkInProgress_ReleasesLease(t *testing.T) {
	f := newFixture(t, nil)
	patientID := uuid.New()
	f.putFiles(patientID, "a.dcm")

	if _, err := f.svc.MarkInProgress(context.Background(), patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The reset must not leave the lease held.
	if _, err := f.svc.Start(context.Background(), patientID); err != nil {
		t.Errorf("expected start after reset, got %v", err)
	}
}

func TestRegister_RejectsEmptyAssetList(t *testing.T) {
	lg := ledger.NewInMemoryLedger()
	treasury := ledger.Account{AccountID: "0.0.2", PrivateKey: "treasury-key"}
	lg.RegisterAccount(treasury)
	royalty := ledger.RoyaltySchedule{Numerator: 5, Denominator: 10, FallbackFee: 1}
	r := NewRegistrar(lg, treasury, royalty, zerolog.Nop())

	_, err := r.Register(context.Background(), "p1", nil, nil, nil)
	var ie *ItemError
	if !errors.As(err, &ie) || ie.Stage != StageRegistration {
		t.Fatalf("expected registration-stage error, got %v", err)
	}
}

func TestStatus_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.Status(context.Background(), uuid.New()); err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
