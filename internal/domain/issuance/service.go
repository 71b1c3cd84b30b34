package issuance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HadleyLab/ucfwealth-server/internal/platform/events"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/joblock"
	"github.com/HadleyLab/ucfwealth-server/internal/platform/ledger"
)

// ErrAlreadyRunning is returned when the patient already has an active run.
var ErrAlreadyRunning = errors.New("issuance already running for patient")

// AccountSource resolves the ledger account the serials are transferred to.
// Implemented by the ledgeraccount service.
type AccountSource interface {
	AccountForPatient(ctx context.Context, patientID uuid.UUID) (ledger.Account, error)
}

// ServiceConfig wires the issuance orchestrator.
type ServiceConfig struct {
	Repo       JobRepository
	Lock       joblock.Lock
	LockTTL    time.Duration
	Stager     *Stager
	Registrar  *Registrar
	Transferor *Transferor
	Accounts   AccountSource
	Dispatcher *events.Dispatcher
	Logger     zerolog.Logger
	QueueSize  int
}

// Service runs the issuance pipeline as a background job, one active run per
// patient, and records progress on the job row as it goes.
type Service struct {
	repo       JobRepository
	lock       joblock.Lock
	lockTTL    time.Duration
	stager     *Stager
	registrar  *Registrar
	transferor *Transferor
	accounts   AccountSource
	dispatcher *events.Dispatcher
	logger     zerolog.Logger
	queue      chan uuid.UUID
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Service{
		repo:       cfg.Repo,
		lock:       cfg.Lock,
		lockTTL:    cfg.LockTTL,
		stager:     cfg.Stager,
		registrar:  cfg.Registrar,
		transferor: cfg.Transferor,
		accounts:   cfg.Accounts,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger.With().Str("component", "issuance").Logger(),
		queue:      make(chan uuid.UUID, cfg.QueueSize),
	}
}

func lockKey(patientID uuid.UUID) string {
	return "issuance:" + patientID.String()
}

// Start begins a background run for the patient. The lease makes the second
// concurrent start return ErrAlreadyRunning; once a run finishes (either
// way) the patient can start again.
func (s *Service) Start(ctx context.Context, patientID uuid.UUID) (*Job, error) {
	acquired, err := s.lock.Acquire(ctx, lockKey(patientID), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire issuance lease: %w", err)
	}
	if !acquired {
		return nil, ErrAlreadyRunning
	}

	job, err := s.repo.UpsertInProgress(ctx, patientID)
	if err != nil {
		_ = s.lock.Release(ctx, lockKey(patientID))
		return nil, err
	}

	select {
	case s.queue <- patientID:
	default:
		_ = s.lock.Release(ctx, lockKey(patientID))
		return nil, errors.New("issuance queue is full")
	}
	return job, nil
}

// StartWorker consumes queued runs until ctx is cancelled. Runs execute one
// at a time; ledger serial ordering depends on it.
func (s *Service) StartWorker(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case patientID := <-s.queue:
				s.run(ctx, patientID)
			}
		}
	}()
}

func (s *Service) run(ctx context.Context, patientID uuid.UUID) {
	defer func() {
		if err := s.lock.Release(context.Background(), lockKey(patientID)); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("failed to release issuance lease")
		}
	}()

	start := time.Now()
	if err := s.execute(ctx, patientID); err != nil {
		s.recordFailure(ctx, patientID, err)
		s.logger.Error().Err(err).
			Str("patient_id", patientID.String()).
			Dur("elapsed", time.Since(start)).
			Msg("issuance failed")
		s.publish(ctx, events.ActionFailed, patientID)
		return
	}

	if err := s.repo.MarkCompleted(ctx, patientID); err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to mark issuance completed")
		return
	}
	s.logger.Info().
		Str("patient_id", patientID.String()).
		Dur("elapsed", time.Since(start)).
		Msg("issuance completed")
	s.publish(ctx, events.ActionCompleted, patientID)
}

// execute runs the three pipeline stages, persisting progress after every
// item so a crashed run can be reconciled against the ledger. The transfer
// recipient is resolved before anything else: a patient with no ledger
// account must not leave a token class or minted serials behind.
func (s *Service) execute(ctx context.Context, patientID uuid.UUID) error {
	recipient, err := s.accounts.AccountForPatient(ctx, patientID)
	if err != nil {
		return &ItemError{Stage: StageTransfer, Item: 0,
			Err: fmt.Errorf("resolve patient ledger account: %w", err)}
	}

	assets, err := s.stager.Stage(ctx, patientID.String())
	if err != nil {
		return err
	}
	if err := s.repo.SetTotal(ctx, patientID, len(assets)); err != nil {
		return err
	}

	_, err = s.registrar.Register(ctx, patientID.String(), assets,
		func(classID string) {
			if err := s.repo.SetTokenClass(ctx, patientID, classID); err != nil {
				s.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to record token class")
			}
		},
		func(int64) {
			if err := s.repo.IncrementMinted(ctx, patientID); err != nil {
				s.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to record mint progress")
			}
		})
	if err != nil {
		return err
	}

	job, err := s.repo.GetByPatient(ctx, patientID)
	if err != nil {
		return err
	}
	if job.TokenClassID == nil {
		return errors.New("token class id missing after registration")
	}

	return s.transferor.Transfer(ctx, *job.TokenClassID, recipient, len(assets),
		func(int64) {
			if err := s.repo.IncrementTransferred(ctx, patientID); err != nil {
				s.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to record transfer progress")
			}
		})
}

func (s *Service) recordFailure(ctx context.Context, patientID uuid.UUID, cause error) {
	stage := StageStaging
	var item *int
	var ie *ItemError
	if errors.As(cause, &ie) {
		stage = ie.Stage
		if ie.Item > 0 {
			item = &ie.Item
		}
	}
	if err := s.repo.MarkFailed(ctx, patientID, stage, item, cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to record issuance failure")
	}
}

func (s *Service) publish(ctx context.Context, action events.Action, patientID uuid.UUID) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(ctx, events.Event{
		Resource: "issuance",
		Action:   action,
		Payload:  patientID,
	})
}

// MarkInProgress resets the patient's job row without scheduling a run. The
// intake UI calls this while the patient is still uploading files. The
// active-run lease applies here too: resetting counters under a running
// worker would let it complete a job whose counters no longer add up.
func (s *Service) MarkInProgress(ctx context.Context, patientID uuid.UUID) (*Job, error) {
	acquired, err := s.lock.Acquire(ctx, lockKey(patientID), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire issuance lease: %w", err)
	}
	if !acquired {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		if err := s.lock.Release(ctx, lockKey(patientID)); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("failed to release issuance lease")
		}
	}()
	return s.repo.UpsertInProgress(ctx, patientID)
}

// Status returns the patient's issuance job or ErrJobNotFound.
func (s *Service) Status(ctx context.Context, patientID uuid.UUID) (*Job, error) {
	return s.repo.GetByPatient(ctx, patientID)
}
