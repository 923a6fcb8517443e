package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/domain"
	"github.com/chartport/chartport/internal/ports"
)

// TopicTasks is the event bus topic for task lifecycle events
const TopicTasks = "task.events"

// Policy holds the retry parameters applied on entry to Retryable. It is
// snapshotted from hot configuration on every transition.
type Policy struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	LeaseTimeout time.Duration
}

// lease is one worker's exclusive claim on a task key
type lease struct {
	token   string
	expires time.Time
}

// Store enforces the task state machine over a pluggable backend
type Store struct {
	backend ports.TaskBackend
	policy  func() Policy
	bus     ports.EventBus
	metrics ports.MetricsCollector
	logger  *zap.Logger

	mu     sync.Mutex
	leases map[domain.TaskKey]lease
}

// NewStore creates a task store. policy is read on every call so hot config
// updates take effect without restart.
func NewStore(
	backend ports.TaskBackend,
	policy func() Policy,
	bus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Store {
	return &Store{
		backend: backend,
		policy:  policy,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
		leases:  make(map[domain.TaskKey]lease),
	}
}

// Upsert creates a task for the instance if absent and returns the existing
// one otherwise. A terminal Done or Skipped task whose stored fingerprint no
// longer matches the instance is reset to Pending with attempts zeroed: the
// content changed since it was processed and reprocessing is required.
func (s *Store) Upsert(ctx context.Context, inst domain.GraphInstance, pageTitle string) (*domain.ConversionTask, error) {
	key := inst.Key()
	now := time.Now()

	existing, err := s.backend.Get(ctx, key)
	if err != nil && err != ports.ErrTaskNotFound {
		return nil, fmt.Errorf("failed to look up task %s: %w", key, err)
	}

	if err == ports.ErrTaskNotFound {
		task := &domain.ConversionTask{
			Key:         key,
			PageTitle:   pageTitle,
			Fingerprint: inst.Fingerprint,
			Status:      domain.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.backend.Put(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to create task %s: %w", key, err)
		}
		s.metrics.RecordTaskUpserted(true)
		s.publish(ctx, domain.EventTypeTaskCreated, task)
		s.logger.Debug("task created",
			zap.String("key", key.String()),
			zap.String("page_title", pageTitle))
		return task.Clone(), nil
	}

	if existing.Fingerprint == inst.Fingerprint {
		s.metrics.RecordTaskUpserted(false)
		return existing.Clone(), nil
	}

	switch existing.Status {
	case domain.StatusDone, domain.StatusSkipped:
		// Underlying markup changed after the task finished.
		existing.Fingerprint = inst.Fingerprint
		existing.PageTitle = pageTitle
		existing.Status = domain.StatusPending
		existing.ProposedName = ""
		existing.LastError = domain.ClassNone
		existing.LastErrorMsg = ""
		existing.Attempts = 0
		existing.NotBefore = time.Time{}
		existing.UpdatedAt = now
		if err := s.backend.Put(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to reset task %s: %w", key, err)
		}
		s.metrics.RecordTaskReset()
		s.publish(ctx, domain.EventTypeTaskReset, existing)
		s.logger.Info("task reset, source content changed",
			zap.String("key", key.String()),
			zap.String("page_title", pageTitle))
	case domain.StatusPending, domain.StatusRetryable:
		// Not yet processed; just track the current content.
		existing.Fingerprint = inst.Fingerprint
		existing.PageTitle = pageTitle
		existing.UpdatedAt = now
		if err := s.backend.Put(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update task %s: %w", key, err)
		}
	default:
		// In-flight or Abandoned: leave it alone. Abandoned tasks need an
		// operator, not a silent restart.
	}

	s.metrics.RecordTaskUpserted(false)
	return existing.Clone(), nil
}

// Transition moves a task along one state machine edge. Entering Retryable
// increments the attempt count; if the count now exceeds the configured
// ceiling the task is written as Abandoned instead of arming a backoff timer.
// The caller's lease is released whenever the attempt ends.
func (s *Store) Transition(ctx context.Context, key domain.TaskKey, to domain.Status, class domain.ErrorClass, msg string) (*domain.ConversionTask, error) {
	task, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", key, err)
	}

	if !domain.CanTransition(task.Status, to) {
		return nil, &domain.ErrInvalidTransition{Key: key, From: task.Status, To: to}
	}

	now := time.Now()
	pol := s.policy()

	task.Status = to
	task.UpdatedAt = now

	switch to {
	case domain.StatusRetryable:
		task.Attempts++
		task.LastError = class
		task.LastErrorMsg = msg
		if task.Attempts > pol.MaxAttempts {
			task.Status = domain.StatusAbandoned
			task.LastErrorMsg = fmt.Sprintf("attempt ceiling reached (%d): %s", pol.MaxAttempts, msg)
		} else {
			task.NotBefore = now.Add(backoffDelay(pol, task.Attempts))
		}
	case domain.StatusPending:
		// Re-entry from Retryable at pickup; the error of the previous
		// attempt stays on the record until the next one classifies.
		task.NotBefore = time.Time{}
	case domain.StatusSkipped, domain.StatusAbandoned:
		task.LastError = class
		task.LastErrorMsg = msg
	case domain.StatusDone:
		task.LastError = domain.ClassNone
		task.LastErrorMsg = ""
	}

	if err := s.backend.Put(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to persist transition of %s: %w", key, err)
	}

	if attemptOver(task.Status) {
		s.Release(key)
	}

	s.metrics.RecordTransition(task.Status, task.LastError)
	s.publish(ctx, domain.EventTypeTaskTransitioned, task)
	s.logger.Debug("task transitioned",
		zap.String("key", key.String()),
		zap.String("status", string(task.Status)),
		zap.String("class", string(task.LastError)),
		zap.Int("attempts", task.Attempts))

	return task.Clone(), nil
}

// SetProposedName records the name chosen during validation
func (s *Store) SetProposedName(ctx context.Context, key domain.TaskKey, name string) error {
	task, err := s.backend.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", key, err)
	}
	task.ProposedName = name
	task.UpdatedAt = time.Now()
	if err := s.backend.Put(ctx, task); err != nil {
		return fmt.Errorf("failed to persist name of %s: %w", key, err)
	}
	return nil
}

// SetFingerprint replaces the tracked fingerprint, used when an edit conflict
// reveals the source content changed mid-flight.
func (s *Store) SetFingerprint(ctx context.Context, key domain.TaskKey, fingerprint string) error {
	task, err := s.backend.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", key, err)
	}
	task.Fingerprint = fingerprint
	task.UpdatedAt = time.Now()
	if err := s.backend.Put(ctx, task); err != nil {
		return fmt.Errorf("failed to persist fingerprint of %s: %w", key, err)
	}
	return nil
}

// ListPending returns up to limit schedulable tasks, oldest attempt first,
// acquiring a lease on each. A task already leased by another worker is never
// yielded; expired leases are reaped first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]*domain.ConversionTask, error) {
	now := time.Now()
	pol := s.policy()

	// Over-fetch so leased tasks don't starve the batch.
	candidates, err := s.backend.ListEligible(ctx, now, limit*2)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible tasks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, l := range s.leases {
		if now.After(l.expires) {
			delete(s.leases, key)
			s.logger.Warn("lease expired, task returned to scheduling",
				zap.String("key", key.String()))
		}
	}

	out := make([]*domain.ConversionTask, 0, limit)
	for _, task := range candidates {
		if len(out) >= limit {
			break
		}
		if _, held := s.leases[task.Key]; held {
			continue
		}
		s.leases[task.Key] = lease{
			token:   uuid.New().String(),
			expires: now.Add(pol.LeaseTimeout),
		}
		out = append(out, task.Clone())
	}

	s.metrics.SetLeasesActive(len(s.leases))
	s.metrics.SetPendingDepth(len(candidates))
	return out, nil
}

// Release drops the lease on a key, if any. Safe to call redundantly; workers
// defer it so a panicking handler cannot strand a lease until timeout.
func (s *Store) Release(key domain.TaskKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, key)
	s.metrics.SetLeasesActive(len(s.leases))
}

// Leased reports whether a key is currently leased
func (s *Store) Leased(key domain.TaskKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, held := s.leases[key]
	return held
}

// Get returns the task for key
func (s *Store) Get(ctx context.Context, key domain.TaskKey) (*domain.ConversionTask, error) {
	task, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// List returns tasks filtered by status for the operator API
func (s *Store) List(ctx context.Context, statuses []domain.Status, limit int) ([]*domain.ConversionTask, error) {
	return s.backend.ListByStatus(ctx, statuses, limit)
}

// Reconcile moves tasks stranded mid-attempt by a crash back to Retryable so
// they re-enter scheduling. Called once before the scheduler starts.
func (s *Store) Reconcile(ctx context.Context) (int, error) {
	stranded, err := s.backend.ListByStatus(ctx, []domain.Status{
		domain.StatusValidating,
		domain.StatusConverting,
		domain.StatusEditing,
	}, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list stranded tasks: %w", err)
	}

	for _, task := range stranded {
		if _, err := s.Transition(ctx, task.Key, domain.StatusRetryable, domain.ClassInterrupted, "attempt interrupted by restart"); err != nil {
			return 0, fmt.Errorf("failed to reconcile task %s: %w", task.Key, err)
		}
	}

	if len(stranded) > 0 {
		s.logger.Info("reconciled stranded tasks", zap.Int("count", len(stranded)))
	}
	return len(stranded), nil
}

// attemptOver reports whether a status ends the current processing attempt
func attemptOver(status domain.Status) bool {
	return status == domain.StatusRetryable || status.Terminal()
}

func (s *Store) publish(ctx context.Context, typ domain.EventType, task *domain.ConversionTask) {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Key:       task.Key,
		Status:    task.Status,
		Class:     task.LastError,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"page_title": task.PageTitle,
			"attempts":   task.Attempts,
		},
	}
	if err := s.bus.Publish(ctx, TopicTasks, event); err != nil {
		s.logger.Error("failed to publish task event",
			zap.String("key", task.Key.String()),
			zap.String("type", string(typ)),
			zap.Error(err))
	}
}
