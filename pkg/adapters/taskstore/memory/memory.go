package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chartport/chartport/internal/domain"
	"github.com/chartport/chartport/internal/ports"
)

// Backend implements the task backend with an in-memory map.
// Used by tests and local development; nothing survives a restart.
type Backend struct {
	tasks map[domain.TaskKey]*domain.ConversionTask
	mu    sync.RWMutex
}

// NewBackend creates a new in-memory task backend
func NewBackend() *Backend {
	return &Backend{
		tasks: make(map[domain.TaskKey]*domain.ConversionTask),
	}
}

// Get returns the task for key, or ports.ErrTaskNotFound
func (b *Backend) Get(ctx context.Context, key domain.TaskKey) (*domain.ConversionTask, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	task, ok := b.tasks[key]
	if !ok {
		return nil, ports.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// Put creates or replaces the record for task.Key
func (b *Backend) Put(ctx context.Context, task *domain.ConversionTask) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tasks[task.Key] = task.Clone()
	return nil
}

// ListEligible returns schedulable tasks oldest attempt first
func (b *Backend) ListEligible(ctx context.Context, now time.Time, limit int) ([]*domain.ConversionTask, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*domain.ConversionTask
	for _, task := range b.tasks {
		if task.Status != domain.StatusPending && task.Status != domain.StatusRetryable {
			continue
		}
		if task.NotBefore.After(now) {
			continue
		}
		out = append(out, task.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByStatus returns tasks matching any of the statuses, oldest first.
// An empty status set matches everything.
func (b *Backend) ListByStatus(ctx context.Context, statuses []domain.Status, limit int) ([]*domain.ConversionTask, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	match := func(s domain.Status) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if s == want {
				return true
			}
		}
		return false
	}

	var out []*domain.ConversionTask
	for _, task := range b.tasks {
		if match(task.Status) {
			out = append(out, task.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
