package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/application/tasks"
	"github.com/chartport/chartport/internal/config"
	"github.com/chartport/chartport/internal/domain"
	"github.com/chartport/chartport/internal/ports"
)

// pullInterval paces the scheduling loop between task store pulls
const pullInterval = 2 * time.Second

// Orchestrator coordinates conversion task execution
type Orchestrator struct {
	store      *tasks.Store
	content    ports.ContentAPI
	converter  ports.ConversionService
	registry   ports.NamingRegistry
	dispatcher ports.Dispatcher
	metrics    ports.MetricsCollector
	runtime    *config.Runtime
	logger     *zap.Logger

	// Track in-flight attempts so shutdown can wait for them
	inflight sync.WaitGroup
}

// New creates an orchestrator
func New(
	store *tasks.Store,
	content ports.ContentAPI,
	converter ports.ConversionService,
	registry ports.NamingRegistry,
	dispatcher ports.Dispatcher,
	metrics ports.MetricsCollector,
	runtime *config.Runtime,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		content:    content,
		converter:  converter,
		registry:   registry,
		dispatcher: dispatcher,
		metrics:    metrics,
		runtime:    runtime,
		logger:     logger,
	}
}

// Run drives the scheduling loop until ctx is cancelled. Crash-stranded tasks
// are reconciled back into scheduling before the first pull. In-flight stage
// handlers are allowed to finish their current stage on cancellation; the
// loop itself stops pulling immediately.
func (o *Orchestrator) Run(ctx context.Context) error {
	if _, err := o.store.Reconcile(ctx); err != nil {
		return err
	}

	o.logger.Info("orchestrator started")

	ticker := time.NewTicker(pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping, waiting for in-flight tasks")
			o.inflight.Wait()
			o.logger.Info("orchestrator stopped")
			return nil
		case <-ticker.C:
			o.cycle(ctx)
		}
	}
}

// cycle runs one scheduling pass under a single config snapshot
func (o *Orchestrator) cycle(ctx context.Context) {
	cfg := o.runtime.Snapshot()
	if cfg.Paused {
		return
	}

	batch, err := o.store.ListPending(ctx, cfg.Concurrency)
	if err != nil {
		o.logger.Error("failed to pull pending tasks", zap.Error(err))
		return
	}

	for _, task := range batch {
		task := task
		o.inflight.Add(1)
		err := o.dispatcher.Dispatch(ctx, func(jobCtx context.Context) {
			defer o.inflight.Done()
			defer o.store.Release(task.Key)
			o.process(jobCtx, task, cfg)
		})
		if err != nil {
			// Dispatch only fails on shutdown; put the task back.
			o.inflight.Done()
			o.store.Release(task.Key)
			return
		}
	}
}

// transition writes a state machine edge, logging instead of propagating
// invalid transitions: they indicate a bug, not a runtime condition.
func (o *Orchestrator) transition(ctx context.Context, key domain.TaskKey, to domain.Status, class domain.ErrorClass, msg string) bool {
	if _, err := o.store.Transition(ctx, key, to, class, msg); err != nil {
		o.logger.Error("task transition failed",
			zap.String("key", key.String()),
			zap.String("to", string(to)),
			zap.Error(err))
		return false
	}
	return true
}
