package scanner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/application/tasks"
	"github.com/chartport/chartport/internal/config"
	"github.com/chartport/chartport/internal/domain"
	"github.com/chartport/chartport/internal/ports"
)

// TopicScans is the event bus topic for scan lifecycle events
const TopicScans = "scan.events"

// Scanner discovers pages carrying legacy graphs and seeds conversion tasks
type Scanner struct {
	content   ports.ContentAPI
	converter ports.ConversionService
	store     *tasks.Store
	bus       ports.EventBus
	metrics   ports.MetricsCollector
	runtime   *config.Runtime
	logger    *zap.Logger
}

// New creates a scanner
func New(
	content ports.ContentAPI,
	converter ports.ConversionService,
	store *tasks.Store,
	bus ports.EventBus,
	metrics ports.MetricsCollector,
	runtime *config.Runtime,
	logger *zap.Logger,
) *Scanner {
	return &Scanner{
		content:   content,
		converter: converter,
		store:     store,
		bus:       bus,
		metrics:   metrics,
		runtime:   runtime,
		logger:    logger,
	}
}

// Run repeats scan cycles at the configured interval until ctx is cancelled.
// The interval and category are re-read from hot config every cycle.
func (s *Scanner) Run(ctx context.Context) {
	s.logger.Info("scanner started")

	for {
		cfg := s.runtime.Snapshot()
		if !cfg.Paused {
			if _, _, err := s.Scan(ctx, cfg); err != nil {
				s.logger.Error("scan cycle failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scanner stopped")
			return
		case <-time.After(cfg.ScanInterval):
		}
	}
}

// Scan runs one discovery cycle, returning page and instance counts. A page
// that fails to fetch or extract is logged and skipped; only the category
// enumeration itself is fatal to the cycle.
func (s *Scanner) Scan(ctx context.Context, cfg config.Pipeline) (int, int, error) {
	start := time.Now()

	s.publish(ctx, domain.EventTypeScanStarted, nil)

	pages, err := s.content.ListCategoryMembers(ctx, cfg.TrackingCategory, cfg.ScanPageLimit)
	if err != nil {
		return 0, 0, err
	}

	scanned := 0
	instances := 0
	for _, page := range pages {
		select {
		case <-ctx.Done():
			return scanned, instances, ctx.Err()
		default:
		}

		n, err := s.scanPage(ctx, page)
		if err != nil {
			s.logger.Warn("page skipped for this cycle",
				zap.String("page_title", page.Title),
				zap.Int64("page_id", page.ID),
				zap.Error(err))
			continue
		}
		scanned++
		instances += n
	}

	duration := time.Since(start)
	s.metrics.RecordScan(scanned, instances, duration)
	s.publish(ctx, domain.EventTypeScanCompleted, map[string]interface{}{
		"pages":     scanned,
		"instances": instances,
	})
	s.logger.Info("scan cycle complete",
		zap.String("category", cfg.TrackingCategory),
		zap.Int("pages", scanned),
		zap.Int("instances", instances),
		zap.Duration("duration", duration))

	return scanned, instances, nil
}

// scanPage fetches one page and upserts a task per extracted graph instance
func (s *Scanner) scanPage(ctx context.Context, page domain.Page) (int, error) {
	rev, err := s.content.FetchWikitext(ctx, page.ID)
	if err != nil {
		return 0, err
	}

	raws, err := s.converter.Extract(ctx, rev.Text)
	if err != nil {
		return 0, err
	}

	for ordinal, raw := range raws {
		inst := domain.NewGraphInstance(page.ID, ordinal, raw)
		if _, err := s.store.Upsert(ctx, inst, rev.Page.Title); err != nil {
			return 0, err
		}
	}
	return len(raws), nil
}

func (s *Scanner) publish(ctx context.Context, typ domain.EventType, data map[string]interface{}) {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := s.bus.Publish(ctx, TopicScans, event); err != nil {
		s.logger.Error("failed to publish scan event",
			zap.String("type", string(typ)),
			zap.Error(err))
	}
}
