package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/ports"
)

// Watchdog polls the wiki for the community kill-switch page and triggers a
// graceful shutdown when it appears. Creating User:<name>/Shutdown is how
// wiki administrators stop a misbehaving bot without operator access.
type Watchdog struct {
	content  ports.ContentAPI
	username string
	interval time.Duration
	shutdown context.CancelFunc
	logger   *zap.Logger
}

// NewWatchdog creates a shutdown watchdog. shutdown is invoked at most once.
func NewWatchdog(content ports.ContentAPI, username string, interval time.Duration, shutdown context.CancelFunc, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		content:  content,
		username: username,
		interval: interval,
		shutdown: shutdown,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled
func (w *Watchdog) Run(ctx context.Context) {
	if w.username == "" {
		w.logger.Debug("no bot username configured, shutdown watchdog disabled")
		return
	}

	title := fmt.Sprintf("User:%s/Shutdown", w.username)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exists, err := w.content.PageExists(ctx, title)
			if err != nil {
				w.logger.Warn("shutdown page check failed", zap.Error(err))
				continue
			}
			if exists {
				w.logger.Error("shutdown page exists, stopping pipeline",
					zap.String("page", title))
				w.shutdown()
				return
			}
		}
	}
}
