package taskstore

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/config"
	"github.com/chartport/chartport/internal/ports"
	"github.com/chartport/chartport/pkg/adapters/taskstore/memory"
	"github.com/chartport/chartport/pkg/adapters/taskstore/redis"
	"github.com/chartport/chartport/pkg/adapters/taskstore/sqlite"
)

// NewBackend creates a task backend based on the configured store type.
// redisClient may be nil unless the redis backend is selected.
func NewBackend(cfg config.StoreConfig, redisClient *goredis.Client, logger *zap.Logger) (ports.TaskBackend, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlite.NewBackend(cfg.SQLitePath, logger)
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis backend selected but no redis client configured")
		}
		return redis.NewBackend(redisClient, logger), nil
	case "memory":
		return memory.NewBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported task store backend: %s", cfg.Backend)
	}
}
