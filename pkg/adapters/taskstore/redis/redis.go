package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/domain"
	"github.com/chartport/chartport/internal/ports"
)

const (
	taskKeyPrefix = "chartport:task:"
	eligibleIndex = "chartport:tasks:eligible"
)

// Backend implements the task backend on Redis. Each task is one JSON value;
// a sorted set indexes schedulable tasks by the instant they become eligible,
// so ListEligible is a single ZRANGEBYSCORE instead of a keyspace scan.
type Backend struct {
	client *redis.Client
	logger *zap.Logger
}

// NewBackend creates a new Redis task backend
func NewBackend(client *redis.Client, logger *zap.Logger) *Backend {
	return &Backend{
		client: client,
		logger: logger,
	}
}

// Get returns the task for key, or ports.ErrTaskNotFound
func (b *Backend) Get(ctx context.Context, key domain.TaskKey) (*domain.ConversionTask, error) {
	data, err := b.client.Get(ctx, getTaskKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ports.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var task domain.ConversionTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Put creates or replaces the record for task.Key and maintains the
// eligibility index
func (b *Backend) Put(ctx context.Context, task *domain.ConversionTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	storageKey := getTaskKey(task.Key)
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, storageKey, data, 0)

	if task.Status == domain.StatusPending || task.Status == domain.StatusRetryable {
		pipe.ZAdd(ctx, eligibleIndex, redis.Z{
			Score:  float64(eligibleAt(task).Unix()),
			Member: storageKey,
		})
	} else {
		pipe.ZRem(ctx, eligibleIndex, storageKey)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	b.logger.Debug("task saved",
		zap.String("key", task.Key.String()),
		zap.String("status", string(task.Status)))
	return nil
}

// ListEligible returns schedulable tasks oldest attempt first
func (b *Backend) ListEligible(ctx context.Context, now time.Time, limit int) ([]*domain.ConversionTask, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}

	keys, err := b.client.ZRangeByScore(ctx, eligibleIndex, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query eligibility index: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}

	tasks := make([]*domain.ConversionTask, 0, len(values))
	for i, value := range values {
		str, ok := value.(string)
		if !ok {
			// Index entry without a record; drop it.
			b.client.ZRem(ctx, eligibleIndex, keys[i])
			continue
		}
		var task domain.ConversionTask
		if err := json.Unmarshal([]byte(str), &task); err != nil {
			b.logger.Error("failed to unmarshal task, skipping",
				zap.String("storage_key", keys[i]),
				zap.Error(err))
			continue
		}
		if task.Status != domain.StatusPending && task.Status != domain.StatusRetryable {
			continue
		}
		if task.NotBefore.After(now) {
			continue
		}
		tasks = append(tasks, &task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].UpdatedAt.Before(tasks[j].UpdatedAt)
	})
	return tasks, nil
}

// ListByStatus scans the task keyspace and filters by status, oldest first
func (b *Backend) ListByStatus(ctx context.Context, statuses []domain.Status, limit int) ([]*domain.ConversionTask, error) {
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

	var cursor uint64
	var keys []string
	for {
		var batch []string
		var err error

		batch, cursor, err = b.client.Scan(ctx, cursor, taskKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	tasks := make([]*domain.ConversionTask, 0, len(keys))
	for _, key := range keys {
		data, err := b.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}

		var task domain.ConversionTask
		if err := json.Unmarshal(data, &task); err != nil {
			continue
		}

		if match(task.Status) {
			tasks = append(tasks, &task)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].UpdatedAt.Before(tasks[j].UpdatedAt)
	})

	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// eligibleAt returns the instant a task becomes schedulable
func eligibleAt(task *domain.ConversionTask) time.Time {
	if task.NotBefore.After(task.UpdatedAt) {
		return task.NotBefore
	}
	return task.UpdatedAt
}

// getTaskKey returns the Redis key for a task record
func getTaskKey(key domain.TaskKey) string {
	return fmt.Sprintf("%s%d:%d", taskKeyPrefix, key.PageID, key.Ordinal)
}
