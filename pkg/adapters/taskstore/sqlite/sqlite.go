package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chartport/chartport/internal/domain"
	"github.com/chartport/chartport/internal/ports"
)

// taskRecord is the relational shape of a conversion task
type taskRecord struct {
	PageID       int64     `gorm:"primaryKey"`
	Ordinal      int       `gorm:"primaryKey"`
	PageTitle    string    `gorm:"index"`
	Fingerprint  string    `gorm:"size:64"`
	ProposedName string
	Status       string `gorm:"index"`
	LastError    string
	LastErrorMsg string
	Attempts     int
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index"`
	NotBefore    time.Time
}

func (taskRecord) TableName() string { return "conversion_tasks" }

// Backend implements the task backend on SQLite via gorm. This is the
// default durable store; task rows double as the permanent audit trail.
type Backend struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewBackend opens (or creates) the database at path and migrates the schema
func NewBackend(path string, logger *zap.Logger) (*Backend, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(&taskRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate task schema: %w", err)
	}

	return &Backend{db: db, logger: logger}, nil
}

// Get returns the task for key, or ports.ErrTaskNotFound
func (b *Backend) Get(ctx context.Context, key domain.TaskKey) (*domain.ConversionTask, error) {
	var rec taskRecord
	err := b.db.WithContext(ctx).
		Where("page_id = ? AND ordinal = ?", key.PageID, key.Ordinal).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return fromRecord(&rec), nil
}

// Put creates or replaces the record for task.Key
func (b *Backend) Put(ctx context.Context, task *domain.ConversionTask) error {
	rec := toRecord(task)
	err := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	b.logger.Debug("task saved",
		zap.String("key", task.Key.String()),
		zap.String("status", string(task.Status)))
	return nil
}

// ListEligible returns schedulable tasks oldest attempt first
func (b *Backend) ListEligible(ctx context.Context, now time.Time, limit int) ([]*domain.ConversionTask, error) {
	q := b.db.WithContext(ctx).
		Where("status IN ?", []string{string(domain.StatusPending), string(domain.StatusRetryable)}).
		Where("not_before <= ?", now).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []taskRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list eligible tasks: %w", err)
	}
	return fromRecords(recs), nil
}

// ListByStatus returns tasks matching any of the statuses, oldest first
func (b *Backend) ListByStatus(ctx context.Context, statuses []domain.Status, limit int) ([]*domain.ConversionTask, error) {
	q := b.db.WithContext(ctx).Order("updated_at ASC")
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		q = q.Where("status IN ?", names)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []taskRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return fromRecords(recs), nil
}

func toRecord(task *domain.ConversionTask) *taskRecord {
	return &taskRecord{
		PageID:       task.Key.PageID,
		Ordinal:      task.Key.Ordinal,
		PageTitle:    task.PageTitle,
		Fingerprint:  task.Fingerprint,
		ProposedName: task.ProposedName,
		Status:       string(task.Status),
		LastError:    string(task.LastError),
		LastErrorMsg: task.LastErrorMsg,
		Attempts:     task.Attempts,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
		NotBefore:    task.NotBefore,
	}
}

func fromRecord(rec *taskRecord) *domain.ConversionTask {
	return &domain.ConversionTask{
		Key:          domain.TaskKey{PageID: rec.PageID, Ordinal: rec.Ordinal},
		PageTitle:    rec.PageTitle,
		Fingerprint:  rec.Fingerprint,
		ProposedName: rec.ProposedName,
		Status:       domain.Status(rec.Status),
		LastError:    domain.ErrorClass(rec.LastError),
		LastErrorMsg: rec.LastErrorMsg,
		Attempts:     rec.Attempts,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		NotBefore:    rec.NotBefore,
	}
}

func fromRecords(recs []taskRecord) []*domain.ConversionTask {
	tasks := make([]*domain.ConversionTask, len(recs))
	for i := range recs {
		tasks[i] = fromRecord(&recs[i])
	}
	return tasks
}
