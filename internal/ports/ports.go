// Package ports declares the interfaces between the pipeline core and its
// adapters. Collaborator responses are modelled as closed variants here so no
// untyped payload ever reaches orchestrator logic.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/chartport/chartport/internal/domain"
)

// ErrTaskNotFound is returned by task backends for point lookups that miss
var ErrTaskNotFound = errors.New("task not found")

// TaskBackend is the raw persistence contract for conversion tasks. It does
// not know about leases or transition legality; that lives in the task store
// layered on top.
type TaskBackend interface {
	// Get returns the task for key, or ErrTaskNotFound.
	Get(ctx context.Context, key domain.TaskKey) (*domain.ConversionTask, error)

	// Put creates or replaces the record for task.Key.
	Put(ctx context.Context, task *domain.ConversionTask) error

	// ListEligible returns up to limit tasks in Pending or Retryable status
	// whose backoff deadline has passed, oldest attempt first.
	ListEligible(ctx context.Context, now time.Time, limit int) ([]*domain.ConversionTask, error)

	// ListByStatus returns up to limit tasks in any of the given statuses,
	// oldest first. An empty status set means all tasks.
	ListByStatus(ctx context.Context, statuses []domain.Status, limit int) ([]*domain.ConversionTask, error)
}

// EditOutcome is the closed result of an edit submission
type EditOutcome int

const (
	// EditOK means the edit was committed.
	EditOK EditOutcome = iota
	// EditConflict means the page moved past the expected revision.
	EditConflict
)

// EditRequest carries one edit submission
type EditRequest struct {
	PageID           int64
	ExpectedRevision int64
	NewText          string
	Summary          string
}

// ContentAPI is the page source-of-truth collaborator
type ContentAPI interface {
	// FetchWikitext returns the current wikitext and revision of a page.
	FetchWikitext(ctx context.Context, pageID int64) (domain.Revision, error)

	// SubmitEdit commits new wikitext against an expected revision. A
	// concurrent edit is reported as EditConflict, not an error; the error
	// return covers transport failures only.
	SubmitEdit(ctx context.Context, req EditRequest) (EditOutcome, error)

	// ListCategoryMembers enumerates pages in the tracking category.
	ListCategoryMembers(ctx context.Context, category string, limit int) ([]domain.Page, error)

	// PageExists probes a page title for existence.
	PageExists(ctx context.Context, title string) (bool, error)
}

// ConvertResult is the closed result of a conversion call. Exactly one of
// Converted or Rejected is meaningful; service unreachability is reported as
// an error by Convert itself.
type ConvertResult struct {
	Converted string
	Rejected  bool
	Reason    string
}

// ConversionService is the external text-transformation collaborator. It owns
// the wikitext grammar; the pipeline treats both operations as opaque.
type ConversionService interface {
	// Extract returns the raw legacy-graph substrings of text in source order.
	Extract(ctx context.Context, text string) ([]string, error)

	// Convert transforms one raw legacy graph into the new dialect.
	Convert(ctx context.Context, raw string) (ConvertResult, error)
}

// NamingRegistry answers whether a proposed artifact name is already taken
type NamingRegistry interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// EventBus carries pipeline notifications. A subscription lives until the
// context passed to Subscribe is cancelled.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, event domain.Event) error) error
}

// Dispatcher hands work to the worker pool. Dispatch blocks while all workers
// are busy, which is what bounds pipeline concurrency.
type Dispatcher interface {
	Dispatch(ctx context.Context, job func(ctx context.Context)) error
}

// MetricsCollector records pipeline metrics
type MetricsCollector interface {
	RecordTaskUpserted(created bool)
	RecordTaskReset()
	RecordTransition(status domain.Status, class domain.ErrorClass)
	RecordStageDuration(stage string, d time.Duration)
	RecordScan(pages, instances int, d time.Duration)
	RecordEdit(outcome string)
	RecordWorkerPoolStatus(idle, busy, stopped int)
	SetLeasesActive(n int)
	SetPendingDepth(n int)
}
