package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a ConversionTask
type Status string

const (
	StatusPending    Status = "pending"
	StatusValidating Status = "validating"
	StatusConverting Status = "converting"
	StatusEditing    Status = "editing"
	StatusRetryable  Status = "retryable"
	StatusDone       Status = "done"
	StatusSkipped    Status = "skipped"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether no further transitions are allowed from s
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusSkipped, StatusAbandoned:
		return true
	}
	return false
}

// InFlight reports whether s is a mid-attempt stage that a crashed worker
// may have left behind
func (s Status) InFlight() bool {
	switch s {
	case StatusValidating, StatusConverting, StatusEditing:
		return true
	}
	return false
}

// legalTransitions encodes the task state machine
var legalTransitions = map[Status][]Status{
	StatusPending:    {StatusValidating},
	StatusValidating: {StatusSkipped, StatusConverting, StatusRetryable},
	StatusConverting: {StatusEditing, StatusSkipped, StatusRetryable},
	StatusEditing:    {StatusDone, StatusRetryable},
	StatusRetryable:  {StatusPending, StatusAbandoned},
}

// CanTransition reports whether from -> to is a legal state machine edge
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrorClass classifies the failure recorded on a task transition
type ErrorClass string

const (
	ClassNone                         ErrorClass = ""
	ClassNameCollision                ErrorClass = "name_collision"
	ClassRegistryUnavailable          ErrorClass = "registry_unavailable"
	ClassUnconvertibleMarkup          ErrorClass = "unconvertible_markup"
	ClassConversionServiceUnavailable ErrorClass = "conversion_service_unavailable"
	ClassEditConflict                 ErrorClass = "edit_conflict"
	ClassConflictOrTransportError     ErrorClass = "conflict_or_transport_error"
	ClassSourceMissing                ErrorClass = "source_missing"
	ClassInterrupted                  ErrorClass = "interrupted"
	ClassUnknown                      ErrorClass = "unknown"
)

// ErrorCategory groups error classes by retry semantics
type ErrorCategory string

const (
	CategoryTransient     ErrorCategory = "transient"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryDeterministic ErrorCategory = "deterministic"
)

// Category maps an error class to its retry category. Unknown classes are
// treated as transient so they stay under the attempt ceiling.
func (c ErrorClass) Category() ErrorCategory {
	switch c {
	case ClassNameCollision, ClassUnconvertibleMarkup, ClassSourceMissing:
		return CategoryDeterministic
	case ClassEditConflict, ClassConflictOrTransportError:
		return CategoryConflict
	default:
		return CategoryTransient
	}
}

// ErrInvalidTransition is returned by the task store when a transition is not
// a legal state machine edge. It indicates a programming or data integrity
// error, never a recoverable runtime condition.
type ErrInvalidTransition struct {
	Key  TaskKey
	From Status
	To   Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for task %s", e.From, e.To, e.Key)
}

// TaskKey uniquely identifies one conversion unit: a graph occurrence on a page
type TaskKey struct {
	PageID  int64 `json:"page_id"`
	Ordinal int   `json:"ordinal"`
}

func (k TaskKey) String() string {
	return fmt.Sprintf("%d/%d", k.PageID, k.Ordinal)
}

// ConversionTask is the durable unit of work. It is created on first sighting
// of a graph instance, advanced through the state machine, and retained
// permanently as an audit record.
type ConversionTask struct {
	Key          TaskKey    `json:"key"`
	PageTitle    string     `json:"page_title"`
	Fingerprint  string     `json:"fingerprint"`
	ProposedName string     `json:"proposed_name,omitempty"`
	Status       Status     `json:"status"`
	LastError    ErrorClass `json:"last_error,omitempty"`
	LastErrorMsg string     `json:"last_error_msg,omitempty"`
	Attempts     int        `json:"attempts"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	// NotBefore is the backoff deadline armed on entry to Retryable; the task
	// is not eligible for scheduling before it.
	NotBefore time.Time `json:"not_before,omitempty"`
}

// Clone returns a deep copy so store callers cannot mutate shared state
func (t *ConversionTask) Clone() *ConversionTask {
	c := *t
	return &c
}
