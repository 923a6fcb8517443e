package domain

import "time"

// EventType identifies a pipeline event
type EventType string

const (
	EventTypeTaskCreated      EventType = "task.created"
	EventTypeTaskReset        EventType = "task.reset"
	EventTypeTaskTransitioned EventType = "task.transitioned"
	EventTypeScanStarted      EventType = "scan.started"
	EventTypeScanCompleted    EventType = "scan.completed"
)

// Event is a pipeline notification published on every task change. Consumed
// by the websocket stream; carries no authority over task state.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Key       TaskKey                `json:"key"`
	Status    Status                 `json:"status,omitempty"`
	Class     ErrorClass             `json:"class,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
