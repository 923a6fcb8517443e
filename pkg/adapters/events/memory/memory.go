package memory

import (
	"context"
	"sync"

	"github.com/chartport/chartport/internal/domain"
)

// subscription pairs a handler with an id so it can be removed when the
// subscriber's context ends.
type subscription struct {
	id      uint64
	handler func(ctx context.Context, event domain.Event) error
}

// EventBus implements the event bus with in-process fan-out. Used by tests
// and single-process deployments; delivery is synchronous and best-effort.
type EventBus struct {
	handlers map[string][]subscription
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new in-memory event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[string][]subscription),
	}
}

// Publish delivers the event to every subscriber of topic. Handler errors do
// not stop delivery to the remaining subscribers.
func (e *EventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	subs := make([]subscription, len(e.handlers[topic]))
	copy(subs, e.handlers[topic])
	e.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.handler(ctx, event); err != nil {
			// Subscribers are observers; their failures stay their own.
			continue
		}
	}
	return nil
}

// Subscribe registers a handler for a topic. The subscription lives until ctx
// is cancelled; after that the handler is removed and no longer invoked.
func (e *EventBus) Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, event domain.Event) error) error {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.handlers[topic] = append(e.handlers[topic], subscription{id: id, handler: handler})
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(topic, id)
	}()

	return nil
}

// remove drops the subscription with the given id from a topic
func (e *EventBus) remove(topic string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.handlers[topic]
	for i, sub := range subs {
		if sub.id == id {
			e.handlers[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
