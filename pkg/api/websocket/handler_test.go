package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/application/tasks"
	"github.com/chartport/chartport/internal/domain"
	"github.com/chartport/chartport/internal/ports"
	eventsmemory "github.com/chartport/chartport/pkg/adapters/events/memory"
)

// recordingBus captures the context each subscription is registered with.
type recordingBus struct {
	mu   sync.Mutex
	ctxs []context.Context
}

func (b *recordingBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, event domain.Event) error) error {
	b.mu.Lock()
	b.ctxs = append(b.ctxs, ctx)
	b.mu.Unlock()
	return nil
}

func newStreamServer(t *testing.T, bus ports.EventBus) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", NewHandler(bus, zap.NewNop()).HandleEventStream)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	return conn
}

func TestClientCloseEndsSubscriptions(t *testing.T) {
	bus := &recordingBus{}
	srv := newStreamServer(t, bus)
	conn := dialStream(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for {
		bus.mu.Lock()
		n := len(bus.ctxs)
		bus.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscriptions registered = %d, want 2", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()

	bus.mu.Lock()
	ctxs := append([]context.Context(nil), bus.ctxs...)
	bus.mu.Unlock()
	for i, ctx := range ctxs {
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("subscription %d context still live after client close", i)
		}
	}
}

func TestEventReachesClient(t *testing.T) {
	bus := eventsmemory.NewEventBus()
	srv := newStreamServer(t, bus)
	conn := dialStream(t, srv)
	defer conn.Close()

	// The subscription registers asynchronously with the upgrade; keep
	// publishing until the stream yields a message.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				bus.Publish(context.Background(), tasks.TopicTasks, domain.Event{
					ID:   "e1",
					Type: domain.EventTypeTaskTransitioned,
					Key:  domain.TaskKey{PageID: 42, Ordinal: 0},
				})
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got domain.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != domain.EventTypeTaskTransitioned || got.Key.PageID != 42 {
		t.Fatalf("event = %+v", got)
	}
}
