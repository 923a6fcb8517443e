package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/application/scanner"
	"github.com/chartport/chartport/internal/application/tasks"
	"github.com/chartport/chartport/internal/domain"
	"github.com/chartport/chartport/internal/ports"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // operator API is expected to sit behind a trusted proxy
	},
}

// Handler streams pipeline events over WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, logger *zap.Logger) *Handler {
	return &Handler{
		eventBus: eventBus,
		logger:   logger,
	}
}

// HandleEventStream streams task and scan events to the client. An optional
// ?page=<id> query narrows the stream to tasks of one page.
func (h *Handler) HandleEventStream(c *gin.Context) {
	pageFilter := c.Query("page")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("page_filter", pageFilter),
		zap.String("client", c.ClientIP()))

	eventChan := make(chan *domain.Event, 10)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	h.subscribeToEvents(ctx, eventChan)

	// Read pump: the client sends nothing, but reading is the only way to
	// notice a close while the stream is idle.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventChan:
			if event == nil {
				continue
			}

			if pageFilter != "" && !matchesPage(event, pageFilter) {
				continue
			}

			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Error("failed to write message", zap.Error(err))
				return
			}
		}
	}
}

// subscribeToEvents subscribes to the task and scan topics. The
// subscriptions live until ctx is cancelled; the bus drops them after that.
func (h *Handler) subscribeToEvents(ctx context.Context, ch chan<- *domain.Event) {
	eventHandler := func(_ context.Context, event domain.Event) error {
		select {
		case ch <- &event:
		default:
			// Channel full, skip event
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}

	topics := []string{tasks.TopicTasks, scanner.TopicScans}
	for _, topic := range topics {
		if err := h.eventBus.Subscribe(ctx, topic, eventHandler); err != nil {
			h.logger.Error("failed to subscribe to events",
				zap.String("topic", topic),
				zap.Error(err))
		}
	}
}

// matchesPage reports whether the event concerns a task on the given page id
func matchesPage(event *domain.Event, page string) bool {
	if event.Key.PageID == 0 {
		return false
	}
	return strconv.FormatInt(event.Key.PageID, 10) == page
}
