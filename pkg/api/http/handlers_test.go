package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/application/tasks"
	"github.com/chartport/chartport/internal/config"
	"github.com/chartport/chartport/internal/domain"
	eventsmemory "github.com/chartport/chartport/pkg/adapters/events/memory"
	taskmemory "github.com/chartport/chartport/pkg/adapters/taskstore/memory"
)

type nopMetrics struct{}

func (nopMetrics) RecordTaskUpserted(bool)                           {}
func (nopMetrics) RecordTaskReset()                                  {}
func (nopMetrics) RecordTransition(domain.Status, domain.ErrorClass) {}
func (nopMetrics) RecordStageDuration(string, time.Duration)         {}
func (nopMetrics) RecordScan(int, int, time.Duration)                {}
func (nopMetrics) RecordEdit(string)                                 {}
func (nopMetrics) RecordWorkerPoolStatus(int, int, int)              {}
func (nopMetrics) SetLeasesActive(int)                               {}
func (nopMetrics) SetPendingDepth(int)                               {}

func testPipeline() config.Pipeline {
	return config.Pipeline{
		Concurrency:      5,
		MaxAttempts:      3,
		BackoffBase:      time.Second,
		BackoffCap:       time.Minute,
		LeaseTimeout:     time.Minute,
		ScanInterval:     time.Minute,
		ScanPageLimit:    10,
		TrackingCategory: "Category:Graphs to port",
		EditSummary:      "Port legacy graph to chart",
	}
}

func newTestServer(t *testing.T) (*Server, *tasks.Store, *config.Runtime) {
	t.Helper()

	cfg := testPipeline()
	runtime := config.NewRuntime(cfg)
	store := tasks.NewStore(
		taskmemory.NewBackend(),
		func() tasks.Policy {
			return tasks.Policy{
				MaxAttempts:  cfg.MaxAttempts,
				BackoffBase:  cfg.BackoffBase,
				BackoffCap:   cfg.BackoffCap,
				LeaseTimeout: cfg.LeaseTimeout,
			}
		},
		eventsmemory.NewEventBus(),
		nopMetrics{},
		zap.NewNop(),
	)

	srv := NewServer(&Config{
		Port:    0,
		Store:   store,
		Runtime: runtime,
		Logger:  zap.NewNop(),
	})
	return srv, store, runtime
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetConfigReturnsSnapshot(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got config.Pipeline
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Concurrency != 5 || got.TrackingCategory != "Category:Graphs to port" {
		t.Fatalf("unexpected config %+v", got)
	}
}

func TestPutConfigMergesPartialUpdate(t *testing.T) {
	srv, _, runtime := newTestServer(t)

	rec := doRequest(srv, http.MethodPut, "/api/v1/config", `{"concurrency": 9, "paused": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	got := runtime.Snapshot()
	if got.Concurrency != 9 || !got.Paused {
		t.Fatalf("update not applied: %+v", got)
	}
	// Omitted fields keep their values.
	if got.MaxAttempts != 3 || got.TrackingCategory != "Category:Graphs to port" {
		t.Fatalf("omitted fields were clobbered: %+v", got)
	}
}

func TestPutConfigRejectsInvalidParameters(t *testing.T) {
	srv, _, runtime := newTestServer(t)

	rec := doRequest(srv, http.MethodPut, "/api/v1/config", `{"concurrency": 0}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if runtime.Snapshot().Concurrency != 5 {
		t.Fatalf("rejected update changed the live config")
	}
}

func TestListTasksFiltersByStatus(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		inst := domain.NewGraphInstance(i, 0, "{{Graph:Chart|a}}")
		if _, err := store.Upsert(ctx, inst, "Example"); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if _, err := store.Transition(ctx, domain.TaskKey{PageID: 1, Ordinal: 0}, domain.StatusValidating, domain.ClassNone, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := store.Transition(ctx, domain.TaskKey{PageID: 1, Ordinal: 0}, domain.StatusSkipped, domain.ClassNameCollision, "taken"); err != nil {
		t.Fatalf("transition: %v", err)
	}

	rec := doRequest(srv, http.MethodGet, "/api/v1/tasks?status=skipped", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Tasks []TaskResponse `json:"tasks"`
		Total int            `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Tasks) != 1 {
		t.Fatalf("filtered list returned %d tasks", resp.Total)
	}
	if resp.Tasks[0].PageID != 1 || resp.Tasks[0].Status != "skipped" || resp.Tasks[0].LastError != "name_collision" {
		t.Fatalf("unexpected task %+v", resp.Tasks[0])
	}
}

func TestGetTask(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	inst := domain.NewGraphInstance(42, 1, "{{Graph:Chart|a}}")
	if _, err := store.Upsert(ctx, inst, "Example"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rec := doRequest(srv, http.MethodGet, "/api/v1/tasks/42/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got TaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PageID != 42 || got.Ordinal != 1 || got.Status != "pending" {
		t.Fatalf("unexpected task %+v", got)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/tasks/99/0", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetTaskRejectsBadKey(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/tasks/abc/0", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
