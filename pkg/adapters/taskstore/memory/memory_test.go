package memory

import (
	"context"
	"testing"
	"time"

	"github.com/chartport/chartport/internal/domain"
	"github.com/chartport/chartport/internal/ports"
)

func task(pageID int64, status domain.Status, updated time.Time) *domain.ConversionTask {
	return &domain.ConversionTask{
		Key:       domain.TaskKey{PageID: pageID, Ordinal: 0},
		Status:    status,
		UpdatedAt: updated,
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	b := NewBackend()
	if _, err := b.Get(context.Background(), domain.TaskKey{PageID: 1}); err != ports.ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestPutIsolatesCallerMutations(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	orig := task(1, domain.StatusPending, time.Now())
	if err := b.Put(ctx, orig); err != nil {
		t.Fatalf("put: %v", err)
	}
	orig.Status = domain.StatusDone

	got, err := b.Get(ctx, orig.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("caller mutation leaked into the store")
	}

	got.Status = domain.StatusAbandoned
	again, err := b.Get(ctx, orig.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Status != domain.StatusPending {
		t.Fatalf("returned task shares memory with the store")
	}
}

func TestListEligibleFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	now := time.Now()

	newest := task(1, domain.StatusPending, now)
	oldest := task(2, domain.StatusRetryable, now.Add(-time.Hour))
	backedOff := task(3, domain.StatusRetryable, now.Add(-time.Minute))
	backedOff.NotBefore = now.Add(time.Hour)
	inFlight := task(4, domain.StatusEditing, now.Add(-2*time.Hour))
	finished := task(5, domain.StatusDone, now.Add(-3*time.Hour))

	for _, tk := range []*domain.ConversionTask{newest, oldest, backedOff, inFlight, finished} {
		if err := b.Put(ctx, tk); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	got, err := b.ListEligible(ctx, now, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("listed %d tasks, want 2", len(got))
	}
	if got[0].Key.PageID != 2 || got[1].Key.PageID != 1 {
		t.Fatalf("not ordered oldest first: %v, %v", got[0].Key, got[1].Key)
	}

	limited, err := b.ListEligible(ctx, now, 1)
	if err != nil {
		t.Fatalf("limited list: %v", err)
	}
	if len(limited) != 1 || limited[0].Key.PageID != 2 {
		t.Fatalf("limit did not keep the oldest task")
	}
}

func TestListByStatus(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	now := time.Now()

	for i, status := range []domain.Status{
		domain.StatusPending, domain.StatusEditing, domain.StatusDone, domain.StatusEditing,
	} {
		if err := b.Put(ctx, task(int64(i+1), status, now.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	editing, err := b.ListByStatus(ctx, []domain.Status{domain.StatusEditing}, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(editing) != 2 {
		t.Fatalf("listed %d editing tasks, want 2", len(editing))
	}

	all, err := b.ListByStatus(ctx, nil, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("empty status set listed %d tasks, want 4", len(all))
	}
}
