package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dohr-michael/crewd/internal/storage"
)

// memStore is a Store stub counting calls; failures can be injected.
type memStore struct {
	mu      sync.Mutex
	records map[string]*storage.TaskRecord
	saves   int
	failing bool
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*storage.TaskRecord{}}
}

func (m *memStore) SaveTaskStatus(_ context.Context, rec *storage.TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failing {
		return errors.New("store down")
	}
	clone := *rec
	m.records[rec.ID] = &clone
	return nil
}

func (m *memStore) LoadTaskStatus(_ context.Context, id string) (*storage.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, errors.New("store down")
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (m *memStore) CleanupTasks(_ context.Context, _ time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.records)
	m.records = map[string]*storage.TaskRecord{}
	return n, nil
}

func (m *memStore) SaveReport(context.Context, string, string, map[string]any) error {
	return nil
}

func (m *memStore) GetReport(context.Context, string) (*storage.ReportRecord, error) {
	return nil, storage.ErrNotFound
}

func (m *memStore) ListReports(context.Context) ([]storage.ReportSummary, error) {
	return nil, nil
}

func (m *memStore) SaveTrainingData(context.Context, string, []byte) error {
	return nil
}

func (m *memStore) GetTrainingData(context.Context, string) ([]byte, error) {
	return nil, storage.ErrNotFound
}

func TestTracker_SetAndGet(t *testing.T) {
	store := newMemStore()
	tr := NewTracker(store)
	ctx := context.Background()

	if err := tr.Set(ctx, "t-1", StatusProcessing, "", "Task accepted"); err != nil {
		t.Fatalf("set: %v", err)
	}
	rec, err := tr.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != string(StatusProcessing) || rec.Message != "Task accepted" {
		t.Errorf("got %+v", rec)
	}
	if store.records["t-1"] == nil {
		t.Error("status never reached the store")
	}
}

func TestTracker_BlockedIDsShortCircuit(t *testing.T) {
	store := newMemStore()
	tr := NewTracker(store)
	ctx := context.Background()
	blocked := "1e471e2b-948c-4695-be24-c63a2e84260d"

	if !tr.IsBlocked(blocked) {
		t.Fatal("built-in deny-list entry missing")
	}
	if err := tr.Set(ctx, blocked, StatusProcessing, "", ""); !errors.Is(err, ErrBlocked) {
		t.Errorf("set: err = %v, want ErrBlocked", err)
	}
	if _, err := tr.Get(ctx, blocked); !errors.Is(err, ErrBlocked) {
		t.Errorf("get: err = %v, want ErrBlocked", err)
	}
	if store.saves != 0 {
		t.Errorf("store touched %d times for a blocked id", store.saves)
	}
}

func TestTracker_TerminalStatusIsSticky(t *testing.T) {
	tr := NewTracker(newMemStore())
	ctx := context.Background()

	if err := tr.Set(ctx, "t-1", StatusSuccess, "done", ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := tr.Set(ctx, "t-1", StatusRunning, "", ""); !errors.Is(err, ErrTerminal) {
		t.Fatalf("err = %v, want ErrTerminal", err)
	}
	// A finished result must never be rewritten, not even by another
	// terminal status.
	if err := tr.Set(ctx, "t-1", StatusError, "", "boom"); !errors.Is(err, ErrTerminal) {
		t.Fatalf("terminal rewrite err = %v, want ErrTerminal", err)
	}
	rec, err := tr.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != string(StatusSuccess) || rec.Result != "done" {
		t.Errorf("record = %s/%q, want success/\"done\"", rec.Status, rec.Result)
	}
}

func TestTracker_GetFallsBackToStore(t *testing.T) {
	store := newMemStore()
	store.records["old"] = &storage.TaskRecord{ID: "old", Status: "success", Result: "archived"}
	tr := NewTracker(store)

	rec, err := tr.Get(context.Background(), "old")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Result != "archived" {
		t.Errorf("got %+v", rec)
	}
}

func TestTracker_CacheServesWhenStoreIsDown(t *testing.T) {
	store := newMemStore()
	tr := NewTracker(store)
	ctx := context.Background()

	if err := tr.Set(ctx, "t-1", StatusRunning, "", ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	store.failing = true

	// Writes still succeed against the cache.
	if err := tr.Set(ctx, "t-1", StatusSuccess, "done", ""); err != nil {
		t.Fatalf("set with store down: %v", err)
	}
	rec, err := tr.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("get with store down: %v", err)
	}
	if rec.Status != string(StatusSuccess) {
		t.Errorf("status = %s", rec.Status)
	}
}

func TestTracker_UnknownStatusRejected(t *testing.T) {
	tr := NewTracker(newMemStore())
	if err := tr.Set(context.Background(), "t-1", Status("weird"), "", ""); err == nil {
		t.Fatal("want error for unknown status")
	}
}
