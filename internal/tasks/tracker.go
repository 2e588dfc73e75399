package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/crewd/internal/storage"
)

var (
	// ErrBlocked is returned for deny-listed task ids.
	ErrBlocked = errors.New("task id is blocked")
	// ErrTerminal is returned on attempts to write a finished task again.
	ErrTerminal = errors.New("task already finished")
)

// defaultBlocklist holds task ids that must never be created or resolved.
// Kept as data rather than config so a misconfigured deployment cannot
// accidentally unblock them.
var defaultBlocklist = []string{
	"1e471e2b-948c-4695-be24-c63a2e84260d",
}

// Tracker keeps an in-memory view of task statuses in front of the store.
// The cache serves reads even while the store is slow or unreachable; the
// store remains the source of truth across restarts.
type Tracker struct {
	mu      sync.RWMutex
	cache   map[string]*storage.TaskRecord
	store   storage.Store
	blocked map[string]struct{}
}

// NewTracker builds a tracker over the given store with the built-in
// deny-list installed.
func NewTracker(store storage.Store) *Tracker {
	blocked := make(map[string]struct{}, len(defaultBlocklist))
	for _, id := range defaultBlocklist {
		blocked[id] = struct{}{}
	}
	return &Tracker{
		cache:   map[string]*storage.TaskRecord{},
		store:   store,
		blocked: blocked,
	}
}

// Blocklist returns the deny-listed task ids.
func (t *Tracker) Blocklist() []string {
	out := make([]string, 0, len(t.blocked))
	for id := range t.blocked {
		out = append(out, id)
	}
	return out
}

// IsBlocked reports whether the id is deny-listed.
func (t *Tracker) IsBlocked(id string) bool {
	_, ok := t.blocked[id]
	return ok
}

// Set records a status transition. Terminal statuses are sticky: once a
// task reaches success or error, any further write fails with ErrTerminal.
// Blocked ids are rejected before any store access.
func (t *Tracker) Set(ctx context.Context, id string, status Status, result, message string) error {
	if t.IsBlocked(id) {
		return ErrBlocked
	}
	if !status.Valid() {
		return fmt.Errorf("unknown task status %q", status)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.cache[id]
	if rec == nil {
		rec = &storage.TaskRecord{ID: id}
		t.cache[id] = rec
	}
	if Status(rec.Status).Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, id, rec.Status)
	}

	rec.Status = string(status)
	rec.Result = result
	rec.Message = message

	if err := t.store.SaveTaskStatus(ctx, rec); err != nil {
		// The cache already holds the transition; status reads stay
		// correct for this process lifetime.
		slog.Warn("persist task status", "task_id", id, "status", status, "error", err)
	}
	return nil
}

// Get resolves a task status, preferring the cache and falling back to the
// store for tasks created by a previous process. Blocked ids short-circuit
// with ErrBlocked, never touching the store.
func (t *Tracker) Get(ctx context.Context, id string) (*storage.TaskRecord, error) {
	if t.IsBlocked(id) {
		return nil, ErrBlocked
	}

	t.mu.RLock()
	rec := t.cache[id]
	t.mu.RUnlock()
	if rec != nil {
		clone := *rec
		return &clone, nil
	}

	rec, err := t.store.LoadTaskStatus(ctx, id)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if cached := t.cache[id]; cached != nil {
		// A concurrent Set won the race; its view is newer.
		rec = cached
	} else {
		t.cache[id] = rec
	}
	clone := *rec
	t.mu.Unlock()
	return &clone, nil
}

// Cleanup removes finished tasks older than the cutoff from the store and
// drops every cached terminal entry whose record is gone.
func (t *Tracker) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	n, err := t.store.CleanupTasks(ctx, olderThan)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	for id, rec := range t.cache {
		if !Status(rec.Status).Terminal() {
			continue
		}
		if !rec.CreatedAt.IsZero() && time.Since(rec.CreatedAt) > olderThan {
			delete(t.cache, id)
		}
	}
	t.mu.Unlock()
	return n, nil
}
