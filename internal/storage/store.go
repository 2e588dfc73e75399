// Package storage persists task statuses and crew reports across three
// interchangeable backends: local files, sqlite, and a hosted Supabase
// project fronted by a file fallback.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a task or report does not exist in the backend.
var ErrNotFound = errors.New("not found")

// TaskRecord is the persisted status of one crew-execution task.
type TaskRecord struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReportRecord is a stored crew report. Content is the Markdown document;
// Metadata carries the structured companion data (goal, task id, json/html
// renderings when present).
type ReportRecord struct {
	ID        string         `json:"id,omitempty"`
	CrewName  string         `json:"crew_name"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ReportSummary is one row of a report listing.
type ReportSummary struct {
	ID       string    `json:"id,omitempty"`
	CrewName string    `json:"crew_name"`
	Created  time.Time `json:"created"`
	Summary  string    `json:"summary,omitempty"`
}

// Store is the persistence contract shared by all backends. Callers must
// not assume which backend served a call; the fallback adapter depends on
// that.
type Store interface {
	SaveTaskStatus(ctx context.Context, rec *TaskRecord) error
	LoadTaskStatus(ctx context.Context, id string) (*TaskRecord, error)
	CleanupTasks(ctx context.Context, olderThan time.Duration) (int, error)

	SaveReport(ctx context.Context, crewName, content string, metadata map[string]any) error
	GetReport(ctx context.Context, crewName string) (*ReportRecord, error)
	ListReports(ctx context.Context) ([]ReportSummary, error)

	SaveTrainingData(ctx context.Context, crewName string, data []byte) error
	GetTrainingData(ctx context.Context, crewName string) ([]byte, error)
}

// stamp fills CreatedAt/UpdatedAt on a record before a write.
func stamp(rec *TaskRecord) {
	now := time.Now().UTC()
	rec.UpdatedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
}
