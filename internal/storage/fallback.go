package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Fallback prefers the hosted backend and silently falls back to the local
// store on any hosted failure. Callers never learn which backend served a
// request; an error surfaces only when both paths fail.
type Fallback struct {
	hosted *SupabaseClient
	local  Store
}

// NewFallback wraps a hosted client over a local store.
func NewFallback(hosted *SupabaseClient, local Store) *Fallback {
	return &Fallback{hosted: hosted, local: local}
}

// Hosted exposes the underlying supabase client (the RAG engine shares it).
func (f *Fallback) Hosted() *SupabaseClient {
	return f.hosted
}

func (f *Fallback) SaveTaskStatus(ctx context.Context, rec *TaskRecord) error {
	err := f.hosted.SaveTaskStatus(ctx, rec)
	if err == nil {
		// Mirror to the local store so reads survive a later hosted outage.
		if lerr := f.local.SaveTaskStatus(ctx, rec); lerr != nil {
			slog.Debug("mirror task status to local store", "task_id", rec.ID, "error", lerr)
		}
		return nil
	}
	slog.Debug("hosted save_task_status failed, using local store", "task_id", rec.ID, "error", err)
	return f.local.SaveTaskStatus(ctx, rec)
}

func (f *Fallback) LoadTaskStatus(ctx context.Context, id string) (*TaskRecord, error) {
	rec, err := f.hosted.LoadTaskStatus(ctx, id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		slog.Debug("hosted load_task_status failed, using local store", "task_id", id, "error", err)
	}
	return f.local.LoadTaskStatus(ctx, id)
}

func (f *Fallback) CleanupTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	hostedN, hostedErr := f.hosted.CleanupTasks(ctx, olderThan)
	if hostedErr != nil {
		slog.Debug("hosted cleanup failed", "error", hostedErr)
	}
	localN, localErr := f.local.CleanupTasks(ctx, olderThan)
	if hostedErr != nil && localErr != nil {
		return 0, localErr
	}
	return hostedN + localN, nil
}

func (f *Fallback) SaveReport(ctx context.Context, crewName, content string, metadata map[string]any) error {
	err := f.hosted.SaveReport(ctx, crewName, content, metadata)
	if err == nil {
		if lerr := f.local.SaveReport(ctx, crewName, content, metadata); lerr != nil {
			slog.Debug("mirror report to local store", "crew", crewName, "error", lerr)
		}
		return nil
	}
	slog.Debug("hosted save_report failed, using local store", "crew", crewName, "error", err)
	return f.local.SaveReport(ctx, crewName, content, metadata)
}

func (f *Fallback) GetReport(ctx context.Context, crewName string) (*ReportRecord, error) {
	rec, err := f.hosted.GetReport(ctx, crewName)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		slog.Debug("hosted get_report failed, using local store", "crew", crewName, "error", err)
	}
	return f.local.GetReport(ctx, crewName)
}

func (f *Fallback) ListReports(ctx context.Context) ([]ReportSummary, error) {
	out, err := f.hosted.ListReports(ctx)
	if err == nil {
		return out, nil
	}
	slog.Debug("hosted list_reports failed, using local store", "error", err)
	return f.local.ListReports(ctx)
}

func (f *Fallback) SaveTrainingData(ctx context.Context, crewName string, data []byte) error {
	err := f.hosted.SaveTrainingData(ctx, crewName, data)
	if err == nil {
		if lerr := f.local.SaveTrainingData(ctx, crewName, data); lerr != nil {
			slog.Debug("mirror training data to local store", "crew", crewName, "error", lerr)
		}
		return nil
	}
	slog.Debug("hosted save_training_data failed, using local store", "crew", crewName, "error", err)
	return f.local.SaveTrainingData(ctx, crewName, data)
}

func (f *Fallback) GetTrainingData(ctx context.Context, crewName string) ([]byte, error) {
	data, err := f.hosted.GetTrainingData(ctx, crewName)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		slog.Debug("hosted get_training_data failed, using local store", "crew", crewName, "error", err)
	}
	return f.local.GetTrainingData(ctx, crewName)
}
