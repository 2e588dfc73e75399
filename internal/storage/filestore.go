package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	reportSuffix   = "_report.md"
	metaSuffix     = "_report.json"
	trainingSuffix = "_training_data.json"
)

// FileStore persists tasks as one JSON file per id and reports as Markdown
// files keyed by crew name (last write wins).
type FileStore struct {
	mu         sync.RWMutex
	tasksDir   string
	reportsDir string
}

// NewFileStore creates a FileStore over the given directories.
func NewFileStore(tasksDir, reportsDir string) *FileStore {
	return &FileStore{tasksDir: tasksDir, reportsDir: reportsDir}
}

// SaveTaskStatus atomically writes the task's JSON file.
func (fs *FileStore) SaveTaskStatus(_ context.Context, rec *TaskRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	stamp(rec)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", rec.ID, err)
	}
	if err := os.MkdirAll(fs.tasksDir, 0o755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}
	return writeFileAtomic(filepath.Join(fs.tasksDir, rec.ID+".json"), data)
}

// LoadTaskStatus reads one task's JSON file.
func (fs *FileStore) LoadTaskStatus(_ context.Context, id string) (*TaskRecord, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(fs.tasksDir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read task %s: %w", id, err)
	}
	var rec TaskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal task %s: %w", id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return &rec, nil
}

// CleanupTasks removes task files whose modification time is older than the cutoff.
func (fs *FileStore) CleanupTasks(_ context.Context, olderThan time.Duration) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := os.ReadDir(fs.tasksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list tasks dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(fs.tasksDir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// SaveReport writes the Markdown document plus a metadata sidecar.
func (fs *FileStore) SaveReport(_ context.Context, crewName, content string, metadata map[string]any) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(fs.reportsDir, 0o755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(fs.reportsDir, crewName+reportSuffix), []byte(content)); err != nil {
		return err
	}
	if metadata == nil {
		return nil
	}
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report metadata %s: %w", crewName, err)
	}
	return writeFileAtomic(filepath.Join(fs.reportsDir, crewName+metaSuffix), data)
}

// GetReport reads the Markdown document and, if present, the metadata sidecar.
func (fs *FileStore) GetReport(_ context.Context, crewName string) (*ReportRecord, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	path := filepath.Join(fs.reportsDir, crewName+reportSuffix)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read report %s: %w", crewName, err)
	}

	rec := &ReportRecord{CrewName: crewName, Content: string(content)}
	if info, err := os.Stat(path); err == nil {
		rec.CreatedAt = info.ModTime()
	}
	if meta, err := os.ReadFile(filepath.Join(fs.reportsDir, crewName+metaSuffix)); err == nil {
		var m map[string]any
		if json.Unmarshal(meta, &m) == nil {
			rec.Metadata = m
		}
	}
	return rec, nil
}

// ListReports scans the reports directory for Markdown documents.
func (fs *FileStore) ListReports(_ context.Context) ([]ReportSummary, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.reportsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list reports dir: %w", err)
	}

	var out []ReportSummary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, reportSuffix) {
			continue
		}
		crewName := strings.TrimSuffix(name, reportSuffix)
		summary := ReportSummary{CrewName: crewName}
		if info, err := entry.Info(); err == nil {
			summary.Created = info.ModTime()
		}
		if meta, err := os.ReadFile(filepath.Join(fs.reportsDir, crewName+metaSuffix)); err == nil {
			var m map[string]any
			if json.Unmarshal(meta, &m) == nil {
				if s, ok := m["summary"].(string); ok {
					summary.Summary = s
				}
			}
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Created.After(out[j].Created)
	})
	return out, nil
}

// SaveTrainingData writes the training-data artifact for a crew.
func (fs *FileStore) SaveTrainingData(_ context.Context, crewName string, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(fs.reportsDir, 0o755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}
	return writeFileAtomic(filepath.Join(fs.reportsDir, crewName+trainingSuffix), data)
}

// GetTrainingData reads the training-data artifact for a crew.
func (fs *FileStore) GetTrainingData(_ context.Context, crewName string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(fs.reportsDir, crewName+trainingSuffix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read training data %s: %w", crewName, err)
	}
	return data, nil
}

// writeFileAtomic writes content via a temp file + rename so readers never
// observe a partial write.
func writeFileAtomic(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write %s tmp: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
