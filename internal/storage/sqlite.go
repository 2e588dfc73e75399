package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	result     TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	crew_name  TEXT NOT NULL,
	content    TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_crew ON reports(crew_name, created_at DESC);
CREATE TABLE IF NOT EXISTS training_data (
	crew_name  TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	created_at TEXT NOT NULL
);
`

// SQLiteStore persists tasks and reports in a local sqlite database.
// Reports are append-only; retrieval returns the newest row per crew name.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) a sqlite store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// The driver is in-process; a single connection avoids SQLITE_BUSY
	// between the gateway and the background runner.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTaskStatus upserts the task row.
func (s *SQLiteStore) SaveTaskStatus(ctx context.Context, rec *TaskRecord) error {
	stamp(rec)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, status, result, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			message = excluded.message,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Status, rec.Result, rec.Message,
		rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save task %s: %w", rec.ID, err)
	}
	return nil
}

// LoadTaskStatus reads the task row by id.
func (s *SQLiteStore) LoadTaskStatus(ctx context.Context, id string) (*TaskRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, result, message, created_at, updated_at FROM tasks WHERE id = ?`, id)

	var rec TaskRecord
	var created, updated string
	if err := row.Scan(&rec.ID, &rec.Status, &rec.Result, &rec.Message, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &rec, nil
}

// CleanupTasks deletes task rows older than the cutoff.
func (s *SQLiteStore) CleanupTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SaveReport appends a report row.
func (s *SQLiteStore) SaveReport(ctx context.Context, crewName, content string, metadata map[string]any) error {
	meta := "{}"
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal report metadata %s: %w", crewName, err)
		}
		meta = string(data)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, crew_name, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), crewName, content, meta, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save report %s: %w", crewName, err)
	}
	return nil
}

// GetReport returns the newest report row for the crew.
func (s *SQLiteStore) GetReport(ctx context.Context, crewName string) (*ReportRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, crew_name, content, metadata, created_at
		FROM reports WHERE crew_name = ?
		ORDER BY created_at DESC LIMIT 1`, crewName)

	var rec ReportRecord
	var meta, created string
	if err := row.Scan(&rec.ID, &rec.CrewName, &rec.Content, &meta, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get report %s: %w", crewName, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if meta != "" {
		var m map[string]any
		if json.Unmarshal([]byte(meta), &m) == nil {
			rec.Metadata = m
		}
	}
	return &rec, nil
}

// ListReports returns one summary per crew name, newest first.
func (s *SQLiteStore) ListReports(ctx context.Context) ([]ReportSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, crew_name, metadata, MAX(created_at)
		FROM reports GROUP BY crew_name
		ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []ReportSummary
	for rows.Next() {
		var sum ReportSummary
		var meta, created string
		if err := rows.Scan(&sum.ID, &sum.CrewName, &meta, &created); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		sum.Created, _ = time.Parse(time.RFC3339Nano, created)
		var m map[string]any
		if json.Unmarshal([]byte(meta), &m) == nil {
			if s, ok := m["summary"].(string); ok {
				sum.Summary = s
			}
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// SaveTrainingData upserts the training artifact for a crew.
func (s *SQLiteStore) SaveTrainingData(ctx context.Context, crewName string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO training_data (crew_name, data, created_at) VALUES (?, ?, ?)
		ON CONFLICT(crew_name) DO UPDATE SET data = excluded.data, created_at = excluded.created_at`,
		crewName, data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save training data %s: %w", crewName, err)
	}
	return nil
}

// GetTrainingData reads the training artifact for a crew.
func (s *SQLiteStore) GetTrainingData(ctx context.Context, crewName string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM training_data WHERE crew_name = ?`, crewName)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get training data %s: %w", crewName, err)
	}
	return data, nil
}
