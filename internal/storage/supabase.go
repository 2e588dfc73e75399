package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dohr-michael/crewd/internal/config"
)

const maxResponseSizeBytes = 4 << 20

var (
	// ErrNotConfigured is returned when the supabase URL or key is missing.
	ErrNotConfigured = errors.New("supabase is not configured")
)

// SupabaseClient talks to a Supabase project's PostgREST endpoint.
// Tables: tasks (upserted by id), reports (append-only), training_data.
// Vector search goes through the search_reports / search_report_chunks RPCs.
type SupabaseClient struct {
	baseURL    string
	key        string
	httpClient *http.Client
}

// SupabaseOption customizes a SupabaseClient.
type SupabaseOption func(*SupabaseClient)

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) SupabaseOption {
	return func(c *SupabaseClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewSupabaseClient builds a client from config. Returns ErrNotConfigured
// when URL or key is absent so callers can fall back cleanly.
func NewSupabaseClient(cfg config.SupabaseConfig, opts ...SupabaseOption) (*SupabaseClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	key := strings.TrimSpace(cfg.Key)
	if baseURL == "" || key == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid supabase url: %w", err)
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &SupabaseClient{
		baseURL:    baseURL,
		key:        key,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// IsConnected probes the REST endpoint with a cheap HEAD-style query.
func (c *SupabaseClient) IsConnected(ctx context.Context) bool {
	var out []map[string]any
	err := c.rest(ctx, http.MethodGet, "/rest/v1/tasks?select=id&limit=1", nil, nil, &out)
	return err == nil
}

// SaveTaskStatus upserts the task row.
func (c *SupabaseClient) SaveTaskStatus(ctx context.Context, rec *TaskRecord) error {
	stamp(rec)
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"}
	return c.rest(ctx, http.MethodPost, "/rest/v1/tasks?on_conflict=id", headers, rec, nil)
}

// LoadTaskStatus reads the task row by id.
func (c *SupabaseClient) LoadTaskStatus(ctx context.Context, id string) (*TaskRecord, error) {
	var rows []TaskRecord
	path := "/rest/v1/tasks?id=eq." + url.QueryEscape(id) + "&limit=1"
	if err := c.rest(ctx, http.MethodGet, path, nil, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// CleanupTasks deletes task rows older than the cutoff.
func (c *SupabaseClient) CleanupTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	headers := map[string]string{"Prefer": "return=representation"}
	var deleted []TaskRecord
	path := "/rest/v1/tasks?created_at=lt." + url.QueryEscape(cutoff)
	if err := c.rest(ctx, http.MethodDelete, path, headers, nil, &deleted); err != nil {
		return 0, err
	}
	return len(deleted), nil
}

// SaveReport appends a report row. Historical rows for the same crew name
// are kept; retrieval returns the newest.
func (c *SupabaseClient) SaveReport(ctx context.Context, crewName, content string, metadata map[string]any) error {
	body := map[string]any{
		"crew_name":  crewName,
		"content":    content,
		"metadata":   metadata,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	headers := map[string]string{"Prefer": "return=minimal"}
	return c.rest(ctx, http.MethodPost, "/rest/v1/reports", headers, body, nil)
}

// GetReport returns the newest report row for the crew.
func (c *SupabaseClient) GetReport(ctx context.Context, crewName string) (*ReportRecord, error) {
	var rows []ReportRecord
	path := "/rest/v1/reports?crew_name=eq." + url.QueryEscape(crewName) +
		"&order=created_at.desc&limit=1"
	if err := c.rest(ctx, http.MethodGet, path, nil, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// ListReports returns report summaries, newest first.
func (c *SupabaseClient) ListReports(ctx context.Context) ([]ReportSummary, error) {
	var rows []struct {
		ID        string         `json:"id"`
		CrewName  string         `json:"crew_name"`
		Metadata  map[string]any `json:"metadata"`
		CreatedAt time.Time      `json:"created_at"`
	}
	path := "/rest/v1/reports?select=id,crew_name,metadata,created_at&order=created_at.desc"
	if err := c.rest(ctx, http.MethodGet, path, nil, nil, &rows); err != nil {
		return nil, err
	}

	out := make([]ReportSummary, 0, len(rows))
	for _, row := range rows {
		sum := ReportSummary{ID: row.ID, CrewName: row.CrewName, Created: row.CreatedAt}
		if s, ok := row.Metadata["summary"].(string); ok {
			sum.Summary = s
		}
		out = append(out, sum)
	}
	return out, nil
}

// SaveTrainingData upserts the training artifact for a crew.
func (c *SupabaseClient) SaveTrainingData(ctx context.Context, crewName string, data []byte) error {
	body := map[string]any{
		"crew_name":  crewName,
		"data":       json.RawMessage(data),
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"}
	return c.rest(ctx, http.MethodPost, "/rest/v1/training_data?on_conflict=crew_name", headers, body, nil)
}

// GetTrainingData reads the training artifact for a crew.
func (c *SupabaseClient) GetTrainingData(ctx context.Context, crewName string) ([]byte, error) {
	var rows []struct {
		Data json.RawMessage `json:"data"`
	}
	path := "/rest/v1/training_data?crew_name=eq." + url.QueryEscape(crewName) + "&limit=1"
	if err := c.rest(ctx, http.MethodGet, path, nil, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0].Data, nil
}

// RPC invokes a PostgREST stored procedure and decodes the result into out.
// Used by the RAG engine for vector-search procedures.
func (c *SupabaseClient) RPC(ctx context.Context, name string, args map[string]any, out any) error {
	return c.rest(ctx, http.MethodPost, "/rest/v1/rpc/"+name, nil, args, out)
}

// rest performs one PostgREST request. out may be nil for writes.
func (c *SupabaseClient) rest(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal supabase request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build supabase request: %w", err)
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute supabase request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read supabase response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("supabase http status=%d body=%s", resp.StatusCode, string(raw))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode supabase response: %w", err)
	}
	return nil
}
