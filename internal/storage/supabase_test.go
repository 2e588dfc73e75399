package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dohr-michael/crewd/internal/config"
)

type restCall struct {
	method string
	path   string
	prefer string
	body   string
}

// fakePostgREST records calls and replays canned responses keyed by
// "METHOD /path-prefix".
type fakePostgREST struct {
	t         *testing.T
	calls     []restCall
	responses map[string]string
	status    int
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") == "" || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		f.t.Errorf("missing auth headers on %s %s", r.Method, r.URL.Path)
	}
	body, _ := io.ReadAll(r.Body)
	f.calls = append(f.calls, restCall{
		method: r.Method,
		path:   r.URL.RequestURI(),
		prefer: r.Header.Get("Prefer"),
		body:   string(body),
	})
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	for key, resp := range f.responses {
		parts := strings.SplitN(key, " ", 2)
		if r.Method == parts[0] && strings.HasPrefix(r.URL.RequestURI(), parts[1]) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, resp)
			return
		}
	}
	io.WriteString(w, "[]")
}

func newTestSupabase(t *testing.T, fake *fakePostgREST) *SupabaseClient {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewSupabaseClient(config.SupabaseConfig{URL: srv.URL, Key: "test-key"},
		WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSupabase_NotConfigured(t *testing.T) {
	if _, err := NewSupabaseClient(config.SupabaseConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if _, err := NewSupabaseClient(config.SupabaseConfig{URL: "https://x.supabase.co"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("url without key: err = %v, want ErrNotConfigured", err)
	}
}

func TestSupabase_SaveTaskStatusUpserts(t *testing.T) {
	fake := &fakePostgREST{}
	client := newTestSupabase(t, fake)

	rec := &TaskRecord{ID: "t-1", Status: "running"}
	if err := client.SaveTaskStatus(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(fake.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(fake.calls))
	}
	call := fake.calls[0]
	if call.method != http.MethodPost || !strings.Contains(call.path, "on_conflict=id") {
		t.Errorf("call = %s %s", call.method, call.path)
	}
	if !strings.Contains(call.prefer, "merge-duplicates") {
		t.Errorf("Prefer = %q", call.prefer)
	}
	var sent TaskRecord
	if err := json.Unmarshal([]byte(call.body), &sent); err != nil {
		t.Fatalf("body: %v", err)
	}
	if sent.ID != "t-1" || sent.Status != "running" || sent.UpdatedAt.IsZero() {
		t.Errorf("sent %+v", sent)
	}
}

func TestSupabase_LoadTaskStatus(t *testing.T) {
	fake := &fakePostgREST{responses: map[string]string{
		"GET /rest/v1/tasks?id=eq.t-1": `[{"id":"t-1","status":"success","result":"done"}]`,
	}}
	client := newTestSupabase(t, fake)

	rec, err := client.LoadTaskStatus(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Status != "success" || rec.Result != "done" {
		t.Errorf("got %+v", rec)
	}

	if _, err := client.LoadTaskStatus(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty result: err = %v, want ErrNotFound", err)
	}
}

func TestSupabase_CleanupTasksCountsRepresentation(t *testing.T) {
	fake := &fakePostgREST{responses: map[string]string{
		"DELETE /rest/v1/tasks": `[{"id":"a"},{"id":"b"}]`,
	}}
	client := newTestSupabase(t, fake)

	n, err := client.CleanupTasks(context.Background(), 0)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2", n)
	}
	if prefer := fake.calls[0].prefer; !strings.Contains(prefer, "return=representation") {
		t.Errorf("Prefer = %q", prefer)
	}
}

func TestSupabase_GetReportNewestFirst(t *testing.T) {
	fake := &fakePostgREST{responses: map[string]string{
		"GET /rest/v1/reports?crew_name=eq.c1": `[{"id":"r2","crew_name":"c1","content":"newest"}]`,
	}}
	client := newTestSupabase(t, fake)

	rec, err := client.GetReport(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Content != "newest" {
		t.Errorf("content = %q", rec.Content)
	}
	if path := fake.calls[0].path; !strings.Contains(path, "order=created_at.desc") || !strings.Contains(path, "limit=1") {
		t.Errorf("path = %q", path)
	}
}

func TestSupabase_RPC(t *testing.T) {
	fake := &fakePostgREST{responses: map[string]string{
		"POST /rest/v1/rpc/search_reports": `[{"crew_name":"c1","similarity":0.92}]`,
	}}
	client := newTestSupabase(t, fake)

	var out []map[string]any
	err := client.RPC(context.Background(), "search_reports",
		map[string]any{"query_embedding": []float64{0.1}, "match_count": 5}, &out)
	if err != nil {
		t.Fatalf("rpc: %v", err)
	}
	if len(out) != 1 || out[0]["crew_name"] != "c1" {
		t.Errorf("out = %v", out)
	}
	if !strings.Contains(fake.calls[0].body, "query_embedding") {
		t.Errorf("body = %q", fake.calls[0].body)
	}
}

func TestSupabase_HTTPErrorSurfaces(t *testing.T) {
	fake := &fakePostgREST{status: http.StatusUnauthorized}
	client := newTestSupabase(t, fake)

	if err := client.SaveReport(context.Background(), "c1", "x", nil); err == nil {
		t.Fatal("want error on 401")
	} else if !strings.Contains(err.Error(), "status=401") {
		t.Errorf("err = %v", err)
	}
	if client.IsConnected(context.Background()) {
		t.Error("IsConnected should be false on 401")
	}
}
