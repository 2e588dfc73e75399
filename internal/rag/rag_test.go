package rag

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/crewd/internal/storage"
)

// mockEmbedder is a deterministic embedder for tests (no API calls).
// It assigns each text an 8-dim vector derived from its characters.
type mockEmbedder struct{}

func (m *mockEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	results := make([][]float64, len(texts))
	for i, text := range texts {
		results[i] = deterministicVector(text)
	}
	return results, nil
}

func deterministicVector(text string) []float64 {
	vec := make([]float64, 8)
	for i, c := range text {
		vec[i%8] += float64(c)
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// echoChat replies with a fixed answer and records the last prompt.
type echoChat struct {
	lastPrompt string
	reply      string
	err        error
}

func (c *echoChat) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.lastPrompt = msgs[len(msgs)-1].Content
	return &schema.Message{Role: schema.Assistant, Content: c.reply}, nil
}

// reportStoreStub serves a single canned report.
type reportStoreStub struct {
	report *storage.ReportRecord
}

func (s *reportStoreStub) SaveTaskStatus(context.Context, *storage.TaskRecord) error { return nil }
func (s *reportStoreStub) LoadTaskStatus(context.Context, string) (*storage.TaskRecord, error) {
	return nil, storage.ErrNotFound
}
func (s *reportStoreStub) CleanupTasks(context.Context, time.Duration) (int, error) { return 0, nil }
func (s *reportStoreStub) SaveReport(context.Context, string, string, map[string]any) error {
	return nil
}
func (s *reportStoreStub) GetReport(_ context.Context, name string) (*storage.ReportRecord, error) {
	if s.report == nil || s.report.CrewName != name {
		return nil, storage.ErrNotFound
	}
	return s.report, nil
}
func (s *reportStoreStub) ListReports(context.Context) ([]storage.ReportSummary, error) {
	return nil, nil
}
func (s *reportStoreStub) SaveTrainingData(context.Context, string, []byte) error { return nil }
func (s *reportStoreStub) GetTrainingData(context.Context, string) ([]byte, error) {
	return nil, storage.ErrNotFound
}

func newLocalEngine(t *testing.T, chat Generator, store storage.Store) *LocalEngine {
	t.Helper()
	engine, err := NewLocalEngine(context.Background(), t.TempDir(), &mockEmbedder{}, chat, store)
	if err != nil {
		t.Fatalf("new local engine: %v", err)
	}
	return engine
}

func TestLocalEngine_IndexAndSearch(t *testing.T) {
	engine := newLocalEngine(t, &echoChat{}, &reportStoreStub{})
	ctx := context.Background()

	if err := engine.Index(ctx, "quantum", "Quantum computing advances rapidly.", map[string]string{"summary": "qc"}); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := engine.Index(ctx, "llamas", "Llamas live in the Andes mountains.", nil); err != nil {
		t.Fatalf("index: %v", err)
	}

	hits, err := engine.SearchReports(ctx, "Quantum computing advances rapidly.", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if hits[0].CrewName != "quantum" {
		t.Errorf("top hit = %+v", hits[0])
	}

	chunks, err := engine.SearchChunks(ctx, "Llamas live in the Andes mountains.", 5)
	if err != nil {
		t.Fatalf("search chunks: %v", err)
	}
	if len(chunks) == 0 || chunks[0].CrewName != "llamas" {
		t.Errorf("chunks = %+v", chunks)
	}
}

func TestLocalEngine_ReindexDropsOldChunks(t *testing.T) {
	engine := newLocalEngine(t, &echoChat{}, &reportStoreStub{})
	ctx := context.Background()

	// Three paragraphs too long to merge, so the first version of the
	// report produces three chunk documents.
	long := "obsolete finding. " + strings.Repeat("alpha beta gamma delta. ", 45)
	first := long + "\n\n" + long + "\n\n" + long
	if err := engine.Index(ctx, "quantum", first, nil); err != nil {
		t.Fatalf("index: %v", err)
	}
	if n := engine.chunks.Count(); n != 3 {
		t.Fatalf("chunks after first index = %d, want 3", n)
	}

	// A shorter rewrite replaces all of them, not just chunk 0.
	if err := engine.Index(ctx, "quantum", "Fresh one-line report.", nil); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if n := engine.chunks.Count(); n != 1 {
		t.Errorf("chunks after reindex = %d, want 1", n)
	}

	hits, err := engine.SearchChunks(ctx, "obsolete finding", 10)
	if err != nil {
		t.Fatalf("search chunks: %v", err)
	}
	for _, hit := range hits {
		if strings.Contains(hit.Content, "obsolete finding") {
			t.Errorf("stale chunk survived reindex: %q", hit.Content)
		}
	}
}

func TestLocalEngine_SearchEmptyIndex(t *testing.T) {
	engine := newLocalEngine(t, &echoChat{}, &reportStoreStub{})

	hits, err := engine.SearchReports(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %+v", hits)
	}
}

func TestLocalEngine_AnswerUsesRetrievedChunks(t *testing.T) {
	chat := &echoChat{reply: "They live in the Andes."}
	engine := newLocalEngine(t, chat, &reportStoreStub{})
	ctx := context.Background()

	if err := engine.Index(ctx, "llamas", "Llamas live in the Andes mountains.", nil); err != nil {
		t.Fatalf("index: %v", err)
	}

	answer, err := engine.Answer(ctx, "Where do llamas live?")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if answer.Answer != "They live in the Andes." {
		t.Errorf("answer = %q", answer.Answer)
	}
	if len(answer.Sources) == 0 || answer.Sources[0] != "llamas" {
		t.Errorf("sources = %v", answer.Sources)
	}
	if !strings.Contains(chat.lastPrompt, "Andes mountains") {
		t.Errorf("prompt missing retrieved chunk: %q", chat.lastPrompt)
	}
}

func TestLocalEngine_AnswerWithoutMatches(t *testing.T) {
	engine := newLocalEngine(t, &echoChat{reply: "unused"}, &reportStoreStub{})

	answer, err := engine.Answer(context.Background(), "anything?")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !strings.Contains(answer.Answer, "No relevant reports") {
		t.Errorf("answer = %q", answer.Answer)
	}
}

func TestLocalEngine_Summarize(t *testing.T) {
	chat := &echoChat{reply: "Short summary."}
	store := &reportStoreStub{report: &storage.ReportRecord{CrewName: "c1", Content: "Long report body."}}
	engine := newLocalEngine(t, chat, store)

	summary, err := engine.Summarize(context.Background(), "c1")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary != "Short summary." {
		t.Errorf("summary = %q", summary)
	}
	if !strings.Contains(chat.lastPrompt, "Long report body.") {
		t.Errorf("prompt = %q", chat.lastPrompt)
	}

	if _, err := engine.Summarize(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestChunkText(t *testing.T) {
	text := strings.Repeat("alpha beta gamma.", 10) + "\n\n" + strings.Repeat("delta epsilon.", 10)
	parts := chunkText(text, 200)
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want paragraph split", len(parts))
	}

	if got := chunkText("   \n\n  ", 100); len(got) != 0 {
		t.Errorf("blank input produced %v", got)
	}

	small := chunkText("one\n\ntwo", 1000)
	if len(small) != 1 || small[0] != "one\n\ntwo" {
		t.Errorf("small input = %v", small)
	}
}
