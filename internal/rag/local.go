package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	chromem "github.com/philippgille/chromem-go"

	"github.com/dohr-michael/crewd/internal/storage"
)

const (
	reportsCollection = "crewd_reports"
	chunksCollection  = "crewd_report_chunks"
	chunkSize         = 1200
)

// LocalEngine indexes reports into an embedded persistent vector store.
// Report saves feed Index; search queries the same collections with the
// same embedder, so scores are comparable.
type LocalEngine struct {
	db      *chromem.DB
	reports *chromem.Collection
	chunks  *chromem.Collection
	chat    Generator
	store   storage.Store
}

// NewLocalEngine opens (or creates) the vector collections under dir.
func NewLocalEngine(ctx context.Context, dir string, embedder embedding.Embedder, chat Generator, store storage.Store) (*LocalEngine, error) {
	db, err := chromem.NewPersistentDB(filepath.Join(dir, "vectors"), false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	ef := bridgeEmbedder(ctx, embedder)
	reports, err := db.GetOrCreateCollection(reportsCollection, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("open reports collection: %w", err)
	}
	chunks, err := db.GetOrCreateCollection(chunksCollection, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("open chunks collection: %w", err)
	}

	return &LocalEngine{db: db, reports: reports, chunks: chunks, chat: chat, store: store}, nil
}

// Index stores one report and its chunks. Re-indexing the same crew name
// overwrites the prior entries.
func (e *LocalEngine) Index(ctx context.Context, crewName, content string, meta map[string]string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if meta == nil {
		meta = map[string]string{}
	}
	meta["crew_name"] = crewName

	if err := e.reports.Add(ctx, []string{crewName}, nil, []map[string]string{meta}, []string{content}); err != nil {
		return fmt.Errorf("index report %s: %w", crewName, err)
	}

	// Drop the crew's previous chunks first; a shorter re-index must not
	// leave higher-numbered chunk ids behind.
	if err := e.chunks.Delete(ctx, map[string]string{"crew_name": crewName}, nil); err != nil {
		return fmt.Errorf("clear report chunks %s: %w", crewName, err)
	}

	parts := chunkText(content, chunkSize)
	if len(parts) == 0 {
		return nil
	}
	ids := make([]string, len(parts))
	metas := make([]map[string]string, len(parts))
	for i := range parts {
		ids[i] = fmt.Sprintf("%s#%d", crewName, i)
		metas[i] = map[string]string{"crew_name": crewName}
	}
	if err := e.chunks.Add(ctx, ids, nil, metas, parts); err != nil {
		return fmt.Errorf("index report chunks %s: %w", crewName, err)
	}
	return nil
}

// SearchReports queries whole-report vectors.
func (e *LocalEngine) SearchReports(ctx context.Context, query string, limit int) ([]ReportHit, error) {
	results, err := queryCollection(ctx, e.reports, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}
	hits := make([]ReportHit, 0, len(results))
	for _, r := range results {
		hit := ReportHit{CrewName: r.Metadata["crew_name"], Similarity: float64(r.Similarity)}
		if hit.CrewName == "" {
			hit.CrewName = r.ID
		}
		hit.Summary = r.Metadata["summary"]
		hit.UserGoal = r.Metadata["user_goal"]
		hits = append(hits, hit)
	}
	return hits, nil
}

// SearchChunks queries chunk vectors.
func (e *LocalEngine) SearchChunks(ctx context.Context, query string, limit int) ([]ChunkHit, error) {
	results, err := queryCollection(ctx, e.chunks, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search report chunks: %w", err)
	}
	hits := make([]ChunkHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, ChunkHit{
			CrewName:   r.Metadata["crew_name"],
			Content:    r.Content,
			Similarity: float64(r.Similarity),
		})
	}
	return hits, nil
}

// Answer retrieves matching chunks and asks the model.
func (e *LocalEngine) Answer(ctx context.Context, question string) (*Answer, error) {
	chunks, err := e.SearchChunks(ctx, question, defaultMatchCount)
	if err != nil {
		return nil, err
	}
	return answerFromChunks(ctx, e.chat, question, chunks)
}

// Summarize loads the crew's report and asks the model for a summary.
func (e *LocalEngine) Summarize(ctx context.Context, crewName string) (string, error) {
	rec, err := e.store.GetReport(ctx, crewName)
	if err != nil {
		return "", err
	}
	return summarizeContent(ctx, e.chat, crewName, rec.Content)
}

func queryCollection(ctx context.Context, col *chromem.Collection, query string, n int) ([]chromem.Result, error) {
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if n > count {
		n = count
	}
	return col.Query(ctx, query, n, nil, nil)
}

// chunkText splits on paragraph boundaries, merging up to maxLen runes.
func chunkText(text string, maxLen int) []string {
	paragraphs := strings.Split(text, "\n\n")
	var out []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > maxLen {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

// bridgeEmbedder converts an eino Embedder ([][]float64) to a chromem-go
// EmbeddingFunc ([]float32).
func bridgeEmbedder(ctx context.Context, embedder embedding.Embedder) chromem.EmbeddingFunc {
	return func(embedCtx context.Context, text string) ([]float32, error) {
		if embedCtx == context.Background() {
			embedCtx = ctx
		}
		vectors, err := embedder.EmbedStrings(embedCtx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("embed text: %w", err)
		}
		if len(vectors) == 0 || len(vectors[0]) == 0 {
			return nil, fmt.Errorf("embed text: empty result")
		}
		f64 := vectors[0]
		f32 := make([]float32, len(f64))
		for i, v := range f64 {
			f32[i] = float32(v)
		}
		return f32, nil
	}
}
