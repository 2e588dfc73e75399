package rag

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/dohr-michael/crewd/internal/storage"
)

// HostedEngine runs vector search through the hosted database's stored
// procedures. Query embedding happens here; ranking stays server-side and
// results come back verbatim.
type HostedEngine struct {
	client   *storage.SupabaseClient
	embedder embedding.Embedder
	chat     Generator
	reports  storage.Store
}

// NewHostedEngine wires the hosted search RPCs to the embedder and model.
func NewHostedEngine(client *storage.SupabaseClient, embedder embedding.Embedder, chat Generator, reports storage.Store) *HostedEngine {
	return &HostedEngine{client: client, embedder: embedder, chat: chat, reports: reports}
}

func (e *HostedEngine) embed(ctx context.Context, query string) ([]float64, error) {
	vectors, err := e.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embed query: empty result")
	}
	return vectors[0], nil
}

// SearchReports calls the search_reports procedure.
func (e *HostedEngine) SearchReports(ctx context.Context, query string, limit int) ([]ReportHit, error) {
	vector, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	var hits []ReportHit
	err = e.client.RPC(ctx, "search_reports", map[string]any{
		"query_embedding": vector,
		"match_count":     clampLimit(limit),
	}, &hits)
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}
	return hits, nil
}

// SearchChunks calls the search_report_chunks procedure.
func (e *HostedEngine) SearchChunks(ctx context.Context, query string, limit int) ([]ChunkHit, error) {
	vector, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	var hits []ChunkHit
	err = e.client.RPC(ctx, "search_report_chunks", map[string]any{
		"query_embedding": vector,
		"match_count":     clampLimit(limit),
	}, &hits)
	if err != nil {
		return nil, fmt.Errorf("search report chunks: %w", err)
	}
	return hits, nil
}

// Answer retrieves matching chunks and asks the model.
func (e *HostedEngine) Answer(ctx context.Context, question string) (*Answer, error) {
	chunks, err := e.SearchChunks(ctx, question, defaultMatchCount)
	if err != nil {
		return nil, err
	}
	return answerFromChunks(ctx, e.chat, question, chunks)
}

// Summarize loads the crew's report and asks the model for a summary.
func (e *HostedEngine) Summarize(ctx context.Context, crewName string) (string, error) {
	rec, err := e.reports.GetReport(ctx, crewName)
	if err != nil {
		return "", err
	}
	return summarizeContent(ctx, e.chat, crewName, rec.Content)
}
