package rag

import (
	"context"
)

// ReportHit is one report-level search result.
type ReportHit struct {
	CrewName   string  `json:"crew_name"`
	UserGoal   string  `json:"user_goal,omitempty"`
	Summary    string  `json:"summary,omitempty"`
	Similarity float64 `json:"similarity"`
}

// ChunkHit is one chunk-level search result.
type ChunkHit struct {
	CrewName   string  `json:"crew_name"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Answer is a question answered over the report corpus.
type Answer struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
}

// Engine searches and reasons over stored reports. Implementations exist
// for the hosted vector RPCs and for a local embedded index; when neither
// can be built the gateway runs without one and answers 503.
type Engine interface {
	SearchReports(ctx context.Context, query string, limit int) ([]ReportHit, error)
	SearchChunks(ctx context.Context, query string, limit int) ([]ChunkHit, error)
	Answer(ctx context.Context, question string) (*Answer, error)
	Summarize(ctx context.Context, crewName string) (string, error)
}

const defaultMatchCount = 5

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultMatchCount
	}
	if limit > 50 {
		return 50
	}
	return limit
}
