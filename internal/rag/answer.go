package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Generator is the slice of a chat model the engines need.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// answerFromChunks prompts the model with retrieved chunks as context.
func answerFromChunks(ctx context.Context, chat Generator, question string, chunks []ChunkHit) (*Answer, error) {
	if len(chunks) == 0 {
		return &Answer{
			Question: question,
			Answer:   "No relevant reports were found for this question.",
		}, nil
	}

	var b strings.Builder
	b.WriteString("Answer the question using only the report excerpts below. ")
	b.WriteString("If the excerpts do not contain the answer, say so.\n\n")
	sources := make([]string, 0, len(chunks))
	seen := map[string]struct{}{}
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "Excerpt %d (report: %s):\n%s\n\n", i+1, chunk.CrewName, chunk.Content)
		if _, ok := seen[chunk.CrewName]; !ok {
			seen[chunk.CrewName] = struct{}{}
			sources = append(sources, chunk.CrewName)
		}
	}
	b.WriteString("Question: ")
	b.WriteString(question)

	out, err := chat.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: "You are a research assistant answering questions from stored research reports."},
		{Role: schema.User, Content: b.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}
	return &Answer{Question: question, Answer: out.Content, Sources: sources}, nil
}

// summarizeContent prompts the model to compress a full report.
func summarizeContent(ctx context.Context, chat Generator, crewName, content string) (string, error) {
	out, err := chat.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: "You summarize research reports in a few concise paragraphs."},
		{Role: schema.User, Content: fmt.Sprintf("Summarize the following report (%s):\n\n%s", crewName, content)},
	})
	if err != nil {
		return "", fmt.Errorf("summarize report %s: %w", crewName, err)
	}
	return out.Content, nil
}
