package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dohr-michael/crewd/internal/crews"
)

// Metadata identifies one materialized report.
type Metadata struct {
	CrewName    string `json:"crew_name"`
	UserGoal    string `json:"user_goal"`
	TaskID      string `json:"task_id"`
	Timestamp   string `json:"timestamp"`
	CompletedAt string `json:"completed_at"`
}

// Document is the JSON form of a report.
type Document struct {
	Metadata   Metadata           `json:"metadata"`
	Summary    string             `json:"summary"`
	Tasks      []crews.TaskOutput `json:"tasks"`
	TokenUsage crews.TokenUsage   `json:"token_usage"`
}

// Materialize renders a crew result as both a JSON document and a Markdown
// report. The Markdown form is what gets stored as the report body; the
// JSON document travels in the report metadata for format negotiation.
func Materialize(result *crews.Result, crewName, userGoal, taskID string) ([]byte, string, error) {
	doc := Document{
		Metadata: Metadata{
			CrewName:    crewName,
			UserGoal:    userGoal,
			TaskID:      taskID,
			Timestamp:   result.StartedAt.UTC().Format(time.RFC3339),
			CompletedAt: result.CompletedAt.UTC().Format(time.RFC3339),
		},
		Summary:    result.Summary,
		Tasks:      result.TaskOutputs,
		TokenUsage: result.TokenUsage,
	}

	jsonDoc, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal report document: %w", err)
	}
	return jsonDoc, renderMarkdown(doc), nil
}

func renderMarkdown(doc Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n\n", doc.Metadata.UserGoal)
	fmt.Fprintf(&b, "## Crew: %s\n\n", doc.Metadata.CrewName)
	fmt.Fprintf(&b, "Generated: %s\n\n", doc.Metadata.CompletedAt)

	for _, task := range doc.Tasks {
		fmt.Fprintf(&b, "### %s (Agent: %s)\n\n", task.Description, task.Role)
		b.WriteString("**Output:**\n\n")
		b.WriteString(task.Output)
		b.WriteString("\n\n")
	}

	usage, err := json.MarshalIndent(doc.TokenUsage, "", "  ")
	if err == nil {
		b.WriteString("## Token Usage\n\n```json\n")
		b.Write(usage)
		b.WriteString("\n```\n")
	}
	return b.String()
}
