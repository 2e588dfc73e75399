package crews

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeChatModel replies with a canned or computed message and records the
// prompts it receives.
type fakeChatModel struct {
	reply func(msgs []*schema.Message) (*schema.Message, error)
	calls [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls = append(f.calls, msgs)
	return f.reply(msgs)
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (f *fakeChatModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

// fakeResolver hands every provider name the same fake model.
type fakeResolver struct {
	model *fakeChatModel
}

func (r *fakeResolver) Get(context.Context, string) (model.ToolCallingChatModel, error) {
	return r.model, nil
}

func (r *fakeResolver) Default(context.Context) (model.ToolCallingChatModel, error) {
	return r.model, nil
}

func numberedReplies() *fakeChatModel {
	fake := &fakeChatModel{}
	fake.reply = func(_ []*schema.Message) (*schema.Message, error) {
		return &schema.Message{
			Role:    schema.Assistant,
			Content: fmt.Sprintf("output %d", len(fake.calls)),
			ResponseMeta: &schema.ResponseMeta{
				Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			},
		}, nil
	}
	return fake
}

func TestKickoff_RunsTasksSequentially(t *testing.T) {
	fake := numberedReplies()
	engine := NewEngine(t.TempDir(), &fakeResolver{model: fake})

	crew, err := engine.Construct("ai-research")
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	result, err := crew.Kickoff(context.Background(), map[string]string{"user_goal": "quantum computing"})
	if err != nil {
		t.Fatalf("kickoff: %v", err)
	}

	if len(result.TaskOutputs) != 2 {
		t.Fatalf("task outputs = %d, want 2", len(result.TaskOutputs))
	}
	if result.Summary != "output 2" {
		t.Errorf("summary = %q, want last task output", result.Summary)
	}
	if result.TokenUsage.Total != 30 {
		t.Errorf("token usage = %+v", result.TokenUsage)
	}
	if result.CompletedAt.Before(result.StartedAt) {
		t.Error("completed_at before started_at")
	}
}

func TestKickoff_InterpolatesPlaceholders(t *testing.T) {
	fake := numberedReplies()
	engine := NewEngine(t.TempDir(), &fakeResolver{model: fake})

	crew, err := engine.Construct("research")
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	result, err := crew.Kickoff(context.Background(), map[string]string{"user_goal": "fusion energy"})
	if err != nil {
		t.Fatalf("kickoff: %v", err)
	}

	first := fake.calls[0]
	if !strings.Contains(first[0].Content, "fusion energy") {
		t.Errorf("system prompt missing goal: %q", first[0].Content)
	}
	if !strings.Contains(first[1].Content, "fusion energy") {
		t.Errorf("user prompt missing goal: %q", first[1].Content)
	}
	if strings.Contains(first[1].Content, "{user_goal}") {
		t.Errorf("unresolved placeholder in prompt: %q", first[1].Content)
	}
	if !strings.Contains(result.TaskOutputs[0].Description, "fusion energy") {
		t.Errorf("recorded description not interpolated: %q", result.TaskOutputs[0].Description)
	}
}

func TestKickoff_PriorOutputsBecomeContext(t *testing.T) {
	fake := numberedReplies()
	engine := NewEngine(t.TempDir(), &fakeResolver{model: fake})

	crew, _ := engine.Construct("research")
	if _, err := crew.Kickoff(context.Background(), map[string]string{"user_goal": "x"}); err != nil {
		t.Fatalf("kickoff: %v", err)
	}

	second := fake.calls[1]
	if !strings.Contains(second[1].Content, "output 1") {
		t.Errorf("second task prompt missing first task output: %q", second[1].Content)
	}
	if !strings.Contains(second[1].Content, "research_task") {
		t.Errorf("context section not labelled: %q", second[1].Content)
	}
}

func TestKickoff_ModelErrorAborts(t *testing.T) {
	fake := &fakeChatModel{reply: func(_ []*schema.Message) (*schema.Message, error) {
		return nil, errors.New("provider down")
	}}
	engine := NewEngine(t.TempDir(), &fakeResolver{model: fake})

	crew, _ := engine.Construct("research")
	_, err := crew.Kickoff(context.Background(), map[string]string{"user_goal": "x"})
	if err == nil || !strings.Contains(err.Error(), "provider down") {
		t.Fatalf("err = %v", err)
	}
	if len(fake.calls) != 1 {
		t.Errorf("calls = %d, pipeline should stop at first failure", len(fake.calls))
	}
}

func TestKickoff_HonorsCancellation(t *testing.T) {
	fake := numberedReplies()
	engine := NewEngine(t.TempDir(), &fakeResolver{model: fake})
	crew, _ := engine.Construct("research")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := crew.Kickoff(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestTrain_CollectsIterations(t *testing.T) {
	fake := numberedReplies()
	engine := NewEngine(t.TempDir(), &fakeResolver{model: fake})
	crew, _ := engine.Construct("research")

	runs, err := crew.Train(context.Background(), map[string]string{"user_goal": "x"}, 3)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	if runs[0].Iteration != 1 || runs[2].Iteration != 3 {
		t.Errorf("iteration numbering: %+v", runs)
	}
	if len(fake.calls) != 6 {
		t.Errorf("model calls = %d, want 6 (2 tasks x 3 iterations)", len(fake.calls))
	}
}

func TestLoadDefinition_FromYAML(t *testing.T) {
	dir := t.TempDir()
	doc := `
name: custom
description: single-step crew
agents:
  writer:
    role: Writer
    goal: Write about {user_goal}
    backstory: Veteran author.
    provider: claude
tasks:
  - name: write
    description: Write a piece about {user_goal}
    expected_output: One paragraph
    agent: writer
`
	if err := os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	def, err := LoadDefinition(dir, "custom")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def.Agents["writer"].Provider != "claude" {
		t.Errorf("agent = %+v", def.Agents["writer"])
	}
	if len(def.Tasks) != 1 || def.Tasks[0].Agent != "writer" {
		t.Errorf("tasks = %+v", def.Tasks)
	}
}

func TestLoadDefinition_RejectsUnknownAgent(t *testing.T) {
	dir := t.TempDir()
	doc := `
name: broken
agents:
  a:
    role: A
tasks:
  - name: t
    description: d
    agent: missing
`
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if _, err := LoadDefinition(dir, "broken"); err == nil {
		t.Fatal("want validation error")
	}
}

func TestLoadDefinition_DefaultCrewForUnknownName(t *testing.T) {
	def, err := LoadDefinition(t.TempDir(), "anything-goes")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def.Name != "anything-goes" {
		t.Errorf("name = %q", def.Name)
	}
	if len(def.Tasks) != 2 {
		t.Errorf("default crew tasks = %d, want 2", len(def.Tasks))
	}
}
