package crews

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ModelResolver yields chat models by provider name. *models.Registry
// satisfies it.
type ModelResolver interface {
	Get(ctx context.Context, name string) (model.ToolCallingChatModel, error)
	Default(ctx context.Context) (model.ToolCallingChatModel, error)
}

// TokenUsage accumulates token counts across the crew's model calls.
type TokenUsage struct {
	Prompt     int `json:"prompt_tokens"`
	Completion int `json:"completion_tokens"`
	Total      int `json:"total_tokens"`
}

func (u *TokenUsage) add(usage *schema.TokenUsage) {
	if usage == nil {
		return
	}
	u.Prompt += usage.PromptTokens
	u.Completion += usage.CompletionTokens
	u.Total += usage.TotalTokens
}

// TaskOutput is the result of one task of the pipeline.
type TaskOutput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Agent       string `json:"agent"`
	Role        string `json:"role"`
	Output      string `json:"output"`
}

// Result is what a finished crew run produces. Summary is the last task's
// output, which by convention is the final report body.
type Result struct {
	Summary     string       `json:"summary"`
	TaskOutputs []TaskOutput `json:"tasks"`
	TokenUsage  TokenUsage   `json:"token_usage"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
}

// TrainingRun captures one iteration of a training session.
type TrainingRun struct {
	Iteration   int          `json:"iteration"`
	Summary     string       `json:"summary"`
	TaskOutputs []TaskOutput `json:"tasks"`
	TokenUsage  TokenUsage   `json:"token_usage"`
}

// Crew is a constructed, runnable crew.
type Crew struct {
	def    *Definition
	models ModelResolver
}

// Engine constructs crews from definitions and the model registry.
type Engine struct {
	dir    string
	models ModelResolver
}

// NewEngine builds an engine reading crew YAML files from dir.
func NewEngine(dir string, registry ModelResolver) *Engine {
	return &Engine{dir: dir, models: registry}
}

// Construct loads the named crew definition and binds it to the registry.
func (e *Engine) Construct(name string) (*Crew, error) {
	def, err := LoadDefinition(e.dir, name)
	if err != nil {
		return nil, err
	}
	return &Crew{def: def, models: e.models}, nil
}

// Name returns the crew's name.
func (c *Crew) Name() string {
	return c.def.Name
}

// Kickoff runs the crew's tasks sequentially. Each task sees the outputs
// of every prior task as context; token usage is summed across calls.
func (c *Crew) Kickoff(ctx context.Context, inputs map[string]string) (*Result, error) {
	if inputs == nil {
		inputs = map[string]string{}
	}
	if _, ok := inputs["crew_name"]; !ok {
		inputs["crew_name"] = c.def.Name
	}

	result := &Result{StartedAt: time.Now().UTC()}
	for i, task := range c.def.Tasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		agent := c.def.Agents[task.Agent]
		chatModel, err := c.modelFor(ctx, agent)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", task.Name, err)
		}

		msgs := buildMessages(agent, task, inputs, result.TaskOutputs)
		slog.Debug("crew task starting", "crew", c.def.Name, "task", task.Name, "step", i+1, "of", len(c.def.Tasks))

		out, err := chatModel.Generate(ctx, msgs)
		if err != nil {
			return nil, fmt.Errorf("task %s: generate: %w", task.Name, err)
		}
		if out.ResponseMeta != nil {
			result.TokenUsage.add(out.ResponseMeta.Usage)
		}

		result.TaskOutputs = append(result.TaskOutputs, TaskOutput{
			Name:        task.Name,
			Description: interpolate(task.Description, inputs),
			Agent:       task.Agent,
			Role:        interpolate(agent.Role, inputs),
			Output:      out.Content,
		})
	}

	result.CompletedAt = time.Now().UTC()
	if n := len(result.TaskOutputs); n > 0 {
		result.Summary = result.TaskOutputs[n-1].Output
	}
	return result, nil
}

// Train reruns the pipeline n times, collecting each iteration's outputs.
// Used to build training-data records for later prompt tuning.
func (c *Crew) Train(ctx context.Context, inputs map[string]string, iterations int) ([]TrainingRun, error) {
	if iterations <= 0 {
		iterations = 1
	}
	runs := make([]TrainingRun, 0, iterations)
	for i := 0; i < iterations; i++ {
		result, err := c.Kickoff(ctx, inputs)
		if err != nil {
			return runs, fmt.Errorf("training iteration %d: %w", i+1, err)
		}
		runs = append(runs, TrainingRun{
			Iteration:   i + 1,
			Summary:     result.Summary,
			TaskOutputs: result.TaskOutputs,
			TokenUsage:  result.TokenUsage,
		})
	}
	return runs, nil
}

// modelFor resolves the agent's provider, falling back to the default.
func (c *Crew) modelFor(ctx context.Context, agent AgentDef) (model.ToolCallingChatModel, error) {
	if agent.Provider != "" {
		return c.models.Get(ctx, agent.Provider)
	}
	return c.models.Default(ctx)
}

// buildMessages assembles the system and user prompts for one task.
func buildMessages(agent AgentDef, task TaskDef, inputs map[string]string, prior []TaskOutput) []*schema.Message {
	var system strings.Builder
	system.WriteString("You are ")
	system.WriteString(interpolate(agent.Role, inputs))
	system.WriteString(".\n")
	if agent.Backstory != "" {
		system.WriteString(interpolate(agent.Backstory, inputs))
		system.WriteString("\n")
	}
	if agent.Goal != "" {
		system.WriteString("Your personal goal is: ")
		system.WriteString(interpolate(agent.Goal, inputs))
		system.WriteString("\n")
	}

	var user strings.Builder
	user.WriteString(interpolate(task.Description, inputs))
	if task.ExpectedOutput != "" {
		user.WriteString("\n\nExpected output: ")
		user.WriteString(interpolate(task.ExpectedOutput, inputs))
	}
	if len(prior) > 0 {
		user.WriteString("\n\nContext from previous tasks:\n")
		for _, p := range prior {
			user.WriteString("\n--- ")
			user.WriteString(p.Name)
			user.WriteString(" ---\n")
			user.WriteString(p.Output)
			user.WriteString("\n")
		}
	}

	return []*schema.Message{
		{Role: schema.System, Content: system.String()},
		{Role: schema.User, Content: user.String()},
	}
}
