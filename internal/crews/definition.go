package crews

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgentDef describes one agent of a crew.
type AgentDef struct {
	Role      string `yaml:"role"`
	Goal      string `yaml:"goal"`
	Backstory string `yaml:"backstory"`
	Provider  string `yaml:"provider,omitempty"`
}

// TaskDef describes one task of a crew pipeline. Tasks run in file order.
type TaskDef struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	ExpectedOutput string `yaml:"expected_output"`
	Agent          string `yaml:"agent"`
}

// Definition is a crew loaded from YAML.
type Definition struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description,omitempty"`
	Agents      map[string]AgentDef `yaml:"agents"`
	Tasks       []TaskDef           `yaml:"tasks"`
}

// Validate checks internal consistency: at least one task, every task
// bound to a declared agent.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("crew has no name")
	}
	if len(d.Tasks) == 0 {
		return fmt.Errorf("crew %s has no tasks", d.Name)
	}
	for _, task := range d.Tasks {
		if task.Agent == "" {
			return fmt.Errorf("crew %s: task %s has no agent", d.Name, task.Name)
		}
		if _, ok := d.Agents[task.Agent]; !ok {
			return fmt.Errorf("crew %s: task %s references unknown agent %s", d.Name, task.Name, task.Agent)
		}
	}
	return nil
}

// interpolate substitutes {user_goal} and {crew_name} placeholders.
func interpolate(s string, inputs map[string]string) string {
	for key, value := range inputs {
		s = strings.ReplaceAll(s, "{"+key+"}", value)
	}
	return s
}

// LoadDefinition reads <dir>/<name>.yaml. When no file exists the built-in
// research crew is returned under the requested name, so any crew name can
// run out of the box.
func LoadDefinition(dir, name string) (*Definition, error) {
	path := filepath.Join(dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			def := defaultResearchCrew(name)
			return def, nil
		}
		return nil, fmt.Errorf("read crew %s: %w", name, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse crew %s: %w", name, err)
	}
	if def.Name == "" {
		def.Name = name
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// defaultResearchCrew is the two-stage researcher/analyst pipeline used
// when no YAML definition exists for the requested name.
func defaultResearchCrew(name string) *Definition {
	return &Definition{
		Name:        name,
		Description: "Research crew producing a structured report on a topic",
		Agents: map[string]AgentDef{
			"researcher": {
				Role:      "{user_goal} Senior Data Researcher",
				Goal:      "Uncover cutting-edge developments in {user_goal}",
				Backstory: "You're a seasoned researcher with a knack for uncovering the latest developments in {user_goal}. Known for your ability to find the most relevant information and present it in a clear and concise manner.",
			},
			"reporting_analyst": {
				Role:      "{user_goal} Reporting Analyst",
				Goal:      "Create detailed reports based on {user_goal} data analysis and research findings",
				Backstory: "You're a meticulous analyst with a keen eye for detail. You're known for your ability to turn complex data into clear and concise reports, making it easy for others to understand and act on the information you provide.",
			},
		},
		Tasks: []TaskDef{
			{
				Name:           "research_task",
				Description:    "Conduct a thorough research about {user_goal}. Make sure you find any interesting and relevant information given the current year is 2026.",
				ExpectedOutput: "A list with 10 bullet points of the most relevant information about {user_goal}",
				Agent:          "researcher",
			},
			{
				Name:           "reporting_task",
				Description:    "Review the context you got and expand each topic into a full section for a report. Make sure the report is detailed and contains any and all relevant information.",
				ExpectedOutput: "A fully fledged report with the main topics, each with a full section of information. Formatted as markdown without '```'",
				Agent:          "reporting_analyst",
			},
		},
	}
}
