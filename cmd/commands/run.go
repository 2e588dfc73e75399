package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/crewd/internal/models"
	"github.com/dohr-michael/crewd/internal/report"
	"github.com/dohr-michael/crewd/internal/tasks"
)

// NewRunCommand returns the run subcommand: a one-shot crew execution
// that stores the report exactly like the gateway would.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a crew once and print the report",
		ArgsUsage: "<crew_name> <user_goal>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the JSON document instead of markdown",
			},
		},
		Action: runOnce,
	}
}

func runOnce(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() < 2 {
		return fmt.Errorf("usage: crewd run <crew_name> <user_goal>")
	}
	crewName, userGoal := args.Get(0), args.Get(1)

	cfg := loadConfig(cmd)
	resolveDirs(cfg)

	store, _, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	registry := models.NewRegistry(cfg.Models)
	engine := buildCrewEngine(cfg, registry)

	crew, err := engine.Construct(crewName)
	if err != nil {
		return err
	}
	result, err := crew.Kickoff(ctx, map[string]string{"user_goal": userGoal})
	if err != nil {
		return err
	}

	taskID := tasks.NewTaskID()
	jsonDoc, markdown, err := report.Materialize(result, crewName, userGoal, taskID)
	if err != nil {
		return err
	}
	var parsed map[string]any
	if err := json.Unmarshal(jsonDoc, &parsed); err != nil {
		return fmt.Errorf("decode report document: %w", err)
	}
	meta := map[string]any{
		"user_goal":    userGoal,
		"task_id":      taskID,
		"summary":      result.Summary,
		"json_content": parsed,
	}
	if err := store.SaveReport(ctx, crewName, markdown, meta); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	if cmd.Bool("json") {
		fmt.Println(string(jsonDoc))
	} else {
		fmt.Println(markdown)
	}
	return nil
}
