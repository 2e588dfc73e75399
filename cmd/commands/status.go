package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/crewd/internal/tasks"
)

// NewStatusCommand returns the status subcommand, reading a task's state
// straight from the configured storage backend.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the status of a background task",
		ArgsUsage: "<task_id>",
		Action:    showStatus,
	}
}

func showStatus(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return fmt.Errorf("usage: crewd status <task_id>")
	}
	taskID := cmd.Args().Get(0)

	cfg := loadConfig(cmd)
	resolveDirs(cfg)

	store, _, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	tracker := tasks.NewTracker(store)
	rec, err := tracker.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("task %s: %w", taskID, err)
	}

	fmt.Printf("Task:    %s\nStatus:  %s\n", rec.ID, rec.Status)
	if rec.Message != "" {
		fmt.Printf("Message: %s\n", rec.Message)
	}
	if rec.Result != "" {
		fmt.Printf("Result:\n%s\n", rec.Result)
	}
	return nil
}
