package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/crewd/internal/report"
)

// NewReportsCommand returns the reports subcommand.
func NewReportsCommand() *cli.Command {
	return &cli.Command{
		Name:      "reports",
		Usage:     "List stored reports or print one",
		ArgsUsage: "[crew_name]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: markdown, json or html",
				Value: "markdown",
			},
		},
		Action: showReports,
	}
}

func showReports(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	resolveDirs(cfg)

	store, _, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	if cmd.Args().Len() == 0 {
		list, err := store.ListReports(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No reports stored.")
			return nil
		}
		for _, sum := range list {
			line := sum.CrewName
			if sum.Summary != "" {
				line += " - " + sum.Summary
			}
			fmt.Println(line)
		}
		return nil
	}

	crewName := cmd.Args().Get(0)
	rec, err := store.GetReport(ctx, crewName)
	if err != nil {
		return fmt.Errorf("report %s: %w", crewName, err)
	}
	body, _, err := report.Negotiate(rec, report.NormalizeFormat(cmd.String("format")))
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}
