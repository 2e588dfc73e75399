package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/crewd/internal/gateway"
	"github.com/dohr-michael/crewd/internal/models"
	"github.com/dohr-michael/crewd/internal/tasks"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the crewd gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	resolveDirs(cfg)

	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}

	store, backend, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("storage ready", "backend", backend,
		"tasks_dir", cfg.Storage.TasksDir, "reports_dir", cfg.Storage.ReportsDir)

	registry := models.NewRegistry(cfg.Models)
	engine := buildCrewEngine(cfg, registry)
	ragEngine := buildRAG(ctx, cfg, store, registry)

	tracker := tasks.NewTracker(store)
	runner := tasks.NewRunner(tracker, tasks.RunnerConfig{
		Workers:   cfg.Runner.Workers,
		QueueSize: cfg.Runner.QueueSize,
		Timeout:   cfg.Runner.Timeout.Duration(),
	})
	runner.Start()
	defer runner.Stop()

	srv := gateway.NewServer(gateway.ServerConfig{
		Host:    cfg.Gateway.Host,
		Port:    cfg.Gateway.Port,
		APIKey:  cfg.Gateway.APIKey,
		Tracker: tracker,
		Runner:  runner,
		Store:   store,
		Engine:  engine,
		RAG:     ragEngine,
		Backend: backend,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
