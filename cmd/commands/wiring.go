package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/crewd/internal/config"
	"github.com/dohr-michael/crewd/internal/crews"
	"github.com/dohr-michael/crewd/internal/models"
	"github.com/dohr-michael/crewd/internal/rag"
	"github.com/dohr-michael/crewd/internal/storage"
)

// loadConfig reads the config file named by the --config flag, falling
// back to defaults when it does not exist.
func loadConfig(cmd *cli.Command) *config.Config {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
			&slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("config unreadable, using defaults", "path", path, "error", err)
		}
		cfg = config.Default()
	}
	return cfg
}

// resolveDirs fills in storage directories from the probe candidates when
// the config leaves them empty.
func resolveDirs(cfg *config.Config) {
	if cfg.Storage.TasksDir == "" {
		cfg.Storage.TasksDir = config.ResolveWritableDir(config.TasksDirCandidates())
	}
	if cfg.Storage.ReportsDir == "" {
		cfg.Storage.ReportsDir = config.ResolveWritableDir(config.ReportsDirCandidates())
	}
	if cfg.Crews.Dir == "" {
		cfg.Crews.Dir = config.ResolveWritableDir(config.CrewsDirCandidates())
	}
}

// buildStore constructs the configured storage backend. The supabase
// backend always wraps a local file store so reads and writes survive a
// hosted outage; the returned name is what /health reports.
func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, string, error) {
	local := storage.NewFileStore(cfg.Storage.TasksDir, cfg.Storage.ReportsDir)

	switch cfg.Storage.Backend {
	case "", "file":
		return local, "file", nil

	case "sqlite":
		dsn := cfg.Storage.DSN
		if dsn == "" {
			dsn = config.DefaultDSN()
		}
		st, err := storage.OpenSQLite(dsn)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite backend: %w", err)
		}
		return st, "sqlite", nil

	case "supabase":
		client, err := storage.NewSupabaseClient(cfg.Storage.Supabase)
		if err != nil {
			if errors.Is(err, storage.ErrNotConfigured) {
				slog.Warn("supabase backend selected but not configured, using file store")
				return local, "file", nil
			}
			return nil, "", err
		}
		if !client.IsConnected(ctx) {
			slog.Warn("supabase unreachable at startup, operations will retry with local fallback")
		}
		return storage.NewFallback(client, local), "supabase", nil

	default:
		return nil, "", fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildRAG assembles a search engine when an embedder can be created.
// With the supabase backend the hosted RPCs serve search; otherwise a
// local persistent index does. Returns nil (no engine) when embedding is
// unconfigured, which the gateway surfaces as 503 on search routes.
func buildRAG(ctx context.Context, cfg *config.Config, store storage.Store, registry *models.Registry) rag.Engine {
	if cfg.Embedding.Driver == "" {
		return nil
	}
	embedder, err := rag.NewEmbedder(ctx, cfg.Embedding)
	if err != nil {
		slog.Warn("embedder unavailable, search endpoints disabled", "error", err)
		return nil
	}
	chat, err := registry.Default(ctx)
	if err != nil {
		slog.Warn("default model unavailable, search endpoints disabled", "error", err)
		return nil
	}

	if fb, ok := store.(*storage.Fallback); ok {
		return rag.NewHostedEngine(fb.Hosted(), embedder, chat, store)
	}

	engine, err := rag.NewLocalEngine(ctx, config.CrewdPath(), embedder, chat, store)
	if err != nil {
		slog.Warn("local vector index unavailable, search endpoints disabled", "error", err)
		return nil
	}
	return engine
}

// buildCrewEngine constructs the crew engine over the model registry.
func buildCrewEngine(cfg *config.Config, registry *models.Registry) *crews.Engine {
	return crews.NewEngine(cfg.Crews.Dir, registry)
}
