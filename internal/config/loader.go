package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// strips comments, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates before stripping, since
	// templates live inside string values.
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("standardize config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a Config with all defaults applied, for when no config
// file exists on disk.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "0.0.0.0"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 8000
	}
	if cfg.Gateway.APIKey == "" {
		cfg.Gateway.APIKey = os.Getenv("API_KEY")
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.TasksDir == "" {
		cfg.Storage.TasksDir = ResolveWritableDir(TasksDirCandidates())
	}
	if cfg.Storage.ReportsDir == "" {
		cfg.Storage.ReportsDir = ResolveWritableDir(ReportsDirCandidates())
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = DefaultDSN()
	}
	if cfg.Storage.Supabase.URL == "" {
		cfg.Storage.Supabase.URL = os.Getenv("SUPABASE_URL")
	}
	if cfg.Storage.Supabase.Key == "" {
		cfg.Storage.Supabase.Key = os.Getenv("SUPABASE_KEY")
	}
	if cfg.Storage.Supabase.Timeout.Duration() == 0 {
		cfg.Storage.Supabase.Timeout = Duration(10 * time.Second)
	}

	if cfg.Runner.Workers <= 0 {
		cfg.Runner.Workers = 2
	}
	if cfg.Runner.QueueSize <= 0 {
		cfg.Runner.QueueSize = 32
	}
	if cfg.Runner.Timeout.Duration() == 0 {
		cfg.Runner.Timeout = Duration(30 * time.Minute)
	}
}
