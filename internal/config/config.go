package config

import "time"

// Config is the root configuration for crewd.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Storage   StorageConfig   `json:"storage"`
	Models    ModelsConfig    `json:"models"`
	Embedding EmbeddingConfig `json:"embedding"`
	Runner    RunnerConfig    `json:"runner"`
	Crews     CrewsConfig     `json:"crews"`
}

// GatewayConfig holds the HTTP server settings.
type GatewayConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	APIKey string `json:"api_key,omitempty"` // X-API-Key shared secret; empty disables auth
}

// StorageConfig selects and configures the persistence backend.
// Backend is the single authoritative switch: "file", "sqlite" or "supabase".
// The supabase backend always keeps a file store underneath as fallback.
type StorageConfig struct {
	Backend    string         `json:"backend"`
	TasksDir   string         `json:"tasks_dir,omitempty"`
	ReportsDir string         `json:"reports_dir,omitempty"`
	DSN        string         `json:"dsn,omitempty"` // sqlite database path
	Supabase   SupabaseConfig `json:"supabase"`
}

// SupabaseConfig configures the hosted backend client.
type SupabaseConfig struct {
	URL     string   `json:"url,omitempty"`
	Key     string   `json:"key,omitempty"` // service role key or ${VAR} indirection
	Timeout Duration `json:"timeout,omitempty"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string     `json:"driver"` // "openai", "anthropic", "ollama"
	Model     string     `json:"model"`
	BaseURL   string     `json:"base_url,omitempty"`
	Auth      AuthConfig `json:"auth"`
	MaxTokens int        `json:"max_tokens,omitempty"`
	Timeout   Duration   `json:"timeout,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // direct key or ${VAR} indirection
}

// EmbeddingConfig configures the embedder used for report search.
type EmbeddingConfig struct {
	Driver  string     `json:"driver"` // "openai", "ollama"
	Model   string     `json:"model"`
	BaseURL string     `json:"base_url,omitempty"`
	Auth    AuthConfig `json:"auth"`
	Dims    int        `json:"dims,omitempty"`
}

// RunnerConfig bounds the background crew runner.
type RunnerConfig struct {
	Workers   int      `json:"workers"`
	QueueSize int      `json:"queue_size"`
	Timeout   Duration `json:"timeout,omitempty"` // per-job execution timeout
}

// CrewsConfig configures crew definition loading.
type CrewsConfig struct {
	Dir string `json:"dir,omitempty"` // crew YAML directory (default: probed candidates)
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
