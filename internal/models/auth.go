package models

import (
	"fmt"
	"os"
	"strings"

	"github.com/dohr-michael/crewd/internal/config"
)

// ResolveAuth resolves the API key for a provider.
// Resolution order: direct api_key (with ${VAR} indirection) → driver
// default env var.
func ResolveAuth(cfg config.ProviderConfig) (string, error) {
	if key := resolveIndirect(cfg.Auth.APIKey); key != "" {
		return key, nil
	}

	switch strings.ToLower(cfg.Driver) {
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("OPENAI_API_KEY not set")
	case "anthropic":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("ANTHROPIC_API_KEY not set")
	default:
		return "", fmt.Errorf("unknown driver %q: cannot resolve auth", cfg.Driver)
	}
}

// resolveIndirect expands a ${VAR} value to the named env var, otherwise
// returns the trimmed value as-is.
func resolveIndirect(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}") {
		return os.Getenv(trimmed[2 : len(trimmed)-1])
	}
	return trimmed
}
