package config

import (
	"os"
	"path/filepath"
)

// CrewdPath returns the root directory for crewd data.
// It uses $CREWD_PATH if set, otherwise defaults to ~/.crewd.
func CrewdPath() string {
	if v := os.Getenv("CREWD_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".crewd")
	}
	return filepath.Join(home, ".crewd")
}

// ConfigPath returns the path to the crewd config file.
func ConfigPath() string {
	return filepath.Join(CrewdPath(), "config.jsonc")
}

// DotenvPath returns the path to the crewd .env file.
func DotenvPath() string {
	return filepath.Join(CrewdPath(), ".env")
}

// DefaultDSN returns the default sqlite database path.
func DefaultDSN() string {
	return filepath.Join(CrewdPath(), "tasks.db")
}

// ReportsDirCandidates lists report directory locations in probe order.
// The Docker container path comes first so containerized deployments land
// on the mounted volume.
func ReportsDirCandidates() []string {
	return []string{
		"/app/reports",
		filepath.Join(CrewdPath(), "reports"),
		"reports",
	}
}

// TasksDirCandidates lists task directory locations in probe order.
func TasksDirCandidates() []string {
	return []string{
		"/app/tasks",
		filepath.Join(CrewdPath(), "tasks"),
		"tasks",
	}
}

// CrewsDirCandidates lists crew definition directory locations in probe order.
func CrewsDirCandidates() []string {
	return []string{
		"/app/crews",
		filepath.Join(CrewdPath(), "crews"),
		"crews",
	}
}

// ResolveWritableDir returns the first candidate directory that can be
// created and written to. Every candidate is probed with a throwaway file,
// since a directory that exists may still be read-only (bind mounts).
// Falls back to the current working directory when nothing is writable.
func ResolveWritableDir(candidates []string) string {
	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		probe := filepath.Join(dir, ".probe_write")
		if err := os.WriteFile(probe, []byte("probe"), 0o644); err != nil {
			continue
		}
		os.Remove(probe)
		return dir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}
