package config

import (
	"path/filepath"
	"testing"
)

func TestCrewdPath_EnvOverride(t *testing.T) {
	t.Setenv("CREWD_PATH", "/tmp/crewd-test")
	if got := CrewdPath(); got != "/tmp/crewd-test" {
		t.Errorf("CrewdPath() = %q, want /tmp/crewd-test", got)
	}
	if got := ConfigPath(); got != "/tmp/crewd-test/config.jsonc" {
		t.Errorf("ConfigPath() = %q", got)
	}
}

func TestResolveWritableDir_FirstWritableWins(t *testing.T) {
	base := t.TempDir()
	first := filepath.Join(base, "a")
	second := filepath.Join(base, "b")

	got := ResolveWritableDir([]string{first, second})
	if got != first {
		t.Errorf("ResolveWritableDir = %q, want %q", got, first)
	}
}

func TestResolveWritableDir_SkipsUncreatable(t *testing.T) {
	base := t.TempDir()
	// A path below /proc cannot be created.
	bad := "/proc/crewd-cannot-exist/reports"
	good := filepath.Join(base, "reports")

	got := ResolveWritableDir([]string{bad, good})
	if got != good {
		t.Errorf("ResolveWritableDir = %q, want %q", got, good)
	}
}
