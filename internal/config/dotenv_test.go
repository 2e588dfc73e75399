package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nCREWD_DOTENV_A=hello\nexport CREWD_DOTENV_B=\"quoted value\"\nbroken line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("CREWD_DOTENV_A", "")
	os.Unsetenv("CREWD_DOTENV_A")
	os.Unsetenv("CREWD_DOTENV_B")

	if err := LoadDotenv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("CREWD_DOTENV_A"); got != "hello" {
		t.Errorf("CREWD_DOTENV_A = %q, want hello", got)
	}
	if got := os.Getenv("CREWD_DOTENV_B"); got != "quoted value" {
		t.Errorf("CREWD_DOTENV_B = %q, want %q", got, "quoted value")
	}
}

func TestLoadDotenv_NeverOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CREWD_DOTENV_C=from_file\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("CREWD_DOTENV_C", "from_env")

	if err := LoadDotenv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("CREWD_DOTENV_C"); got != "from_env" {
		t.Errorf("CREWD_DOTENV_C = %q, want from_env", got)
	}
}

func TestLoadDotenv_MissingFile(t *testing.T) {
	if err := LoadDotenv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}
