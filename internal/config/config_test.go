package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_TOKEN", "secret123")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	contents := `{
		"lichess": {"account": "mybot", "accessToken": "${TEST_TOKEN}"},
		"chat": {"channel": "#mychannel"}
	}`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Lichess.AccessToken != "secret123" {
		t.Fatalf("AccessToken = %q, want secret123", cfg.Lichess.AccessToken)
	}
	if cfg.Lichess.BaseURL != "https://lichess.org" {
		t.Fatalf("BaseURL = %q, want default", cfg.Lichess.BaseURL)
	}
	if cfg.Admin.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr = %q, want default", cfg.Admin.ListenAddr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path.json"); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
