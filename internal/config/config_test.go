package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
secrets:
  key: "0123456789abcdef0123456789abcdef"
auth:
  api_keys:
    test-key: owner-1
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Worker.Mode != "periodic" {
		t.Errorf("Mode = %q, want periodic", cfg.Worker.Mode)
	}
	if cfg.Worker.CronSpec != "@every 1m" {
		t.Errorf("CronSpec = %q", cfg.Worker.CronSpec)
	}
	if cfg.Worker.TimeBudgetSeconds != 50 || cfg.Worker.MaxCampaignsPerRun != 5 || cfg.Worker.MaxBatchPerRun != 10 {
		t.Errorf("worker bounds = %d/%d/%d", cfg.Worker.TimeBudgetSeconds, cfg.Worker.MaxCampaignsPerRun, cfg.Worker.MaxBatchPerRun)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Auth.APIKeys["test-key"] != "owner-1" {
		t.Errorf("APIKeys = %v", cfg.Auth.APIKeys)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  listen_addr: ":9000"
  base_url: "https://mail.example.com"
worker:
  mode: immediate
secrets:
  key: "0123456789abcdef0123456789abcdef"
auth:
  api_keys:
    k: o
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" || cfg.Server.BaseURL != "https://mail.example.com" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Worker.Mode != "immediate" {
		t.Errorf("Mode = %q", cfg.Worker.Mode)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing secret", "auth:\n  api_keys:\n    k: o\n"},
		{"short secret", "secrets:\n  key: short\nauth:\n  api_keys:\n    k: o\n"},
		{"no api keys", "secrets:\n  key: \"0123456789abcdef0123456789abcdef\"\n"},
		{"bad mode", minimalConfig + "worker:\n  mode: sometimes\n"},
	}

	for _, tt := range tests {
		if _, err := Load(writeConfig(t, tt.content)); err == nil {
			t.Errorf("%s: Load() succeeded, want error", tt.name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() on missing file succeeded")
	}
}
