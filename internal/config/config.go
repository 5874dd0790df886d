package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Tracking TrackingConfig `yaml:"tracking"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Worker   WorkerConfig   `yaml:"worker"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// BaseURL is the public address used to build tracking pixel links.
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type TrackingConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	// ResumeDir holds uploaded attachment files.
	ResumeDir string `yaml:"resume_dir"`
}

// AuthConfig maps API keys to owner identities. Authentication itself is
// an external concern; the engine trusts the resolved owner.
type AuthConfig struct {
	APIKeys map[string]string `yaml:"api_keys"` // key -> owner id
}

type SecretsConfig struct {
	// Key seals per-owner provider credentials at rest.
	Key string `yaml:"key"`
}

type WorkerConfig struct {
	// Mode selects how campaigns are driven: "immediate" runs a campaign
	// to completion inside the starting process, "periodic" relies on the
	// cron schedule (or the /process endpoint) to advance them in batches.
	Mode               string `yaml:"mode"`
	CronSpec           string `yaml:"cron_spec"`
	TimeBudgetSeconds  int    `yaml:"time_budget_seconds"`
	MaxCampaignsPerRun int    `yaml:"max_campaigns_per_run"`
	MaxBatchPerRun     int    `yaml:"max_batch_per_run"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	SetDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func SetDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8090"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/outreach/app.db"
	}
	if cfg.Tracking.Path == "" {
		cfg.Tracking.Path = "/var/lib/outreach/tracking.db"
	}
	if cfg.Storage.ResumeDir == "" {
		cfg.Storage.ResumeDir = "/var/lib/outreach/resumes"
	}
	if cfg.Worker.Mode == "" {
		cfg.Worker.Mode = "periodic"
	}
	if cfg.Worker.CronSpec == "" {
		cfg.Worker.CronSpec = "@every 1m"
	}
	if cfg.Worker.TimeBudgetSeconds == 0 {
		cfg.Worker.TimeBudgetSeconds = 50
	}
	if cfg.Worker.MaxCampaignsPerRun == 0 {
		cfg.Worker.MaxCampaignsPerRun = 5
	}
	if cfg.Worker.MaxBatchPerRun == 0 {
		cfg.Worker.MaxBatchPerRun = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Secrets.Key == "" {
		return fmt.Errorf("secrets.key is required")
	}
	if len(cfg.Secrets.Key) < 32 {
		return fmt.Errorf("secrets.key must be at least 32 characters")
	}
	if cfg.Worker.Mode != "immediate" && cfg.Worker.Mode != "periodic" {
		return fmt.Errorf("worker.mode must be \"immediate\" or \"periodic\", got %q", cfg.Worker.Mode)
	}
	if len(cfg.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys must define at least one key")
	}
	return nil
}
