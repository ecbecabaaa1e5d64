package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("../../config/config.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.Simulation.Formation != "Stofm" {
		t.Errorf("Expected formation Stofm, got %q", cfg.Simulation.Formation)
	}
	if cfg.Simulator.Seed != 7 {
		t.Errorf("Expected simulator seed 7, got %d", cfg.Simulator.Seed)
	}
	if !cfg.Storage.ArchiveResults {
		t.Errorf("Expected archive_results to be enabled")
	}
	if cfg.Search.Horizon != 10 || cfg.Search.StepDistance != 2000 {
		t.Errorf("unexpected search horizon/step: %d/%g", cfg.Search.Horizon, cfg.Search.StepDistance)
	}
	if got := cfg.Search.PolicyGradient.Hidden; len(got) != 2 || got[0] != 35 || got[1] != 35 {
		t.Errorf("Expected hidden [35 35], got %v", got)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfigInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("search:\n  horizon: 99\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "horizon") {
		t.Fatalf("expected horizon validation error, got %v", err)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := validateConfig(DefaultConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"no listeners", func(c *Config) { c.Server.HTTPAddr, c.Server.GRPCAddr = "", "" }, "http_addr"},
		{"exec without command", func(c *Config) { c.Simulator.Backend = "exec" }, "command"},
		{"unknown backend", func(c *Config) { c.Simulator.Backend = "matlab" }, "backend"},
		{"unknown source", func(c *Config) { c.Formations.Source = "mongo" }, "source"},
		{"archive without path", func(c *Config) { c.Storage.ArchiveResults, c.Storage.Path = true, "" }, "archive_results"},
		{"bad residuals", func(c *Config) { c.Simulation.CO2Residual = 0.95 }, "co2_residual"},
		{"negative horizon", func(c *Config) { c.Search.Horizon = -1 }, "horizon"},
		{"zero step", func(c *Config) { c.Search.StepDistance = 0 }, "step_distance"},
		{"zero restarts", func(c *Config) { c.Search.Greedy.Restarts = 0 }, "restarts"},
		{"discount above one", func(c *Config) { c.Search.PolicyGradient.Discount = 1.5 }, "discount"},
		{"empty hidden", func(c *Config) { c.Search.PolicyGradient.Hidden = nil }, "hidden"},
		{"unknown convergence", func(c *Config) { c.Search.PolicyGradient.Convergence.Strategy = "annealing" }, "convergence"},
		{"negative tolerance", func(c *Config) {
			c.Search.PolicyGradient.Convergence.Strategy = "plateau"
			c.Search.PolicyGradient.Convergence.Tolerance = -1
		}, "tolerance"},
		{"bad backoff", func(c *Config) { c.Notifications.Backoff = "fibonacci" }, "backoff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
