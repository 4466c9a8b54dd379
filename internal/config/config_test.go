package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"trace", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"  debug  ", slog.LevelDebug, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reverie.yaml")
	content := `
llm:
  base_url: http://localhost:11434
  model: test-model
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Budget.ContextTokens != 64000 {
		t.Errorf("ContextTokens = %d, want 64000", cfg.Budget.ContextTokens)
	}
	if cfg.Budget.RollingOverlap != 3 {
		t.Errorf("RollingOverlap = %d, want 3", cfg.Budget.RollingOverlap)
	}
	if cfg.Budget.FallbackKeep != 15 {
		t.Errorf("FallbackKeep = %d, want 15", cfg.Budget.FallbackKeep)
	}
	if cfg.Scheduler.MinSpacing != 2*time.Second {
		t.Errorf("MinSpacing = %v, want 2s", cfg.Scheduler.MinSpacing)
	}
	if cfg.Scheduler.CallTimeout != 55*time.Second {
		t.Errorf("CallTimeout = %v, want 55s", cfg.Scheduler.CallTimeout)
	}
	if cfg.Heartbeat.Interval != 30*time.Minute {
		t.Errorf("Heartbeat.Interval = %v, want 30m", cfg.Heartbeat.Interval)
	}
	if cfg.LLM.UtilityModel != "test-model" {
		t.Errorf("UtilityModel = %q, want fallback to Model", cfg.LLM.UtilityModel)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reverie.yaml")
	content := `
llm:
  base_url: http://localhost:11434
  model: test-model
  api_key: from-file
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("REVERIE_LLM_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env override", cfg.LLM.APIKey)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}
