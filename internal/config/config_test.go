package config

import (
	"testing"
	"time"
)

func TestLoadAppliesPipelineDefaults(t *testing.T) {
	t.Setenv("MAX_FILE_BYTES", "")
	t.Setenv("ALLOWED_FORMATS", "")
	t.Setenv("POLL_INTERVAL_SECONDS", "")
	t.Setenv("POLL_TIMEOUT_SECONDS", "")

	cfg := Load()
	if cfg.MaxFileBytes != 10*1024*1024 {
		t.Fatalf("expected default max file bytes, got %d", cfg.MaxFileBytes)
	}
	if len(cfg.AllowedFormats) != 3 || cfg.AllowedFormats[0] != "jpeg" {
		t.Fatalf("unexpected default formats: %v", cfg.AllowedFormats)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("expected 1s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.PollTimeout != 2*time.Minute {
		t.Fatalf("expected 2m poll timeout, got %s", cfg.PollTimeout)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("ALLOWED_FORMATS", "jpeg, pdf")
	t.Setenv("FLOW_MAX_RETAINED", "5")
	t.Setenv("FLOW_INCOMPLETE_RETENTION_SECONDS", "600")
	t.Setenv("DRAFT_HISTORY_DEPTH", "8")

	cfg := Load()
	if len(cfg.AllowedFormats) != 2 || cfg.AllowedFormats[1] != "pdf" {
		t.Fatalf("unexpected formats: %v", cfg.AllowedFormats)
	}
	if cfg.FlowMaxRetained != 5 {
		t.Fatalf("expected retained cap 5, got %d", cfg.FlowMaxRetained)
	}
	if cfg.IncompleteRetention != 10*time.Minute {
		t.Fatalf("expected 10m incomplete retention, got %s", cfg.IncompleteRetention)
	}
	if cfg.DraftHistoryDepth != 8 {
		t.Fatalf("expected history depth 8, got %d", cfg.DraftHistoryDepth)
	}
}

func TestLoadFallsBackOnBadInt(t *testing.T) {
	t.Setenv("FLOW_MAX_RETAINED", "many")

	cfg := Load()
	if cfg.FlowMaxRetained != 10 {
		t.Fatalf("expected fallback cap 10, got %d", cfg.FlowMaxRetained)
	}
}
