package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileIsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RetryMax() != DefaultRetryMax {
		t.Fatalf("expected default retry max %d, got %d", DefaultRetryMax, cfg.RetryMax())
	}
	lead, err := cfg.MinLead()
	if err != nil {
		t.Fatalf("MinLead: %v", err)
	}
	if lead != DefaultMinLead {
		t.Fatalf("expected default min lead %v, got %v", DefaultMinLead, lead)
	}
	if cfg.Location().String() != DefaultTimezone {
		t.Fatalf("expected default timezone %s, got %s", DefaultTimezone, cfg.Location())
	}
}

func TestParseYAML(t *testing.T) {
	raw := `
base_dir: /tmp/xq
timezone: Europe/Berlin
storage:
  driver: file
runner:
  retry_max: 3
  min_lead: 10m
api:
  rate_per_min: 5
`
	cfg, err := Parse("config.yaml", []byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Timezone != "Europe/Berlin" {
		t.Fatalf("expected timezone Europe/Berlin, got %q", cfg.Timezone)
	}
	if cfg.RetryMax() != 3 {
		t.Fatalf("expected retry_max 3, got %d", cfg.RetryMax())
	}
	lead, err := cfg.MinLead()
	if err != nil {
		t.Fatalf("MinLead: %v", err)
	}
	if lead != 10*time.Minute {
		t.Fatalf("expected 10m lead, got %v", lead)
	}
	if got := cfg.SchedulePath(); got != "/tmp/xq/schedule.json" {
		t.Fatalf("unexpected schedule path %q", got)
	}
	if got := cfg.JournalPath(); got != "/tmp/xq/journal.jsonl" {
		t.Fatalf("unexpected journal path %q", got)
	}
	if got := cfg.LockPath(); got != "/tmp/xq/runner.lock" {
		t.Fatalf("unexpected lock path %q", got)
	}
	if got := cfg.CronLogPath(); got != "/tmp/xq/cron.log" {
		t.Fatalf("unexpected cron log path %q", got)
	}
}

func TestParseJSON(t *testing.T) {
	raw := `{"timezone":"UTC","runner":{"retry_max":1}}`
	cfg, err := Parse("config.json", []byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Timezone != "UTC" || cfg.RetryMax() != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse("config.yaml", []byte("retri_max: 3\n")); err == nil {
		t.Fatalf("expected unknown-field error")
	}
	if _, err := Parse("config.json", []byte(`{"runner":{"retries":3}}`)); err == nil {
		t.Fatalf("expected unknown nested field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	if _, err := Parse("config.json", []byte(`{"timezone":"UTC"}{"timezone":"UTC"}`)); err == nil {
		t.Fatalf("expected trailing-data error")
	}
}

func TestExplicitPathsOverrideBaseDir(t *testing.T) {
	raw := `
base_dir: /tmp/xq
storage:
  path: /data/sched.json
runner:
  journal_path: /data/j.jsonl
`
	cfg, err := Parse("config.yaml", []byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := cfg.SchedulePath(); got != "/data/sched.json" {
		t.Fatalf("unexpected schedule path %q", got)
	}
	if got := cfg.JournalPath(); got != "/data/j.jsonl" {
		t.Fatalf("unexpected journal path %q", got)
	}
	// Unset paths still derive from base_dir.
	if got := cfg.LockPath(); got != "/tmp/xq/runner.lock" {
		t.Fatalf("unexpected lock path %q", got)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{Timezone: "Atlantis/Nowhere"}
	if got := cfg.Location(); got != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", got)
	}
}

func TestParseDurationField(t *testing.T) {
	d, err := ParseDurationField("api.timeout", "45s")
	if err != nil {
		t.Fatalf("ParseDurationField: %v", err)
	}
	if d != 45*time.Second {
		t.Fatalf("expected 45s, got %v", d)
	}

	if d, err := ParseDurationField("api.timeout", ""); err != nil || d != 0 {
		t.Fatalf("expected zero for empty field, got %v err=%v", d, err)
	}

	_, err = ParseDurationField("api.timeout", "not-a-duration")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "api.timeout") {
		t.Fatalf("expected field name in error, got %v", err)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("timezone: UTC\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timezone != "UTC" {
		t.Fatalf("expected UTC, got %q", cfg.Timezone)
	}
}
