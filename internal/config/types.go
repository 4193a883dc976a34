package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the on-disk configuration for xqueue.
//
// All fields are optional; zero values fall back to defaults under the base
// directory (~/.xqueue). Durations are Go duration strings (e.g. "30s").
type Config struct {
	// BaseDir holds the schedule, journal, lock and cron log files.
	BaseDir string `json:"base_dir,omitempty"`

	// Timezone is the display timezone for times printed by the CLI and the
	// default zone for interpreting zone-less time specs. Stored instants are
	// always UTC.
	Timezone string `json:"timezone,omitempty"`

	Logging LoggingConfig `json:"logging,omitempty"`

	// Storage controls the schedule store backend.
	//
	// Example:
	//
	//	"storage": { "driver": "file", "path": "~/.xqueue/schedule.json" }
	Storage StorageConfig `json:"storage,omitempty"`

	Runner RunnerConfig `json:"runner,omitempty"`

	API APIConfig `json:"api,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"` // pointer: distinguish omitted from explicit false
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the schedule store.
//
// Driver values:
//   - "file": single JSON document, replaced atomically on every mutation
//   - "sqlite": SQLite database file (build with -tags sqlite)
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// RunnerConfig controls delivery behavior of run-once passes.
type RunnerConfig struct {
	// RetryMax caps failed delivery attempts per item. Kept deliberately low:
	// a reported failure can be a false negative (the post landed but the ack
	// was lost), so the runner prefers missing a post over duplicating one.
	RetryMax int `json:"retry_max,omitempty"`

	// MinLead is the minimum distance in the future required when scheduling.
	MinLead string `json:"min_lead,omitempty"`

	JournalPath string `json:"journal_path,omitempty"`
	LockPath    string `json:"lock_path,omitempty"`
	CronLogPath string `json:"cron_log_path,omitempty"`
}

// APIConfig controls the X API client.
type APIConfig struct {
	Endpoint   string `json:"endpoint,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
	RatePerMin int    `json:"rate_per_min,omitempty"`

	// EnvFile points at the dotenv file holding credentials.
	// Empty means "search upward from the working directory".
	EnvFile string `json:"env_file,omitempty"`
}

const (
	DefaultTimezone = "Asia/Hong_Kong"
	DefaultRetryMax = 2
	DefaultMinLead  = 5 * time.Minute
)

// DefaultBaseDir returns ~/.xqueue, falling back to ./.xqueue when the home
// directory cannot be resolved.
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".xqueue"
	}
	return filepath.Join(home, ".xqueue")
}

func (c *Config) baseDir() string {
	if strings.TrimSpace(c.BaseDir) != "" {
		return expandHome(c.BaseDir)
	}
	return DefaultBaseDir()
}

func (c *Config) SchedulePath() string {
	if p := strings.TrimSpace(c.Storage.Path); p != "" {
		return expandHome(p)
	}
	return filepath.Join(c.baseDir(), "schedule.json")
}

func (c *Config) JournalPath() string {
	if p := strings.TrimSpace(c.Runner.JournalPath); p != "" {
		return expandHome(p)
	}
	return filepath.Join(c.baseDir(), "journal.jsonl")
}

func (c *Config) LockPath() string {
	if p := strings.TrimSpace(c.Runner.LockPath); p != "" {
		return expandHome(p)
	}
	return filepath.Join(c.baseDir(), "runner.lock")
}

// CronLogPath is where the installed timer redirects run-once output.
func (c *Config) CronLogPath() string {
	if p := strings.TrimSpace(c.Runner.CronLogPath); p != "" {
		return expandHome(p)
	}
	return filepath.Join(c.baseDir(), "cron.log")
}

func (c *Config) RetryMax() int {
	if c.Runner.RetryMax > 0 {
		return c.Runner.RetryMax
	}
	return DefaultRetryMax
}

func (c *Config) MinLead() (time.Duration, error) {
	return ParseDurationOrDefault("runner.min_lead", c.Runner.MinLead, DefaultMinLead)
}

// Location resolves the display timezone. Unknown names fall back to UTC.
func (c *Config) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
