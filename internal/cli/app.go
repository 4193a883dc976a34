package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"xqueue/internal/cliout"
	"xqueue/internal/config"
	"xqueue/internal/journal"
	"xqueue/internal/lockfile"
	"xqueue/internal/runner"
	"xqueue/internal/schedule"
	"xqueue/internal/xapi"
	logx "xqueue/pkg/logx"
)

// maxPostLength is the platform limit for a plain text post.
const maxPostLength = 280

// app carries state shared by every command: parsed config, output mode,
// logger and display timezone. It is populated once in the root command's
// PersistentPreRunE, after flags are parsed.
type app struct {
	cfgPath string
	jsonOut bool
	tzName  string

	cfg *config.Config
	out *cliout.Output
	log logx.Logger
	loc *time.Location
}

func (a *app) initialize() error {
	path := strings.TrimSpace(a.cfgPath)
	if path == "" {
		path = filepath.Join(config.DefaultBaseDir(), "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	a.cfg = cfg

	// Logs go to stderr so stdout stays parseable; the timer redirects both
	// into the cron log. A file sink, when configured, captures everything.
	console := cfg.Logging.Console == nil || *cfg.Logging.Console
	a.log = logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.loc = cfg.Location()
	if tz := strings.TrimSpace(a.tzName); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("unknown timezone %q", tz)
		}
		a.loc = loc
	}
	return nil
}

func (a *app) close() {
	if !a.log.IsZero() {
		_ = a.log.Close()
	}
}

func (a *app) openStore() (schedule.Store, error) {
	return schedule.Open(a.cfg.Storage, a.cfg.SchedulePath(), a.log)
}

func (a *app) openJournal() (*journal.Journal, error) {
	return journal.Open(a.cfg.JournalPath())
}

func (a *app) newLock() (*lockfile.Lock, error) {
	return lockfile.New(a.cfg.LockPath())
}

func (a *app) newPublisher() (runner.Publisher, error) {
	creds, err := xapi.LoadCredentials(a.cfg.API.EnvFile)
	if err != nil {
		return nil, err
	}
	timeout, err := config.ParseDurationField("api.timeout", a.cfg.API.Timeout)
	if err != nil {
		return nil, err
	}
	client := xapi.NewClient(xapi.Config{
		Endpoint:   a.cfg.API.Endpoint,
		Timeout:    timeout,
		RetryMax:   a.cfg.API.RetryMax,
		RatePerMin: a.cfg.API.RatePerMin,
	}, creds, a.log)
	return publisherAdapter{client}, nil
}

// publisherAdapter narrows the API client to the runner's Publish contract.
type publisherAdapter struct {
	c *xapi.Client
}

func (p publisherAdapter) Publish(ctx context.Context, text string) (runner.PublishResult, error) {
	res, err := p.c.Publish(ctx, text)
	if err != nil {
		return runner.PublishResult{}, err
	}
	return runner.PublishResult{RemoteID: res.ID, RemoteURL: res.URL}, nil
}

// validateText checks post body constraints shared by add, edit and post.
func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("post text is empty")
	}
	if n := utf8.RuneCountInString(text); n > maxPostLength {
		return fmt.Errorf("post text is %d characters; the limit is %d", n, maxPostLength)
	}
	return nil
}

// checkLead rejects schedule times closer than the configured minimum lead.
func (a *app) checkLead(at, now time.Time) error {
	lead, err := a.cfg.MinLead()
	if err != nil {
		return err
	}
	if at.Before(now.Add(lead)) {
		return fmt.Errorf("scheduled time %s is less than %s away (earliest allowed: %s)",
			a.formatTime(at), lead, a.formatTime(now.Add(lead)))
	}
	return nil
}

func (a *app) formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(a.loc).Format("2006-01-02 15:04 MST")
}

// truncate shortens text for table cells, collapsing newlines.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
