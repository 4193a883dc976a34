// Package timerctl installs and inspects the external per-minute timer that
// drives run-once passes.
//
// Two backends: the user's crontab (default, portable) and a systemd user
// timer (linux hosts where cron is absent). Both invoke the same
// `xqueue run-once` with output appended to the cron log; the delivery
// semantics live entirely in the runner, so the backends only differ in how
// the minute tick is produced.
package timerctl

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "xqueue/pkg/logx"
)

// Status describes the installed timer.
type Status struct {
	Backend   string
	Installed bool
	// Detail is the crontab line or systemd unit state.
	Detail  string
	NextRun time.Time
}

// Backend manages one kind of per-minute timer.
type Backend interface {
	// Install sets up the per-minute invocation, replacing any previous one.
	// It returns a human-readable description of what was installed.
	Install(ctx context.Context) (string, error)
	// Remove tears the timer down and reports how many entries were removed.
	Remove(ctx context.Context) (int, error)
	Status(ctx context.Context) (Status, error)
}

// New selects a backend. exe is the absolute path of the xqueue binary and
// logPath is where run-once output is appended.
func New(backend, exe, logPath string, log logx.Logger) (Backend, error) {
	if strings.TrimSpace(exe) == "" {
		return nil, errors.New("timerctl: executable path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "cron":
		return &cronBackend{exe: exe, logPath: logPath, log: log}, nil
	case "systemd":
		return &systemdBackend{exe: exe, logPath: logPath, log: log}, nil
	default:
		return nil, errors.New("timerctl: unknown backend " + backend + " (use cron or systemd)")
	}
}
