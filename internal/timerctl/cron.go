package timerctl

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "xqueue/pkg/logx"
)

// cronTag marks our crontab entry so install/remove never touch anything
// else in the user's crontab.
const cronTag = "# xqueue: run-once"

type cronBackend struct {
	exe     string
	logPath string
	log     logx.Logger
}

func (b *cronBackend) Install(ctx context.Context) (string, error) {
	if _, err := exec.LookPath("crontab"); err != nil {
		return "", fmt.Errorf("crontab command not found on this system")
	}
	lines, err := readCrontab(ctx)
	if err != nil {
		return "", err
	}
	lines = stripTagged(lines)
	entry := cronLine(b.exe, b.logPath)
	lines = append(lines, entry)
	if err := writeCrontab(ctx, lines); err != nil {
		return "", err
	}
	b.log.Info("cron entry installed", logx.String("entry", entry))
	return entry, nil
}

func (b *cronBackend) Remove(ctx context.Context) (int, error) {
	if _, err := exec.LookPath("crontab"); err != nil {
		return 0, fmt.Errorf("crontab command not found on this system")
	}
	lines, err := readCrontab(ctx)
	if err != nil {
		return 0, err
	}
	kept := stripTagged(lines)
	removed := len(lines) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := writeCrontab(ctx, kept); err != nil {
		return 0, err
	}
	b.log.Info("cron entry removed", logx.Int("count", removed))
	return removed, nil
}

func (b *cronBackend) Status(ctx context.Context) (Status, error) {
	st := Status{Backend: "cron"}
	lines, err := readCrontab(ctx)
	if err != nil {
		return st, err
	}
	for _, ln := range lines {
		if strings.Contains(ln, cronTag) {
			st.Installed = true
			st.Detail = ln
			if next, ok := nextFire(ln, time.Now()); ok {
				st.NextRun = next
			}
			return st, nil
		}
	}
	return st, nil
}

// cronLine renders the per-minute entry.
func cronLine(exe, logPath string) string {
	return fmt.Sprintf("* * * * * %s run-once >> %s 2>&1 %s", exe, logPath, cronTag)
}

// stripTagged drops every line carrying our tag.
func stripTagged(lines []string) []string {
	out := lines[:0:0]
	for _, ln := range lines {
		if !strings.Contains(ln, cronTag) {
			out = append(out, ln)
		}
	}
	return out
}

// nextFire parses the schedule portion of a crontab line and computes the
// next fire time after now.
func nextFire(line string, now time.Time) (time.Time, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return time.Time{}, false
	}
	sched, err := cron.ParseStandard(strings.Join(fields[:5], " "))
	if err != nil {
		return time.Time{}, false
	}
	return sched.Next(now), true
}

func readCrontab(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "crontab", "-l")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		// "no crontab for user" exits 1; treat as empty.
		if _, ok := err.(*exec.ExitError); ok {
			return nil, nil
		}
		return nil, err
	}
	var lines []string
	for _, ln := range strings.Split(out.String(), "\n") {
		if ln = strings.TrimRight(ln, "\r"); ln != "" || len(lines) > 0 {
			lines = append(lines, ln)
		}
	}
	// Drop trailing blank lines.
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}

func writeCrontab(ctx context.Context, lines []string) error {
	text := strings.Join(lines, "\n")
	if text != "" {
		text += "\n"
	}
	cmd := exec.CommandContext(ctx, "crontab", "-")
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to write crontab: %w", err)
	}
	return nil
}
