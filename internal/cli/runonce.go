package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"xqueue/internal/runner"
	"xqueue/internal/schedule"
)

// newRunOnceCmd is the timer entrypoint: one delivery pass, then exit. Its
// stdout lines are what lands in the cron log, so they stay terse and
// greppable. A busy lock surfaces as lockfile.ErrBusy for main to map to
// exit code 2.
func newRunOnceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Run one delivery pass over due posts (timer entrypoint)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			jrn, err := a.openJournal()
			if err != nil {
				return err
			}
			lock, err := a.newLock()
			if err != nil {
				return err
			}
			pub, err := a.newPublisher()
			if err != nil {
				return err
			}

			r := runner.New(store, jrn, lock, pub, a.cfg.RetryMax(), a.log)
			report, err := r.ProcessOnce(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}

			if a.out.JSONMode() {
				return a.out.JSON(report)
			}
			for _, res := range report.Results {
				switch res.Outcome {
				case runner.OutcomePosted:
					a.out.Line("posted id=%s url=%s text=%q", res.ID, res.RemoteURL, truncate(res.Text, 60))
				case runner.OutcomeAlreadyDone:
					a.out.Line("recovered id=%s url=%s (delivered by an earlier pass)", res.ID, res.RemoteURL)
				default:
					a.out.Line("failed id=%s attempts=%d terminal=%t error=%q text=%q",
						res.ID, res.Attempts, res.Terminal, res.Err, truncate(res.Text, 60))
				}
			}
			if report.Checked == 0 {
				a.log.Debug("pass complete; nothing due")
			}
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue and runner status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			items, err := store.List(cmd.Context(), schedule.Filter{})
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			counts := map[schedule.Status]int{}
			var due int
			var next time.Time
			for _, it := range items {
				counts[it.Status]++
				if it.Status != schedule.StatusPending {
					continue
				}
				if !it.ScheduledAt.After(now) {
					due++
				} else if next.IsZero() || it.ScheduledAt.Before(next) {
					next = it.ScheduledAt
				}
			}

			lock, err := a.newLock()
			if err != nil {
				return err
			}
			holder, active, err := lock.Held()
			if err != nil {
				return err
			}

			if a.out.JSONMode() {
				return a.out.JSON(map[string]any{
					"pending":       counts[schedule.StatusPending],
					"posted":        counts[schedule.StatusPosted],
					"failed":        counts[schedule.StatusFailed],
					"cancelled":     counts[schedule.StatusCancelled],
					"due_now":       due,
					"next_due":      next,
					"runner_active": active,
					"runner_pid":    holder.PID,
				})
			}

			a.out.Line("pending:   %d (due now: %d)", counts[schedule.StatusPending], due)
			a.out.Line("posted:    %d", counts[schedule.StatusPosted])
			a.out.Line("failed:    %d", counts[schedule.StatusFailed])
			a.out.Line("cancelled: %d", counts[schedule.StatusCancelled])
			if !next.IsZero() {
				a.out.Line("next due:  %s", a.formatTime(next))
			}
			if active {
				a.out.Line("runner:    active (pid %s since %s)", strconv.Itoa(holder.PID), a.formatTime(holder.AcquiredAt))
			} else {
				a.out.Line("runner:    idle")
			}
			return nil
		},
	}
}
