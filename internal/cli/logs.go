package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"xqueue/internal/logtail"
)

func newLogsCmd(a *app) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the cron log written by timer-driven passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := logtail.New(a.cfg.CronLogPath(), a.log)
			if err != nil {
				return err
			}
			if !follow {
				last, err := t.LastLines(lines)
				if err != nil {
					return err
				}
				for _, ln := range last {
					a.out.Line("%s", ln)
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return t.Follow(ctx, cmd.OutOrStdout(), lines)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming as the log grows")

	return cmd
}
