package cli

import (
	"github.com/spf13/cobra"

	"xqueue/internal/timerctl"
)

func newTimerCmd(a *app) *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Manage the per-minute timer that triggers delivery passes",
	}
	cmd.PersistentFlags().StringVar(&backend, "backend", "cron", "Timer backend: cron or systemd")

	newBackend := func() (timerctl.Backend, error) {
		exe, err := exePath()
		if err != nil {
			return nil, err
		}
		return timerctl.New(backend, exe, a.cfg.CronLogPath(), a.log)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "on",
			Short: "Install the timer (replaces any previous entry)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				b, err := newBackend()
				if err != nil {
					return err
				}
				detail, err := b.Install(cmd.Context())
				if err != nil {
					return err
				}
				a.out.Line("timer installed: %s", detail)
				return nil
			},
		},
		&cobra.Command{
			Use:   "off",
			Short: "Remove the timer",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				b, err := newBackend()
				if err != nil {
					return err
				}
				n, err := b.Remove(cmd.Context())
				if err != nil {
					return err
				}
				if n == 0 {
					a.out.Line("no timer was installed")
				} else {
					a.out.Line("timer removed")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the timer is installed",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				b, err := newBackend()
				if err != nil {
					return err
				}
				st, err := b.Status(cmd.Context())
				if err != nil {
					return err
				}
				if a.out.JSONMode() {
					return a.out.JSON(st)
				}
				if !st.Installed {
					a.out.Line("timer (%s): not installed", st.Backend)
					return nil
				}
				a.out.Line("timer (%s): installed", st.Backend)
				if st.Detail != "" {
					a.out.Line("  %s", st.Detail)
				}
				if !st.NextRun.IsZero() {
					a.out.Line("  next run: %s", a.formatTime(st.NextRun))
				}
				return nil
			},
		},
	)

	return cmd
}
