package cli

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"xqueue/internal/journal"
	"xqueue/internal/schedule"
)

// newPostCmd posts immediately, bypassing the queue. The attempt is still
// journaled under a fresh id so history stays complete.
func newPostCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "post TEXT",
		Short: "Post immediately, skipping the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := args[0]
			if err := validateText(text); err != nil {
				return err
			}

			if !yes {
				fmt.Fprintf(cmd.ErrOrStderr(), "Post now? %q [y/N]: ", truncate(text, 60))
				sc := bufio.NewScanner(cmd.InOrStdin())
				if !sc.Scan() {
					return fmt.Errorf("aborted")
				}
				if ans := strings.ToLower(strings.TrimSpace(sc.Text())); ans != "y" && ans != "yes" {
					return fmt.Errorf("aborted")
				}
			}

			pub, err := a.newPublisher()
			if err != nil {
				return err
			}
			jrn, err := a.openJournal()
			if err != nil {
				return err
			}

			id := schedule.NewID()
			now := time.Now().UTC()
			res, pubErr := pub.Publish(cmd.Context(), text)
			if pubErr != nil {
				_ = jrn.Append(cmd.Context(), journal.Entry{
					ItemID:      id,
					AttemptedAt: now,
					Outcome:     journal.OutcomeFailure,
					Error:       pubErr.Error(),
					Text:        text,
				})
				return pubErr
			}
			if err := jrn.Append(cmd.Context(), journal.Entry{
				ItemID:      id,
				AttemptedAt: now,
				Outcome:     journal.OutcomeSuccess,
				RemoteID:    res.RemoteID,
				RemoteURL:   res.RemoteURL,
				Text:        text,
			}); err != nil {
				a.log.Error("journal append failed after immediate post")
			}

			if a.out.JSONMode() {
				return a.out.JSON(map[string]string{
					"id":         id,
					"remote_id":  res.RemoteID,
					"remote_url": res.RemoteURL,
				})
			}
			a.out.Line("posted %s", res.RemoteURL)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
