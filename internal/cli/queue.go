package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"xqueue/internal/journal"
	"xqueue/internal/schedule"
	"xqueue/internal/timeparse"
)

var itemHeaders = []string{"ID", "WHEN", "STATUS", "TRIES", "TEXT"}

func (a *app) itemRow(it schedule.Item) []string {
	return []string{
		it.ID,
		a.formatTime(it.ScheduledAt),
		string(it.Status),
		strconv.Itoa(it.RetryCount),
		truncate(it.Text, 48),
	}
}

func newAddCmd(a *app) *cobra.Command {
	var at string
	var tz string

	cmd := &cobra.Command{
		Use:   "add TEXT",
		Short: "Queue a post for future delivery",
		Long: `Queue a post. --at accepts an absolute time ('2026-03-01 18:30', RFC3339),
a bare clock 'HH:MM' meaning its next occurrence, or an offset like '30m' or '1d'.
Zone-less times are read in the display timezone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := args[0]
			if err := validateText(text); err != nil {
				return err
			}

			loc := a.loc
			if tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return fmt.Errorf("unknown timezone %q", tz)
				}
				loc = l
			}

			now := time.Now().UTC()
			when, err := timeparse.At(at, now, loc)
			if err != nil {
				return err
			}
			if err := a.checkLead(when, now); err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			it, err := store.Create(cmd.Context(), schedule.Item{
				ID:          schedule.NewID(),
				Text:        text,
				ScheduledAt: when,
				Timezone:    loc.String(),
				Status:      schedule.StatusPending,
			})
			if err != nil {
				return err
			}

			a.out.Success(fmt.Sprintf("Queued %s for %s", it.ID, a.formatTime(it.ScheduledAt)))
			return a.out.Print(itemHeaders, [][]string{a.itemRow(it)}, it)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "When to post (required)")
	cmd.Flags().StringVar(&tz, "tz", "", "Timezone for interpreting --at (default: display timezone)")
	cmd.MarkFlagRequired("at")

	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var all bool
	var since string
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued posts (pending only by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := schedule.Filter{}
			switch {
			case len(statuses) > 0:
				for _, s := range statuses {
					f.Statuses = append(f.Statuses, schedule.Status(s))
				}
			case !all:
				f.Statuses = []schedule.Status{schedule.StatusPending}
			}
			if since != "" {
				t, err := timeparse.Since(since, time.Now().UTC(), a.loc)
				if err != nil {
					return err
				}
				f.Since = t
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			items, err := store.List(cmd.Context(), f)
			if err != nil {
				return err
			}

			rows := make([][]string, len(items))
			for i, it := range items {
				rows[i] = a.itemRow(it)
			}
			return a.out.Print(itemHeaders, rows, items)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include delivered, failed and cancelled items")
	cmd.Flags().StringVar(&since, "since", "", "Only items scheduled at or after ('7d', '2026-03-01')")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (pending, posted, failed, cancelled)")

	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one post and its delivery history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			it, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			jrn, err := a.openJournal()
			if err != nil {
				return err
			}
			history, err := jrn.ListByItem(cmd.Context(), it.ID)
			if err != nil {
				return err
			}

			if a.out.JSONMode() {
				return a.out.JSON(struct {
					Item    schedule.Item `json:"item"`
					History any           `json:"history"`
				}{it, history})
			}

			a.out.Line("id:        %s", it.ID)
			a.out.Line("status:    %s", it.Status)
			a.out.Line("scheduled: %s", a.formatTime(it.ScheduledAt))
			a.out.Line("created:   %s", a.formatTime(it.CreatedAt))
			a.out.Line("updated:   %s", a.formatTime(it.UpdatedAt))
			if it.RetryCount > 0 {
				a.out.Line("tries:     %d", it.RetryCount)
			}
			if it.LastError != "" {
				a.out.Line("last err:  %s", it.LastError)
			}
			if it.RemoteURL != "" {
				a.out.Line("url:       %s", it.RemoteURL)
			}
			a.out.Line("text:      %s", it.Text)

			if len(history) > 0 {
				a.out.Line("")
				a.out.Line("attempts:")
				for _, e := range history {
					if e.Outcome == journal.OutcomeSuccess {
						a.out.Line("  %s  success  %s", a.formatTime(e.AttemptedAt), e.RemoteURL)
					} else {
						a.out.Line("  %s  failure  %s", a.formatTime(e.AttemptedAt), e.Error)
					}
				}
			}
			return nil
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	var text string
	var at string
	var tz string

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Edit a pending post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := schedule.Patch{}
			loc := a.loc

			if cmd.Flags().Changed("tz") {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return fmt.Errorf("unknown timezone %q", tz)
				}
				loc = l
				name := l.String()
				p.Timezone = &name
			}
			if cmd.Flags().Changed("text") {
				if err := validateText(text); err != nil {
					return err
				}
				p.Text = &text
			}
			if cmd.Flags().Changed("at") {
				now := time.Now().UTC()
				when, err := timeparse.At(at, now, loc)
				if err != nil {
					return err
				}
				if err := a.checkLead(when, now); err != nil {
					return err
				}
				p.ScheduledAt = &when
			}
			if p.Text == nil && p.ScheduledAt == nil && p.Timezone == nil {
				return fmt.Errorf("nothing to change (use --text, --at or --tz)")
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			it, err := store.Update(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			a.out.Success("Updated " + it.ID)
			return a.out.Print(itemHeaders, [][]string{a.itemRow(it)}, it)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "New post text")
	cmd.Flags().StringVar(&at, "at", "", "New scheduled time")
	cmd.Flags().StringVar(&tz, "tz", "", "New timezone for the item")

	return cmd
}

func newCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a pending post, keeping it in history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			it, err := store.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.out.Success("Cancelled " + it.ID)
			return a.out.Print(itemHeaders, [][]string{a.itemRow(it)}, it)
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove ID",
		Aliases: []string{"rm"},
		Short:   "Delete a pending post from the queue",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.out.Success("Removed " + args[0])
			return nil
		},
	}
}
