package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"xqueue/internal/primeslots"
	"xqueue/internal/schedule"
)

func newSlotsCmd(a *app) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show pending-queue coverage of the prime posting windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			items, err := store.List(cmd.Context(), schedule.Filter{
				Statuses: []schedule.Status{schedule.StatusPending},
			})
			if err != nil {
				return err
			}

			times := make([]time.Time, len(items))
			for i, it := range items {
				times[i] = it.ScheduledAt
			}
			coverage := primeslots.Coverage(times, time.Now().UTC(), days)

			if a.out.JSONMode() {
				return a.out.JSON(coverage)
			}

			headers := []string{"DAY (UTC)"}
			for _, s := range primeslots.Slots {
				headers = append(headers, s.Label)
			}
			rows := make([][]string, len(coverage))
			for i, day := range coverage {
				row := []string{day.Day.Format("2006-01-02")}
				for _, n := range day.Counts {
					if n == 0 {
						row = append(row, "·")
					} else {
						row = append(row, strconv.Itoa(n))
					}
				}
				rows[i] = row
			}
			return a.out.Table(headers, rows)
		},
	}

	cmd.Flags().IntVar(&days, "days", 3, "Number of days to show")

	return cmd
}
