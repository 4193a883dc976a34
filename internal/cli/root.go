package cli

import (
	"os"

	"github.com/spf13/cobra"

	"xqueue/internal/cliout"
)

// NewRootCmd builds the full command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "xqueue",
		Short:         "Queue text posts for X and deliver them on schedule",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initialize(); err != nil {
				return err
			}
			a.out = cliout.New(a.jsonOut, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Config file (default ~/.xqueue/config.yaml)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Output in JSON format")
	root.PersistentFlags().StringVar(&a.tzName, "tz", "", "Display timezone override (e.g. 'Europe/Berlin')")

	root.AddCommand(
		newAddCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newEditCmd(a),
		newCancelCmd(a),
		newRemoveCmd(a),
		newPostCmd(a),
		newRunOnceCmd(a),
		newStatusCmd(a),
		newTimerCmd(a),
		newAuthCmd(a),
		newLogsCmd(a),
		newSlotsCmd(a),
	)

	return root
}

// exePath resolves the absolute binary path for timer installation.
func exePath() (string, error) {
	return os.Executable()
}
