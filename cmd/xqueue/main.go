// xqueue queues text posts for X and delivers them at their scheduled time.
//
// Scheduling commands manage a local queue; delivery happens in short-lived
// `xqueue run-once` passes driven by cron or a systemd user timer. Exit codes
// of run-once matter to the timer: 0 pass completed, 2 another pass was
// already running, 1 pass-level fault.
package main

import (
	"errors"
	"fmt"
	"os"

	"xqueue/internal/cli"
	"xqueue/internal/lockfile"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	root := cli.NewRootCmd(version)
	if err := root.Execute(); err != nil {
		if errors.Is(err, lockfile.ErrBusy) {
			fmt.Fprintln(os.Stderr, "runner already active")
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
