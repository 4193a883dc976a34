// Package cli defines the xqueue command tree.
//
// Commands are thin: they parse flags, open the file-backed components and
// hand off to the packages that own the behavior. Everything user-facing
// renders through cliout so --json works uniformly. run-once is the one
// command meant for machines (the timer) rather than people.
package cli
