package main

import (
	"github.com/spf13/cobra"
)

// mainify wraps a non-standard Cobra entry point (one returning an error)
// and produces a standard Cobra entry point, so that entry points can
// rely on returning errors (for cleanup via defer) rather than
// terminating the process directly.
func mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			fatal(err)
		}
	}
}
