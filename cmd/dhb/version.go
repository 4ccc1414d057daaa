package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timabell/disk-hog-backup/pkg/dhb"
)

func versionMain(command *cobra.Command, arguments []string) error {
	fmt.Println(dhb.Version)
	return nil
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run:   mainify(versionMain),
}

var versionConfiguration struct {
	// help indicates whether help information should be shown for the
	// command.
	help bool
}

func init() {
	flags := versionCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&versionConfiguration.help, "help", "h", false, "Show help information")
}
