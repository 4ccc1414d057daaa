// Command dhb is the command-line front end for disk-hog-backup: it
// parses flags, then drives pkg/backup's orchestrator.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timabell/disk-hog-backup/pkg/dhb"
)

func rootMain(command *cobra.Command, arguments []string) {
	if rootConfiguration.version {
		fmt.Println(dhb.Version)
		return
	}
	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "dhb",
	Short: "dhb performs incremental, space-efficient directory backups using content-addressed hardlink reuse.",
	Run:   rootMain,
}

var rootConfiguration struct {
	help    bool
	version bool
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")

	cobra.EnableCommandSorting = false
	cobra.MousetrapHelpText = ""

	rootCommand.AddCommand(
		backupCommand,
		versionCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fatal(err)
	}
}
