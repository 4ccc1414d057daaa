package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timabell/disk-hog-backup/pkg/backup"
	"github.com/timabell/disk-hog-backup/pkg/logging"
	"github.com/timabell/disk-hog-backup/pkg/progress"
)

func backupMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 0 {
		return errors.New("backup does not accept positional arguments, use --source/--destination")
	}
	if backupConfiguration.source == "" {
		return errors.New("--source is required")
	}
	if backupConfiguration.destination == "" {
		return errors.New("--destination is required")
	}

	logger := logging.RootLogger
	if backupConfiguration.quiet {
		logger = logging.NewLogger(logging.LevelError)
	}

	var sink progress.Sink = progress.NoopSink{}
	if !backupConfiguration.quiet {
		sink = progress.NewAutoTerminalSink(os.Stdout)
	}

	result, err := backup.Run(context.Background(), backup.Options{
		Source:          backupConfiguration.source,
		Destination:     backupConfiguration.destination,
		ChunkSize:       backupConfiguration.chunkSize,
		MemoryCeiling:   backupConfiguration.memoryCeiling,
		AutoDelete:      backupConfiguration.autoDelete,
		ReclaimExponent: backupConfiguration.reclaimExponent,
		IgnorePatterns:  backupConfiguration.ignore,
		Logger:          logger,
		Progress:        sink,
	})
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	fmt.Printf(
		"Backup set %s complete: %d hardlinked, %d copied\n",
		result.SetName,
		result.Stats.FilesHardlinked,
		result.Stats.FilesCopied,
	)
	return nil
}

var backupCommand = &cobra.Command{
	Use:   "backup",
	Short: "Create a new backup set",
	Run:   mainify(backupMain),
}

var backupConfiguration struct {
	// source is the directory tree being backed up.
	source string
	// destination is the directory under which timestamped backup set
	// directories are created.
	destination string
	// chunkSize is the pipeline's fixed read size in bytes.
	chunkSize int
	// memoryCeiling bounds the aggregate in-flight buffered bytes across
	// all files, in bytes.
	memoryCeiling uint64
	// autoDelete enables the auto-reclaim hook.
	autoDelete bool
	// reclaimExponent controls how strongly auto-reclaim favors closely
	// spaced sets.
	reclaimExponent float64
	// ignore holds extra .dhbignore-syntax patterns applied at the
	// source root.
	ignore []string
	// quiet disables the progress line and non-error log output.
	quiet bool
	// help indicates whether help information should be shown for the
	// command.
	help bool
}

func init() {
	flags := backupCommand.Flags()
	flags.SortFlags = false
	flags.StringVar(&backupConfiguration.source, "source", "", "Directory tree to back up")
	flags.StringVar(&backupConfiguration.destination, "destination", "", "Directory under which backup sets are created")
	flags.IntVar(&backupConfiguration.chunkSize, "chunk-size", 0, "Pipeline read chunk size in bytes (default 256 KiB)")
	flags.Uint64Var(&backupConfiguration.memoryCeiling, "memory-ceiling", 0, "Global in-flight memory ceiling in bytes (default 4 GiB)")
	flags.BoolVar(&backupConfiguration.autoDelete, "auto-delete", false, "Reclaim space by deleting older backup sets when needed")
	flags.Float64Var(&backupConfiguration.reclaimExponent, "reclaim-exponent", 0, "Auto-reclaim weighting exponent (default 2.0)")
	flags.StringSliceVar(&backupConfiguration.ignore, "ignore", nil, "Extra .dhbignore-syntax pattern, may be repeated")
	flags.BoolVarP(&backupConfiguration.quiet, "quiet", "q", false, "Suppress progress output")
	flags.BoolVarP(&backupConfiguration.help, "help", "h", false, "Show help information")
}
