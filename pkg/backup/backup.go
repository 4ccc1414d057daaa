// Package backup implements the orchestrator that wires together the
// directory walker (pkg/walk), the generation decision table
// (pkg/generation), the set namer/locator (pkg/setid), the digest index
// (pkg/digestindex), telemetry (pkg/telemetry), the memory ceiling
// (pkg/memory), the disk-space probe (pkg/diskspace), the auto-reclaim
// hook (pkg/reclaim), and a progress sink (pkg/progress) into a single
// backup run.
//
// This is this repository's analogue of the teacher's
// pkg/synchronization/controller package: one type that owns a run's
// full lifecycle end to end, constructing every lower-level component
// and threading a single context through them, rather than leaving
// callers to assemble the pieces themselves.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/timabell/disk-hog-backup/pkg/digestindex"
	"github.com/timabell/disk-hog-backup/pkg/diskspace"
	"github.com/timabell/disk-hog-backup/pkg/logging"
	"github.com/timabell/disk-hog-backup/pkg/memory"
	"github.com/timabell/disk-hog-backup/pkg/setid"
	"github.com/timabell/disk-hog-backup/pkg/telemetry"
	"github.com/timabell/disk-hog-backup/pkg/walk"
)

// StatsFileName is the fixed name of the end-of-run stats file written
// into each set's root.
const StatsFileName = "disk-hog-backup-stats.txt"

// Result summarizes a completed backup run.
type Result struct {
	// SetPath is the absolute path to the newly created, now-complete
	// backup set.
	SetPath string
	// SetName is that set's directory name.
	SetName string
	// Stats is the final telemetry snapshot for the run.
	Stats telemetry.Snapshot
}

// Run performs one full backup of opts.Source into a new timestamped set
// under opts.Destination, returning once the set is complete (digest
// index, sidecar, and READY sentinel all persisted) and its stats file
// has been written.
func Run(ctx context.Context, opts Options) (Result, error) {
	logger := opts.logger()

	if info, err := os.Stat(opts.Source); err != nil {
		return Result{}, fmt.Errorf("unable to access source: %w", err)
	} else if !info.IsDir() {
		return Result{}, fmt.Errorf("source is not a directory: %s", opts.Source)
	}
	if err := os.MkdirAll(opts.Destination, 0755); err != nil {
		return Result{}, fmt.Errorf("unable to create destination: %w", err)
	}

	sizeCalcStart := time.Now()
	totalBytes, err := walk.EstimateSize(opts.Source, opts.IgnorePatterns...)
	if err != nil {
		return Result{}, fmt.Errorf("unable to estimate backup size: %w", err)
	}
	sizeCalcDuration := time.Since(sizeCalcStart)

	counters := telemetry.NewCounters()

	if err := reclaimIfShort(opts, counters, totalBytes); err != nil {
		logger.Warn(fmt.Errorf("auto-reclaim before backup failed: %w", err))
	}

	if usage, err := diskspace.Probe(opts.Destination); err != nil {
		logger.Warn(fmt.Errorf("unable to probe disk space: %w", err))
	} else {
		counters.RecordDiskSpaceAtStart(usage.Total, usage.Available)
	}

	priorIndex, priorRoot, err := loadPriorSet(opts.Destination, logger)
	if err != nil {
		return Result{}, err
	}

	setName := setid.New(opts.now())
	setPath := filepath.Join(opts.Destination, setName)
	if err := os.MkdirAll(setPath, 0755); err != nil {
		return Result{}, fmt.Errorf("unable to create backup set directory: %w", err)
	}

	budget := memory.NewBudget(opts.memoryCeiling())
	index := digestindex.New()
	sink := opts.progressSink()

	filesCompleted := 0
	onFileComplete := func() {
		filesCompleted++
		sink.Update(counters.Snapshot(), totalBytes)
		if filesCompleted%ReclaimCheckInterval == 0 {
			if err := reclaimIfShort(opts, counters, totalBytes); err != nil {
				logger.Warn(fmt.Errorf("auto-reclaim mid-run failed: %w", err))
			}
		}
	}

	walkErr := walk.Walk(ctx, walk.Params{
		SourceRoot:          opts.Source,
		TargetRoot:          setPath,
		PriorRoot:           priorRoot,
		PriorIndex:          priorIndex,
		Index:               index,
		Budget:              budget,
		Counters:            counters,
		Logger:              logger,
		OnFileComplete:      onFileComplete,
		ExtraIgnorePatterns: opts.IgnorePatterns,
		ChunkSize:           opts.chunkSize(),
		QueueCapacity:       opts.queueCapacity(),
	})

	sink.ClearLine()

	if walkErr != nil {
		return Result{}, fmt.Errorf("backup traversal failed: %w", walkErr)
	}

	if err := index.Persist(setPath); err != nil {
		return Result{}, fmt.Errorf("unable to persist digest index: %w", err)
	}
	if err := setid.MarkReady(setPath); err != nil {
		return Result{}, fmt.Errorf("unable to mark backup set ready: %w", err)
	}

	counters.Finish()

	if usage, err := diskspace.Probe(opts.Destination); err != nil {
		logger.Warn(fmt.Errorf("unable to probe disk space: %w", err))
	} else {
		counters.RecordDiskSpaceAtEnd(usage.Total, usage.Available)
	}

	snapshot := counters.Snapshot()

	statsPath := filepath.Join(setPath, StatsFileName)
	if err := os.WriteFile(statsPath, []byte(RenderStats(setName, snapshot, totalBytes, sizeCalcDuration)), 0644); err != nil {
		logger.Warn(fmt.Errorf("unable to write stats file: %w", err))
	}

	return Result{SetPath: setPath, SetName: setName, Stats: snapshot}, nil
}

// loadPriorSet locates the most recent complete backup set under dest
// and loads its digest index. If none exists, it returns a nil index and
// an empty prior root, which pkg/generation treats as "no usable prior
// file" for every entry (step 1 of its decision table). An unreadable
// prior index is a warn-and-proceed condition: the backup degrades to
// copying everything fresh rather than failing outright.
func loadPriorSet(dest string, logger *logging.Logger) (*digestindex.Index, string, error) {
	prior, ok, err := setid.MostRecent(dest)
	if err != nil {
		return nil, "", fmt.Errorf("unable to list prior backup sets: %w", err)
	}
	if !ok {
		return nil, "", nil
	}

	index, err := digestindex.Load(prior.Path)
	if err != nil {
		logger.Warn(fmt.Errorf("unable to read prior digest index, treating all files as new: %w", err))
		return nil, "", nil
	}
	return index, prior.Path, nil
}
