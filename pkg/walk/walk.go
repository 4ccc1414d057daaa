// Package walk implements a depth-first traversal of a source tree that
// classifies each entry, consults the ignore predicate, recreates the
// tree shape at a target root, and delegates regular files to
// pkg/generation.
//
// The traversal shape — enumerate a directory's contents, classify each
// entry by type, consult the ignore predicate, recurse into
// subdirectories — is grounded on the teacher's scanner.directory in
// pkg/synchronization/core/scan.go. This package drops that scanner's
// dirty-path/baseline-reuse optimization (every run here is a full
// traversal; there is no incremental-rescan concept) and its Unicode
// decomposition and executability-preservation probing (out of scope).
//
// Files are generated one at a time from the traversal goroutine, rather
// than fanned out to a worker pool: cross-file concurrency is permitted
// but not required, and the digest index is documented single-writer,
// which is simplest to honor by never calling pkg/generation.Generate
// concurrently against the same *digestindex.Index. Per-file concurrency
// still exists at the reader/hasher/writer level inside pkg/pipeline.
package walk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/timabell/disk-hog-backup/pkg/digestindex"
	"github.com/timabell/disk-hog-backup/pkg/filesystem"
	"github.com/timabell/disk-hog-backup/pkg/generation"
	"github.com/timabell/disk-hog-backup/pkg/ignore"
	"github.com/timabell/disk-hog-backup/pkg/logging"
	"github.com/timabell/disk-hog-backup/pkg/memory"
	"github.com/timabell/disk-hog-backup/pkg/telemetry"
)

// Params bundles one backup run's traversal inputs.
type Params struct {
	// SourceRoot is the tree being backed up.
	SourceRoot string
	// TargetRoot is the new set's root; the tree shape is recreated here.
	TargetRoot string
	// PriorRoot is the previous set's root, or "" if there is none.
	PriorRoot string
	// PriorIndex is the previous set's persisted digest index, or nil.
	PriorIndex *digestindex.Index
	// Index accumulates digests for the set currently being produced.
	Index *digestindex.Index
	// Budget is the shared memory ceiling.
	Budget *memory.Budget
	// Counters receives file/byte/stage telemetry.
	Counters *telemetry.Counters
	// Logger receives per-skip diagnostic messages. May be nil.
	Logger *logging.Logger
	// OnFileComplete, if non-nil, is invoked after each regular file is
	// processed, letting the caller trigger mid-run behavior such as
	// space-pressure-triggered reclaim checks.
	OnFileComplete func()
	// ExtraIgnorePatterns are applied at the root alongside
	// ignore.DefaultPatterns and any .dhbignore content, per
	// backup.Options.IgnorePatterns.
	ExtraIgnorePatterns []string
	// ChunkSize and QueueCapacity configure every file's underlying
	// pipeline run; zero values fall back to pipeline's own defaults.
	ChunkSize     int
	QueueCapacity int
}

// Walk performs a full depth-first traversal, recreating
// params.SourceRoot's tree shape under params.TargetRoot and recording a
// digest for every regular file into params.Index.
func Walk(ctx context.Context, params Params) error {
	rootChain, err := ignore.Root(params.SourceRoot, params.ExtraIgnorePatterns...)
	if err != nil {
		return fmt.Errorf("unable to load root ignore patterns: %w", err)
	}
	return walkDir(ctx, params, "", rootChain)
}

// walkDir processes one directory, identified by rel (relative to
// SourceRoot; "" for the root itself), recursing into subdirectories.
func walkDir(ctx context.Context, params Params, rel string, chain *ignore.Chain) error {
	sourceDir := filepath.Join(params.SourceRoot, rel)
	targetDir := filepath.Join(params.TargetRoot, rel)

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("unable to create target directory: %w", err)
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return fmt.Errorf("unable to list %s: %w", sourceDir, err)
	}

	dirChain, err := chain.Extend(sourceDir)
	if err != nil {
		return fmt.Errorf("unable to extend ignore chain for %s: %w", sourceDir, err)
	}

	for _, entry := range entries {
		entryRel := entry.Name()
		if rel != "" {
			entryRel = filepath.Join(rel, entry.Name())
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("unable to stat %s: %w", entryRel, err)
		}

		isDir := info.IsDir()
		status := dirChain.Match(entryRel, isDir)
		if status == ignore.StatusIgnored {
			params.Counters.RecordIgnored()
			continue
		}

		mode := info.Mode()
		entrySource := filepath.Join(params.SourceRoot, entryRel)
		entryTarget := filepath.Join(params.TargetRoot, entryRel)

		switch {
		case mode&os.ModeSymlink != 0:
			if err := filesystem.RecreateSymlink(entrySource, entryTarget); err != nil {
				return fmt.Errorf("unable to recreate symlink %s: %w", entryRel, err)
			}
		case isDir:
			// Directory symlinks are excluded by the os.ModeSymlink case
			// above (os.DirEntry.Info follows no links; a symlink to a
			// directory reports as a symlink, not a directory, so it is
			// never followed here).
			if err := walkDir(ctx, params, entryRel, dirChain); err != nil {
				return err
			}
		case filesystem.IsSpecialFile(mode):
			params.Logger.Printf("skipping special file %s", entryRel)
			params.Counters.RecordSkipped()
		case mode.IsRegular():
			if err := generateFile(ctx, params, entryRel, entrySource, entryTarget); err != nil {
				return err
			}
			if params.OnFileComplete != nil {
				params.OnFileComplete()
			}
		default:
			params.Logger.Printf("skipping unsupported entry %s", entryRel)
			params.Counters.RecordSkipped()
		}
	}

	return nil
}

func generateFile(ctx context.Context, params Params, rel, source, target string) error {
	_, err := generation.Generate(ctx, generation.Params{
		Source:        source,
		Rel:           rel,
		Target:        target,
		PriorRoot:     params.PriorRoot,
		PriorIndex:    params.PriorIndex,
		Index:         params.Index,
		Budget:        params.Budget,
		Counters:      params.Counters,
		ChunkSize:     params.ChunkSize,
		QueueCapacity: params.QueueCapacity,
	})
	if err != nil {
		return fmt.Errorf("unable to process %s: %w", rel, err)
	}
	return nil
}

// EstimateSize walks sourceRoot applying the identical ignore logic Walk
// uses, summing the size of every regular file that would be copied or
// hardlinked, for progress-reporting purposes. It must use the same
// ignore logic as the real traversal to avoid skew, so it accepts the
// same extra patterns a caller would pass to Walk via
// Params.ExtraIgnorePatterns.
func EstimateSize(sourceRoot string, extraIgnorePatterns ...string) (uint64, error) {
	chain, err := ignore.Root(sourceRoot, extraIgnorePatterns...)
	if err != nil {
		return 0, fmt.Errorf("unable to load root ignore patterns: %w", err)
	}
	return estimateDir(sourceRoot, "", chain)
}

func estimateDir(sourceRoot, rel string, chain *ignore.Chain) (uint64, error) {
	dir := filepath.Join(sourceRoot, rel)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("unable to list %s: %w", dir, err)
	}

	dirChain, err := chain.Extend(dir)
	if err != nil {
		return 0, fmt.Errorf("unable to extend ignore chain for %s: %w", dir, err)
	}

	var total uint64
	for _, entry := range entries {
		entryRel := entry.Name()
		if rel != "" {
			entryRel = filepath.Join(rel, entry.Name())
		}

		info, err := entry.Info()
		if err != nil {
			return 0, fmt.Errorf("unable to stat %s: %w", entryRel, err)
		}

		isDir := info.IsDir()
		if dirChain.Match(entryRel, isDir) == ignore.StatusIgnored {
			continue
		}

		if isDir {
			sub, err := estimateDir(sourceRoot, entryRel, dirChain)
			if err != nil {
				return 0, err
			}
			total += sub
			continue
		}

		if info.Mode().IsRegular() {
			total += uint64(info.Size())
		}
	}

	return total, nil
}
