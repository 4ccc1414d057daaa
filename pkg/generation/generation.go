// Package generation implements the four-step decision table that, for a
// single file, decides whether to hardlink it against a prior backup set
// or copy it fresh, consulting the prior set's persisted digest index and
// falling back to the streaming pipeline only when a decision can't be
// made from metadata alone.
//
// The decision calculus is this repo's generalization of the teacher's
// scanner cache-reuse check in pkg/synchronization/core/scan.go, which
// reuses a cached content digest when a file's mode, modification time,
// size, and file ID all match a previous scan, and recomputes otherwise.
// This package applies the same "trust metadata when it agrees, fall
// back to content otherwise" shape across backup generations rather than
// within one process's in-memory cache, and adds a fast hardlink path
// (the mtime-trust case below) the teacher has no equivalent for, since
// the teacher always verifies a reused digest is still attached to the
// same inode before trusting it.
package generation

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/timabell/disk-hog-backup/pkg/digestindex"
	"github.com/timabell/disk-hog-backup/pkg/filesystem"
	"github.com/timabell/disk-hog-backup/pkg/memory"
	"github.com/timabell/disk-hog-backup/pkg/pipeline"
	"github.com/timabell/disk-hog-backup/pkg/telemetry"
)

// Disposition describes how a file was handled.
type Disposition int

const (
	// DispositionCopyNew means there was no usable prior file.
	DispositionCopyNew Disposition = iota
	// DispositionCopySizeChanged means the prior file's size differed.
	DispositionCopySizeChanged
	// DispositionHardlinkMtimeTrusted means the prior file's mtime
	// matched, so its digest was trusted without rereading the source.
	DispositionHardlinkMtimeTrusted
	// DispositionHardlinkContentUnchanged means sizes matched, mtimes
	// differed, but the recomputed digest matched the prior digest.
	DispositionHardlinkContentUnchanged
	// DispositionCopyContentChanged means sizes matched, mtimes
	// differed, and the recomputed digest did not match.
	DispositionCopyContentChanged
	// DispositionCopyCrossDevice means a hardlink to the prior file was
	// warranted (its mtime matched, or the recomputed digest matched),
	// but the prior set lives on a different device, so the file was
	// copied instead.
	DispositionCopyCrossDevice
)

// String renders a human-readable disposition name.
func (d Disposition) String() string {
	switch d {
	case DispositionCopyNew:
		return "copy (new)"
	case DispositionCopySizeChanged:
		return "copy (size-changed)"
	case DispositionHardlinkMtimeTrusted:
		return "hardlink (mtime-trusted)"
	case DispositionHardlinkContentUnchanged:
		return "hardlink (content-unchanged)"
	case DispositionCopyContentChanged:
		return "copy (content-changed)"
	case DispositionCopyCrossDevice:
		return "copy (cross-device)"
	default:
		return "unknown"
	}
}

// IsHardlink reports whether d resulted in a hardlink rather than a copy.
func (d Disposition) IsHardlink() bool {
	return d == DispositionHardlinkMtimeTrusted || d == DispositionHardlinkContentUnchanged
}

// Params bundles one file's generation inputs.
type Params struct {
	// Source is the absolute path to the file in the tree being backed up.
	Source string
	// Rel is the path relative to the backup root, used as the digest
	// index key.
	Rel string
	// Target is the absolute path the file should end up at in the new
	// set.
	Target string
	// PriorRoot is the absolute path to the previous set's root, or ""
	// if there is no prior set.
	PriorRoot string
	// PriorIndex is the previous set's persisted digest index, or nil if
	// there is no prior set.
	PriorIndex *digestindex.Index
	// Index is the current set's in-progress digest index; the computed
	// digest is recorded into it under Rel.
	Index *digestindex.Index
	// Budget is the shared memory ceiling passed through to the pipeline.
	Budget *memory.Budget
	// Counters receives pipeline telemetry.
	Counters *telemetry.Counters
	// ChunkSize and QueueCapacity configure the underlying pipeline run;
	// zero values fall back to pipeline's own defaults.
	ChunkSize     int
	QueueCapacity int
}

// Result is what Generate produces.
type Result struct {
	Disposition Disposition
	Digest      [md5.Size]byte
}

// Generate applies the hardlink-vs-copy decision table to a single
// regular file, producing a disposition and recording the resulting
// digest into params.Index.
func Generate(ctx context.Context, params Params) (Result, error) {
	info, err := os.Lstat(params.Source)
	if err != nil {
		return Result{}, fmt.Errorf("unable to stat source: %w", err)
	}

	priorDigest, havePrior := priorDigestFor(params)
	priorPath := ""
	var priorInfo os.FileInfo
	if havePrior {
		priorPath = priorPathFor(params)
		priorInfo, err = os.Lstat(priorPath)
		if err != nil || !priorInfo.Mode().IsRegular() {
			havePrior = false
		}
	}

	// Step 1: no usable prior file.
	if !havePrior {
		return copyFresh(ctx, params, DispositionCopyNew)
	}

	// Step 2: size changed.
	if info.Size() != priorInfo.Size() {
		return copyFresh(ctx, params, DispositionCopySizeChanged)
	}

	// Step 3: mtime trusted, no hashing needed.
	if info.ModTime().Equal(priorInfo.ModTime()) {
		if err := filesystem.Hardlink(priorPath, params.Target); err != nil {
			if !errors.Is(err, filesystem.ErrCrossDevice) {
				return Result{}, fmt.Errorf("unable to create hardlink: %w", err)
			}
			// Prior set lives on a different device: fall back to a
			// plain copy for this file.
			return copyFresh(ctx, params, DispositionCopyCrossDevice)
		}
		params.Index.Insert(params.Rel, priorDigest)
		if params.Counters != nil {
			params.Counters.RecordHardlink(uint64(info.Size()))
		}
		return Result{Disposition: DispositionHardlinkMtimeTrusted, Digest: priorDigest}, nil
	}

	// Step 4: size equal, mtime differs; let the pipeline decide.
	result, err := pipeline.Run(ctx, pipeline.Params{
		Source:         params.Source,
		Target:         params.Target,
		ExpectedDigest: &priorDigest,
		ChunkSize:      params.ChunkSize,
		QueueCapacity:  params.QueueCapacity,
		Budget:         params.Budget,
		Counters:       params.Counters,
	})
	if err != nil {
		return Result{}, err
	}

	if result.Outcome == pipeline.OutcomeCancelled {
		if err := filesystem.Hardlink(priorPath, params.Target); err != nil {
			if !errors.Is(err, filesystem.ErrCrossDevice) {
				return Result{}, fmt.Errorf("unable to hardlink unchanged file: %w", err)
			}
			return copyFresh(ctx, params, DispositionCopyCrossDevice)
		}
		params.Index.Insert(params.Rel, result.Digest)
		if params.Counters != nil {
			params.Counters.RecordHardlink(uint64(info.Size()))
		}
		return Result{Disposition: DispositionHardlinkContentUnchanged, Digest: result.Digest}, nil
	}

	params.Index.Insert(params.Rel, result.Digest)
	if params.Counters != nil {
		params.Counters.RecordCopy(uint64(info.Size()))
	}
	return Result{Disposition: DispositionCopyContentChanged, Digest: result.Digest}, nil
}

// copyFresh runs the pipeline with no expected digest (a plain copy),
// recording the given disposition.
func copyFresh(ctx context.Context, params Params, disposition Disposition) (Result, error) {
	result, err := pipeline.Run(ctx, pipeline.Params{
		Source:        params.Source,
		Target:        params.Target,
		ChunkSize:     params.ChunkSize,
		QueueCapacity: params.QueueCapacity,
		Budget:        params.Budget,
		Counters:      params.Counters,
	})
	if err != nil {
		return Result{}, err
	}
	params.Index.Insert(params.Rel, result.Digest)
	if info, statErr := os.Lstat(params.Source); statErr == nil && params.Counters != nil {
		params.Counters.RecordCopy(uint64(info.Size()))
	}
	return Result{Disposition: disposition, Digest: result.Digest}, nil
}

// priorDigestFor looks up the prior digest for params.Rel, if a prior
// index was supplied.
func priorDigestFor(params Params) (digest [md5.Size]byte, ok bool) {
	if params.PriorIndex == nil {
		return digest, false
	}
	return params.PriorIndex.Lookup(params.Rel)
}

// priorPathFor returns the prior file's absolute path.
func priorPathFor(params Params) string {
	return filepath.Join(params.PriorRoot, params.Rel)
}
