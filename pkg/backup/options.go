package backup

import (
	"time"

	"github.com/timabell/disk-hog-backup/pkg/logging"
	"github.com/timabell/disk-hog-backup/pkg/pipeline"
	"github.com/timabell/disk-hog-backup/pkg/progress"
)

// DefaultMemoryCeiling is the default global in-flight memory ceiling
// (4 GiB).
const DefaultMemoryCeiling = 4 * 1024 * 1024 * 1024

// DefaultReclaimExponent is the default auto-reclaim weighting exponent.
const DefaultReclaimExponent = 2.0

// ReclaimCheckInterval is how many processed files elapse between
// mid-run space-pressure checks, so auto-delete can also trigger from
// space pressure discovered partway through a run rather than only
// before it starts.
const ReclaimCheckInterval = 256

// Options configures a single backup run.
type Options struct {
	// Source is the directory tree being backed up.
	Source string
	// Destination is the directory under which timestamped backup set
	// directories are created.
	Destination string
	// ChunkSize is the pipeline's fixed read size; DefaultChunkSize is
	// used if zero.
	ChunkSize int
	// QueueCapacity is the pipeline's bounded queue depth; DefaultQueueCapacity
	// is used if zero.
	QueueCapacity int
	// MemoryCeiling bounds the aggregate in-flight buffered bytes across
	// all files; DefaultMemoryCeiling is used if zero.
	MemoryCeiling uint64
	// AutoDelete enables the auto-reclaim hook, both before the run (if
	// the destination is already short on space) and periodically during
	// it.
	AutoDelete bool
	// ReclaimExponent controls how strongly auto-reclaim favors closely
	// spaced sets; DefaultReclaimExponent is used if zero.
	ReclaimExponent float64
	// IgnorePatterns are extra .dhbignore-syntax patterns applied at the
	// source root, in addition to ignore.DefaultPatterns and any local
	// .dhbignore file.
	IgnorePatterns []string
	// Now, if non-nil, is used to generate the new set's timestamp,
	// injected for deterministic tests; time.Now is used otherwise.
	Now func() time.Time
	// Logger receives diagnostic warnings. Nil is safe (no-op).
	Logger *logging.Logger
	// Progress receives periodic status updates. progress.NoopSink{} is
	// used if nil.
	Progress progress.Sink
}

func (o Options) chunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return pipeline.DefaultChunkSize
}

func (o Options) queueCapacity() int {
	if o.QueueCapacity > 0 {
		return o.QueueCapacity
	}
	return pipeline.DefaultQueueCapacity
}

func (o Options) memoryCeiling() uint64 {
	if o.MemoryCeiling > 0 {
		return o.MemoryCeiling
	}
	return DefaultMemoryCeiling
}

func (o Options) reclaimExponent() float64 {
	if o.ReclaimExponent > 0 {
		return o.ReclaimExponent
	}
	return DefaultReclaimExponent
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) logger() *logging.Logger {
	return o.Logger
}

func (o Options) progressSink() progress.Sink {
	if o.Progress != nil {
		return o.Progress
	}
	return progress.NoopSink{}
}
