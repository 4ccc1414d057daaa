// Package telemetry provides thread-safe, mostly lock-free counters,
// per-stage cumulative timings, and queue-depth samples that a progress
// sink can read periodically, plus a mutex-guarded disk-space/auto-delete
// snapshot for end-of-run reporting. No counter here participates in a
// correctness decision — everything is advisory.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stage identifies one of the pipeline stages whose cumulative time is
// tracked.
type Stage int

const (
	StageReaderIO Stage = iota
	StageReaderToWriterSend
	StageReaderToHasherSend
	StageHasherRecv
	StageHasherCompute
	StageWriterRecv
	StageWriterIO
	StageMemoryThrottleWait
	stageCount
)

// queueSample accumulates sum/count/max for a single queue's observed
// depth.
type queueSample struct {
	sum   atomic.Int64
	count atomic.Int64
	max   atomic.Int64
}

func (q *queueSample) record(depth int) {
	q.sum.Add(int64(depth))
	q.count.Add(1)
	for {
		current := q.max.Load()
		if int64(depth) <= current {
			return
		}
		if q.max.CompareAndSwap(current, int64(depth)) {
			return
		}
	}
}

// QueueStats is a point-in-time, non-atomic read of a queueSample,
// suitable for rendering in the stats file or a progress snapshot.
type QueueStats struct {
	Sum   int64
	Count int64
	Max   int64
}

func (q *queueSample) snapshot() QueueStats {
	return QueueStats{Sum: q.sum.Load(), Count: q.count.Load(), Max: q.max.Load()}
}

// Average returns the mean queue depth observed, or 0 if no samples were
// recorded.
func (q QueueStats) Average() float64 {
	if q.Count == 0 {
		return 0
	}
	return float64(q.Sum) / float64(q.Count)
}

// diskSpaceSnapshot holds the before/after disk-space probe results and
// the set of set directories removed by auto-reclaim. It is guarded by a
// mutex rather than made atomic because its fields are assembled together
// and only read at end-of-run.
type diskSpaceSnapshot struct {
	mu               sync.Mutex
	totalAtStart     uint64
	availableAtStart uint64
	totalAtEnd       uint64
	availableAtEnd   uint64
	haveStart        bool
	haveEnd          bool
	autoDeletedSets  []string
}

// Counters is the full set of telemetry state for one backup run. The
// zero value is ready to use.
type Counters struct {
	filesHardlinked atomic.Uint64
	filesCopied     atomic.Uint64
	filesIgnored    atomic.Uint64
	filesSkipped    atomic.Uint64
	bytesHardlinked atomic.Uint64
	bytesCopied     atomic.Uint64
	bytesRead       atomic.Uint64
	bytesWritten    atomic.Uint64
	bytesHashed     atomic.Uint64
	throttleEvents  atomic.Uint64

	stageNanos [stageCount]atomic.Int64

	writerQueue queueSample
	hasherQueue queueSample

	startedAt  time.Time
	finishedAt time.Time

	disk diskSpaceSnapshot
}

// NewCounters creates a new, empty Counters, recording the current time as
// the run's start time.
func NewCounters() *Counters {
	return &Counters{startedAt: time.Now()}
}

// RecordHardlink registers a hardlinked file of the given size.
func (c *Counters) RecordHardlink(size uint64) {
	c.filesHardlinked.Add(1)
	c.bytesHardlinked.Add(size)
}

// RecordCopy registers a copied file of the given size.
func (c *Counters) RecordCopy(size uint64) {
	c.filesCopied.Add(1)
	c.bytesCopied.Add(size)
}

// RecordIgnored registers one ignored path.
func (c *Counters) RecordIgnored() { c.filesIgnored.Add(1) }

// RecordSkipped registers one special-file or otherwise unsupported path
// that was skipped rather than backed up.
func (c *Counters) RecordSkipped() { c.filesSkipped.Add(1) }

// AddBytesRead accumulates bytes read from the source during hashing/copy.
func (c *Counters) AddBytesRead(n uint64) { c.bytesRead.Add(n) }

// AddBytesWritten accumulates bytes written to the target.
func (c *Counters) AddBytesWritten(n uint64) { c.bytesWritten.Add(n) }

// AddBytesHashed accumulates bytes fed into the hasher.
func (c *Counters) AddBytesHashed(n uint64) { c.bytesHashed.Add(n) }

// RecordThrottleEvent registers one memory-throttle wait.
func (c *Counters) RecordThrottleEvent() { c.throttleEvents.Add(1) }

// AddStageDuration accumulates nanoseconds spent in the given stage.
func (c *Counters) AddStageDuration(stage Stage, d time.Duration) {
	c.stageNanos[stage].Add(int64(d))
}

// RecordWriterQueueDepth records one observed writer-queue depth sample.
func (c *Counters) RecordWriterQueueDepth(depth int) { c.writerQueue.record(depth) }

// RecordHasherQueueDepth records one observed hasher-queue depth sample.
func (c *Counters) RecordHasherQueueDepth(depth int) { c.hasherQueue.record(depth) }

// Finish records the run's completion time.
func (c *Counters) Finish() { c.finishedAt = time.Now() }

// RecordDiskSpaceAtStart stores the disk-space probe taken before the
// copy phase begins.
func (c *Counters) RecordDiskSpaceAtStart(total, available uint64) {
	c.disk.mu.Lock()
	defer c.disk.mu.Unlock()
	c.disk.totalAtStart = total
	c.disk.availableAtStart = available
	c.disk.haveStart = true
}

// RecordDiskSpaceAtEnd stores the disk-space probe taken after the backup
// completes.
func (c *Counters) RecordDiskSpaceAtEnd(total, available uint64) {
	c.disk.mu.Lock()
	defer c.disk.mu.Unlock()
	c.disk.totalAtEnd = total
	c.disk.availableAtEnd = available
	c.disk.haveEnd = true
}

// RecordAutoDeletedSet appends a set name to the list reported under
// "Auto-Deleted Backup Sets" in the stats file.
func (c *Counters) RecordAutoDeletedSet(name string) {
	c.disk.mu.Lock()
	defer c.disk.mu.Unlock()
	c.disk.autoDeletedSets = append(c.disk.autoDeletedSets, name)
}

// Snapshot is a point-in-time, non-atomic-across-fields read of the full
// counter state, suitable for a progress sink or the end-of-run stats
// file. A progress renderer must tolerate monotonic but non-atomic reads
// across fields; Snapshot provides exactly that.
type Snapshot struct {
	FilesHardlinked uint64
	FilesCopied     uint64
	FilesIgnored    uint64
	FilesSkipped    uint64
	BytesHardlinked uint64
	BytesCopied     uint64
	BytesRead       uint64
	BytesWritten    uint64
	BytesHashed     uint64
	ThrottleEvents  uint64

	StageDurations [stageCount]time.Duration

	WriterQueue QueueStats
	HasherQueue QueueStats

	StartedAt  time.Time
	FinishedAt time.Time

	DiskTotalAtStart     uint64
	DiskAvailableAtStart uint64
	DiskTotalAtEnd       uint64
	DiskAvailableAtEnd   uint64
	HaveDiskStart        bool
	HaveDiskEnd          bool
	AutoDeletedSets      []string
}

// Snapshot takes a point-in-time read of all counters.
func (c *Counters) Snapshot() Snapshot {
	var s Snapshot
	s.FilesHardlinked = c.filesHardlinked.Load()
	s.FilesCopied = c.filesCopied.Load()
	s.FilesIgnored = c.filesIgnored.Load()
	s.FilesSkipped = c.filesSkipped.Load()
	s.BytesHardlinked = c.bytesHardlinked.Load()
	s.BytesCopied = c.bytesCopied.Load()
	s.BytesRead = c.bytesRead.Load()
	s.BytesWritten = c.bytesWritten.Load()
	s.BytesHashed = c.bytesHashed.Load()
	s.ThrottleEvents = c.throttleEvents.Load()
	for stage := range s.StageDurations {
		s.StageDurations[stage] = time.Duration(c.stageNanos[stage].Load())
	}
	s.WriterQueue = c.writerQueue.snapshot()
	s.HasherQueue = c.hasherQueue.snapshot()
	s.StartedAt = c.startedAt
	s.FinishedAt = c.finishedAt

	c.disk.mu.Lock()
	s.DiskTotalAtStart = c.disk.totalAtStart
	s.DiskAvailableAtStart = c.disk.availableAtStart
	s.DiskTotalAtEnd = c.disk.totalAtEnd
	s.DiskAvailableAtEnd = c.disk.availableAtEnd
	s.HaveDiskStart = c.disk.haveStart
	s.HaveDiskEnd = c.disk.haveEnd
	s.AutoDeletedSets = append([]string(nil), c.disk.autoDeletedSets...)
	c.disk.mu.Unlock()

	return s
}

// StageName returns a human-readable name for a stage, used when
// rendering the stats file's bottleneck diagnosis.
func StageName(stage Stage) string {
	switch stage {
	case StageReaderIO:
		return "reader I/O"
	case StageReaderToWriterSend:
		return "reader to writer send"
	case StageReaderToHasherSend:
		return "reader to hasher send"
	case StageHasherRecv:
		return "hasher recv"
	case StageHasherCompute:
		return "hasher compute"
	case StageWriterRecv:
		return "writer recv"
	case StageWriterIO:
		return "writer I/O"
	case StageMemoryThrottleWait:
		return "memory throttle wait"
	default:
		return "unknown"
	}
}

// Bottleneck returns the stage with the largest cumulative duration in
// the snapshot, and that duration. This is a diagnostic heuristic only
// and carries no contractual meaning.
func (s Snapshot) Bottleneck() (Stage, time.Duration) {
	var worst Stage
	var worstDuration time.Duration
	for stage, d := range s.StageDurations {
		if d > worstDuration {
			worst = Stage(stage)
			worstDuration = d
		}
	}
	return worst, worstDuration
}
