package backup

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/timabell/disk-hog-backup/pkg/dhb"
	"github.com/timabell/disk-hog-backup/pkg/telemetry"
)

// RenderStats renders the end-of-run stats file content, including a
// bottleneck-diagnosis section and a disk-space before/after comparison.
// Grounded on the section layout of the original
// implementation's backup-stats report (Backup Summary, Time, Backup Set
// Stats, I/O, Pipeline Performance, Queue Stats, Disk Space,
// Auto-Deleted Backup Sets), rewritten against this repo's own
// telemetry.Snapshot shape rather than that report's field names.
func RenderStats(setName string, snapshot telemetry.Snapshot, totalBytesEstimate uint64, sizeCalcDuration time.Duration) string {
	var b strings.Builder

	fmt.Fprintln(&b, "Backup Summary")
	fmt.Fprintln(&b, "==============")
	fmt.Fprintf(&b, "Program: disk-hog-backup %s\n", dhb.Version)
	fmt.Fprintln(&b, "Time format: HH:MM:SS.mmm")
	fmt.Fprintln(&b, "Sizes: bytes (human-readable shown alongside)")
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Set: %s\n", setName)
	fmt.Fprintln(&b)

	elapsed := snapshot.FinishedAt.Sub(snapshot.StartedAt)
	fmt.Fprintln(&b, "Time:")
	fmt.Fprintf(&b, "  Started:    %s\n", snapshot.StartedAt.Format("2006-01-02 15:04:05.000 MST"))
	fmt.Fprintf(&b, "  Size calc:  %s\n", formatDuration(sizeCalcDuration))
	fmt.Fprintf(&b, "  Finished:   %s\n", snapshot.FinishedAt.Format("2006-01-02 15:04:05.000 MST"))
	fmt.Fprintf(&b, "  Duration:   %s\n", formatDuration(elapsed))
	fmt.Fprintln(&b)

	filesTotal := snapshot.FilesHardlinked + snapshot.FilesCopied
	bytesTotal := snapshot.BytesHardlinked + snapshot.BytesCopied
	fmt.Fprintln(&b, "Backup Set Stats:")
	fmt.Fprintf(&b, "  Hardlinked:  %d files, %s\n", snapshot.FilesHardlinked, humanize.Bytes(snapshot.BytesHardlinked))
	fmt.Fprintf(&b, "  Copied:      %d files, %s\n", snapshot.FilesCopied, humanize.Bytes(snapshot.BytesCopied))
	fmt.Fprintf(&b, "  Ignored:     %d paths\n", snapshot.FilesIgnored)
	fmt.Fprintf(&b, "  Skipped:     %d paths\n", snapshot.FilesSkipped)
	fmt.Fprintf(&b, "  Total:       %d files, %s\n", filesTotal, humanize.Bytes(bytesTotal))
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "I/O:")
	fmt.Fprintf(&b, "  Read:    %d (%s)\n", snapshot.BytesRead, humanize.Bytes(snapshot.BytesRead))
	fmt.Fprintf(&b, "  Written: %d (%s)\n", snapshot.BytesWritten, humanize.Bytes(snapshot.BytesWritten))
	fmt.Fprintf(&b, "  Hashed:  %d (%s)\n", snapshot.BytesHashed, humanize.Bytes(snapshot.BytesHashed))
	fmt.Fprintln(&b)

	renderPipelineStats(&b, snapshot, elapsed)
	renderDiskSpace(&b, snapshot)

	if len(snapshot.AutoDeletedSets) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Auto-Deleted Backup Sets:")
		for _, name := range snapshot.AutoDeletedSets {
			fmt.Fprintf(&b, "  %s\n", name)
		}
	}

	return b.String()
}

// formatDuration renders a duration as HH:MM:SS.mmm, matching the
// original report's time format.
func formatDuration(d time.Duration) string {
	totalMillis := d.Milliseconds()
	if totalMillis < 0 {
		totalMillis = 0
	}
	hours := totalMillis / 3_600_000
	minutes := (totalMillis % 3_600_000) / 60_000
	seconds := (totalMillis % 60_000) / 1_000
	millis := totalMillis % 1_000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

// renderPipelineStats renders per-stage cumulative durations, queue
// depth averages, and the bottleneck diagnosis heuristic. It is skipped
// entirely if no pipeline activity was recorded (e.g. every file was
// mtime-trusted and hardlinked, so the streaming pipeline never ran).
func renderPipelineStats(b *strings.Builder, snapshot telemetry.Snapshot, elapsed time.Duration) {
	if snapshot.StageDurations[telemetry.StageReaderIO] == 0 {
		return
	}

	totalElapsed := elapsed
	fmt.Fprintln(b, "Pipeline Performance:")
	for _, stage := range []telemetry.Stage{
		telemetry.StageReaderIO,
		telemetry.StageReaderToWriterSend,
		telemetry.StageReaderToHasherSend,
		telemetry.StageHasherRecv,
		telemetry.StageHasherCompute,
		telemetry.StageWriterRecv,
		telemetry.StageWriterIO,
		telemetry.StageMemoryThrottleWait,
	} {
		d := snapshot.StageDurations[stage]
		var percent float64
		if totalElapsed > 0 {
			percent = 100 * float64(d) / float64(totalElapsed)
		}
		fmt.Fprintf(b, "  %-24s %12s (%5.1f%%)\n", telemetry.StageName(stage)+":", formatDuration(d), percent)
	}
	fmt.Fprintln(b)

	bottleneck, bottleneckDuration := snapshot.Bottleneck()
	if bottleneckDuration > 0 {
		fmt.Fprintf(b, "  Bottleneck: %s (%s)\n", telemetry.StageName(bottleneck), formatDuration(bottleneckDuration))
	}
	fmt.Fprintln(b)

	fmt.Fprintln(b, "Queue Stats:")
	fmt.Fprintf(b, "  Writer queue: avg %.1f, peak %d\n", snapshot.WriterQueue.Average(), snapshot.WriterQueue.Max)
	fmt.Fprintf(b, "  Hasher queue: avg %.1f, peak %d\n", snapshot.HasherQueue.Average(), snapshot.HasherQueue.Max)
	if snapshot.ThrottleEvents > 0 {
		fmt.Fprintf(b, "  Memory throttle events: %d\n", snapshot.ThrottleEvents)
	}
	fmt.Fprintln(b)
}

// renderDiskSpace renders the before/after disk-space snapshot.
func renderDiskSpace(b *strings.Builder, snapshot telemetry.Snapshot) {
	if !snapshot.HaveDiskStart {
		return
	}

	fmt.Fprintln(b, "Disk Space:")
	fmt.Fprintf(b, "  Start: %s available of %s total\n",
		humanize.Bytes(snapshot.DiskAvailableAtStart), humanize.Bytes(snapshot.DiskTotalAtStart))

	if !snapshot.HaveDiskEnd {
		return
	}
	fmt.Fprintf(b, "  End:   %s available of %s total\n",
		humanize.Bytes(snapshot.DiskAvailableAtEnd), humanize.Bytes(snapshot.DiskTotalAtEnd))

	if snapshot.DiskAvailableAtStart >= snapshot.DiskAvailableAtEnd {
		used := snapshot.DiskAvailableAtStart - snapshot.DiskAvailableAtEnd
		fmt.Fprintf(b, "  Backup used %s of additional space\n", humanize.Bytes(used))
	} else {
		freed := snapshot.DiskAvailableAtEnd - snapshot.DiskAvailableAtStart
		fmt.Fprintf(b, "  Backup freed %s of space (auto-reclaim)\n", humanize.Bytes(freed))
	}
}
