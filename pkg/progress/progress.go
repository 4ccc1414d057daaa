// Package progress implements a terminal progress sink consumed through
// an interface, so a caller could substitute a different renderer (or
// none) without pkg/backup needing to change.
//
// The tty-vs-pipe distinction this package's default renderer makes is
// grounded on the teacher's pkg/logging writer, which implicitly treats
// output the same way regardless of destination but establishes the
// pattern of deciding output shape from the underlying stream. Here that
// decision is explicit: isatty.IsTerminal determines whether redraws use
// carriage-return overwrites (interactive terminal) or one line per
// snapshot (redirected to a file or pipe, where overwriting is
// meaningless and would corrupt the log).
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"github.com/timabell/disk-hog-backup/pkg/telemetry"
)

// Sink receives periodic progress snapshots during a backup run.
type Sink interface {
	// Update renders one snapshot of the run's progress.
	Update(snapshot telemetry.Snapshot, totalBytesEstimate uint64)
	// ClearLine erases any in-progress redraw line, called once before
	// final summary output is printed.
	ClearLine()
}

// NoopSink discards all updates, used when progress reporting is
// disabled (e.g. non-interactive batch runs).
type NoopSink struct{}

func (NoopSink) Update(telemetry.Snapshot, uint64) {}
func (NoopSink) ClearLine()                        {}

// maxLineWidth bounds the rendered line length so a narrow terminal
// doesn't wrap the status line across multiple rows.
const maxLineWidth = 120

// TerminalSink renders a single, periodically redrawn status line. It is
// safe for concurrent use; pkg/backup calls Update from one goroutine at
// a time in practice, but the mutex costs nothing on that hot path.
type TerminalSink struct {
	mu          sync.Mutex
	out         io.Writer
	interactive bool
	lastLineLen int
}

// NewTerminalSink creates a progress sink writing to w. interactive
// controls whether redraws overwrite the current line (true) or are
// appended one per line (false); NewAutoTerminalSink picks this
// automatically from w.
func NewTerminalSink(w io.Writer, interactive bool) *TerminalSink {
	return &TerminalSink{out: w, interactive: interactive}
}

// NewAutoTerminalSink creates a progress sink writing to w, detecting
// whether w is an interactive terminal via isatty when w is an *os.File.
// Non-file writers (e.g. a bytes.Buffer in tests) are treated as
// non-interactive.
func NewAutoTerminalSink(w io.Writer) *TerminalSink {
	interactive := false
	if f, ok := w.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return NewTerminalSink(w, interactive)
}

// Update renders the current snapshot as a single status line: elapsed
// time, files hardlinked/copied (colored green/yellow, the same
// semantic pairing the teacher's Logger uses for recoverable-vs-notable
// conditions), bytes processed against the size estimate, and throttle
// events if any have occurred.
func (s *TerminalSink) Update(snapshot telemetry.Snapshot, totalBytesEstimate uint64) {
	elapsed := time.Since(snapshot.StartedAt).Round(time.Second)

	bytesDone := snapshot.BytesHardlinked + snapshot.BytesCopied
	var percent float64
	if totalBytesEstimate > 0 {
		percent = 100 * float64(bytesDone) / float64(totalBytesEstimate)
		if percent > 100 {
			percent = 100
		}
	}

	line := fmt.Sprintf(
		"%s elapsed | %s hardlinked | %s copied | %s / %s (%.1f%%)",
		elapsed,
		color.GreenString("%d", snapshot.FilesHardlinked),
		color.YellowString("%d", snapshot.FilesCopied),
		humanize.Bytes(bytesDone),
		humanize.Bytes(totalBytesEstimate),
		percent,
	)
	if snapshot.ThrottleEvents > 0 {
		line += fmt.Sprintf(" | %s throttle waits", color.CyanString("%d", snapshot.ThrottleEvents))
	}

	line = truncate(line, maxLineWidth)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interactive {
		pad := s.lastLineLen - runewidth.StringWidth(line)
		if pad < 0 {
			pad = 0
		}
		fmt.Fprintf(s.out, "\r%s%*s", line, pad, "")
		s.lastLineLen = runewidth.StringWidth(line)
	} else {
		fmt.Fprintln(s.out, line)
	}
}

// ClearLine erases the current redraw line, if any, so subsequent output
// (the final stats summary) starts on a clean line.
func (s *TerminalSink) ClearLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interactive && s.lastLineLen > 0 {
		fmt.Fprintf(s.out, "\r%*s\r", s.lastLineLen, "")
		s.lastLineLen = 0
	}
}

// truncate shortens line to at most width terminal cells, accounting for
// wide/combined runes via runewidth, appending an ellipsis marker when
// truncation occurs.
func truncate(line string, width int) string {
	if runewidth.StringWidth(line) <= width {
		return line
	}
	return runewidth.Truncate(line, width-1, "") + "…"
}
