package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/timabell/disk-hog-backup/pkg/telemetry"
)

func TestTerminalSinkNonInteractiveAppendsLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTerminalSink(&buf, false)

	counters := telemetry.NewCounters()
	counters.RecordHardlink(1024)
	counters.RecordCopy(2048)

	sink.Update(counters.Snapshot(), 1<<20)
	sink.Update(counters.Snapshot(), 1<<20)

	output := buf.String()
	if strings.Count(output, "\n") != 2 {
		t.Fatalf("expected two appended lines in non-interactive mode, got %q", output)
	}
	if !strings.Contains(output, "hardlinked") {
		t.Fatalf("expected hardlinked counter in output: %q", output)
	}
}

func TestTerminalSinkInteractiveOverwritesLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTerminalSink(&buf, true)

	counters := telemetry.NewCounters()
	sink.Update(counters.Snapshot(), 100)

	output := buf.String()
	if !strings.HasPrefix(output, "\r") {
		t.Fatalf("expected interactive redraw to start with a carriage return, got %q", output)
	}
}

func TestTerminalSinkClearLineResetsState(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTerminalSink(&buf, true)
	counters := telemetry.NewCounters()
	sink.Update(counters.Snapshot(), 100)
	sink.ClearLine()
	if sink.lastLineLen != 0 {
		t.Fatalf("expected lastLineLen reset after ClearLine")
	}
}

func TestNoopSinkDoesNothing(t *testing.T) {
	var sink NoopSink
	sink.Update(telemetry.Snapshot{}, 0)
	sink.ClearLine()
}
