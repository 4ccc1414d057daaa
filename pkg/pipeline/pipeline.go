// Package pipeline implements the three-stage streaming file pipeline
// (reader, hasher, writer) that reads a source
// file exactly once while simultaneously hashing it and copying it to a
// target path, with speculative write cancellation when the computed
// digest turns out to match an expected prior digest.
//
// The cancellation mechanism is this package's version of the teacher's
// pkg/stream.NewPreemptableWriter: a channel that, once closed, signals
// the writer stage to stop doing useful work. Where the teacher checks a
// cancellation channel every N writes on a generic io.Writer, this
// package's writer goroutine checks it once per chunk, since unlike a
// generic writer it also owns the decision to remove its target file on
// cancellation.
package pipeline

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/timabell/disk-hog-backup/pkg/filesystem"
	"github.com/timabell/disk-hog-backup/pkg/memory"
	"github.com/timabell/disk-hog-backup/pkg/telemetry"
)

// Outcome describes how Run concluded the write side of the pipeline.
type Outcome int

const (
	// OutcomeWritten means the target was fully written as a copy of the
	// source and had its metadata copied onto it.
	OutcomeWritten Outcome = iota
	// OutcomeCancelled means the computed digest matched the expected
	// digest, so the target was removed; the caller is expected to
	// create a hardlink to the prior file instead.
	OutcomeCancelled
)

// Result is what Run produces for one file.
type Result struct {
	Digest  [md5.Size]byte
	Outcome Outcome
}

// Params configures a single Run call.
type Params struct {
	// Source is the file to read.
	Source string
	// Target is the path Run will create (a plain copy, or removed again
	// on speculative cancellation).
	Target string
	// ExpectedDigest, when non-nil, enables speculative cancellation:
	// when the computed digest equals *ExpectedDigest, the target is
	// removed instead of kept.
	ExpectedDigest *[md5.Size]byte
	// ChunkSize is the fixed read size; DefaultChunkSize is used if zero.
	ChunkSize int
	// QueueCapacity is the bounded channel capacity for the writer and
	// hasher queues; DefaultQueueCapacity is used if zero.
	QueueCapacity int
	// Budget is the global in-flight memory ceiling tracker. Required.
	Budget *memory.Budget
	// Counters receives stage timing, queue-depth, and byte counters.
	// May be nil, in which case telemetry is skipped.
	Counters *telemetry.Counters
}

func (p Params) chunkSize() int {
	if p.ChunkSize > 0 {
		return p.ChunkSize
	}
	return DefaultChunkSize
}

func (p Params) queueCapacity() int {
	if p.QueueCapacity > 0 {
		return p.QueueCapacity
	}
	return DefaultQueueCapacity
}

// stageError carries the first fatal error encountered by any stage, plus
// which stage reported it, so Run can log/propagate meaningfully.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.stage, e.err)
}

func (e *stageError) Unwrap() error { return e.err }

// Run reads params.Source exactly once, simultaneously hashing it and
// copying it to params.Target, and returns the computed digest along with
// whether the target was kept (OutcomeWritten) or removed because it
// matched an expected prior digest (OutcomeCancelled).
//
// Any I/O error on the source or target aborts the pipeline: all stages
// are joined before Run returns, and a partially written target is
// removed.
func Run(ctx context.Context, params Params) (Result, error) {
	writerQueue := make(chan *chunk, params.queueCapacity())
	hasherQueue := make(chan *chunk, params.queueCapacity())
	digestCh := make(chan [md5.Size]byte, 1)
	cancel := make(chan struct{})

	errCh := make(chan *stageError, 3)
	done := make(chan struct{})

	var readerDone, hasherDone, writerDone = make(chan struct{}), make(chan struct{}), make(chan struct{})

	go func() {
		defer close(readerDone)
		runReader(ctx, params, writerQueue, hasherQueue, errCh)
	}()

	go func() {
		defer close(hasherDone)
		runHasher(hasherQueue, digestCh, params.Counters)
	}()

	go func() {
		defer close(writerDone)
		runWriter(params, writerQueue, cancel, errCh)
	}()

	go func() {
		<-readerDone
		<-hasherDone
		<-writerDone
		close(done)
	}()

	var cancelled bool
	var digest [md5.Size]byte
	var haveDigest bool
	if params.ExpectedDigest != nil {
		select {
		case digest = <-digestCh:
			haveDigest = true
			if digest == *params.ExpectedDigest {
				cancelled = true
				close(cancel)
			}
		case <-done:
			// A stage aborted before the hasher could finish; fall
			// through to error handling below.
		}
	}

	<-done
	close(errCh)

	var firstErr *stageError
	for e := range errCh {
		if firstErr == nil {
			firstErr = e
		}
	}
	if firstErr != nil {
		os.Remove(params.Target)
		return Result{}, firstErr
	}

	if !haveDigest {
		// The hasher publishes before it exits, so once done has closed
		// the digest is waiting in digestCh unless the speculative
		// select above already received it.
		digest = <-digestCh
	}

	if cancelled {
		if err := os.Remove(params.Target); err != nil && !os.IsNotExist(err) {
			return Result{}, fmt.Errorf("unable to remove speculatively written target: %w", err)
		}
		return Result{Digest: digest, Outcome: OutcomeCancelled}, nil
	}

	if err := filesystem.CopyMetadata(params.Source, params.Target); err != nil {
		return Result{}, err
	}

	return Result{Digest: digest, Outcome: OutcomeWritten}, nil
}

// runReader opens source, reads fixed-size chunks, reserving memory budget
// before each allocation, and fans each chunk out to both queues. It
// closes both queues when done (on EOF or error) so the hasher and writer
// stages can terminate.
func runReader(ctx context.Context, params Params, writerQueue, hasherQueue chan<- *chunk, errCh chan<- *stageError) {
	defer close(writerQueue)
	defer close(hasherQueue)

	file, err := os.Open(params.Source)
	if err != nil {
		errCh <- &stageError{"reader", fmt.Errorf("unable to open source: %w", err)}
		return
	}
	defer file.Close()

	size := params.chunkSize()
	buf := make([]byte, size)

	for {
		start := time.Now()
		n, readErr := io.ReadFull(file, buf)
		if params.Counters != nil {
			params.Counters.AddStageDuration(telemetry.StageReaderIO, time.Since(start))
		}

		if n > 0 {
			if err := reserveBudget(ctx, params, uint64(n)); err != nil {
				errCh <- &stageError{"reader", err}
				return
			}

			data := make([]byte, n)
			copy(data, buf[:n])
			c := &chunk{data: data}

			if params.Counters != nil {
				params.Counters.AddBytesRead(uint64(n))
				params.Counters.RecordWriterQueueDepth(len(writerQueue))
				params.Counters.RecordHasherQueueDepth(len(hasherQueue))
			}

			sendStart := time.Now()
			writerQueue <- c
			if params.Counters != nil {
				params.Counters.AddStageDuration(telemetry.StageReaderToWriterSend, time.Since(sendStart))
			}

			sendStart = time.Now()
			hasherQueue <- c
			if params.Counters != nil {
				params.Counters.AddStageDuration(telemetry.StageReaderToHasherSend, time.Since(sendStart))
			}
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			return
		}
		if readErr != nil {
			errCh <- &stageError{"reader", fmt.Errorf("unable to read source: %w", readErr)}
			return
		}
	}
}

// reserveBudget reserves n bytes from the memory budget, recording a
// throttle event and the wait time into telemetry on every wait.
func reserveBudget(ctx context.Context, params Params, n uint64) error {
	var observer memory.ThrottleObserver
	if params.Counters != nil {
		observer = func(waited time.Duration) {
			params.Counters.RecordThrottleEvent()
			params.Counters.AddStageDuration(telemetry.StageMemoryThrottleWait, waited)
		}
	}
	return params.Budget.Reserve(ctx, n, observer)
}

// runHasher drains hasherQueue, incrementally hashing each chunk, and
// publishes the finalized digest once the queue is closed.
func runHasher(hasherQueue <-chan *chunk, digestCh chan<- [md5.Size]byte, counters *telemetry.Counters) {
	h := md5.New()
	for c := range hasherQueue {
		start := time.Now()
		h.Write(c.data)
		if counters != nil {
			counters.AddStageDuration(telemetry.StageHasherCompute, time.Since(start))
			counters.AddBytesHashed(uint64(len(c.data)))
		}
	}
	var digest [md5.Size]byte
	copy(digest[:], h.Sum(nil))
	digestCh <- digest
}

// runWriter drains writerQueue, writing chunks to the target file in
// order, releasing each chunk's reserved memory after it has been
// consumed. Once cancel is closed, remaining chunks are drained without
// being written, matching the teacher's NewPreemptableWriter pattern of
// checking a cancellation channel before doing work rather than
// abandoning the channel outright (the hasher may still need every
// chunk). It returns whether any bytes were actually written.
func runWriter(params Params, writerQueue <-chan *chunk, cancel <-chan struct{}, errCh chan<- *stageError) bool {
	file, err := os.Create(params.Target)
	if err != nil {
		errCh <- &stageError{"writer", fmt.Errorf("unable to create target: %w", err)}
		drain(writerQueue, params.Budget)
		return false
	}

	var wroteAny bool
	var writeErr error
	for c := range writerQueue {
		cancelled := false
		select {
		case <-cancel:
			cancelled = true
		default:
		}

		if !cancelled && writeErr == nil {
			start := time.Now()
			if _, err := file.Write(c.data); err != nil {
				writeErr = fmt.Errorf("unable to write target: %w", err)
			} else {
				wroteAny = true
				if params.Counters != nil {
					params.Counters.AddBytesWritten(uint64(len(c.data)))
				}
			}
			if params.Counters != nil {
				params.Counters.AddStageDuration(telemetry.StageWriterIO, time.Since(start))
			}
		}

		params.Budget.Release(uint64(len(c.data)))
	}

	file.Close()

	if writeErr != nil {
		errCh <- &stageError{"writer", writeErr}
	}

	return wroteAny
}

// drain consumes and releases every chunk remaining on queue, used when
// the writer stage fails to even open its target and must still keep the
// memory budget consistent.
func drain(queue <-chan *chunk, budget *memory.Budget) {
	for c := range queue {
		budget.Release(uint64(len(c.data)))
	}
}
