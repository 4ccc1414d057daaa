// Package memory implements a global, process-wide memory ceiling: a
// non-negative counter of bytes currently buffered in in-flight pipeline
// chunks, bounded by a configured ceiling. Reader stages (pkg/pipeline)
// reserve bytes before allocating a chunk and cooperatively wait when the
// ceiling would be exceeded; writer stages release bytes once a chunk
// has been consumed.
package memory

import (
	"context"
	"sync/atomic"
	"time"
)

// throttleSleep is the cooperative sleep interval used while waiting for
// headroom under the ceiling.
const throttleSleep = 10 * time.Millisecond

// Budget tracks in-flight buffered bytes against a configured ceiling. A
// single Budget is shared across all concurrently processing files in a
// backup run, so that aggregate in-flight memory across all files stays
// within the ceiling.
type Budget struct {
	// used is the current number of buffered bytes, tracked atomically.
	used atomic.Int64
	// ceiling is the configured maximum number of buffered bytes.
	ceiling int64
}

// NewBudget creates a new Budget with the given ceiling, in bytes.
func NewBudget(ceiling uint64) *Budget {
	return &Budget{ceiling: int64(ceiling)}
}

// ThrottleObserver receives notification each time Reserve must wait for
// headroom, so callers can accumulate throttle-event counts and wait
// duration into telemetry without this package needing to know about the
// telemetry package's types.
type ThrottleObserver func(waited time.Duration)

// Reserve blocks, waking every throttleSleep interval, until reserving n
// bytes would not push the budget's usage above its ceiling, then
// reserves them. If ctx is cancelled while waiting, Reserve returns the
// context's error without reserving anything. observer, if non-nil, is
// invoked once for each throttle wait iteration.
func (b *Budget) Reserve(ctx context.Context, n uint64, observer ThrottleObserver) error {
	amount := int64(n)
	for {
		// A zero-sized reservation always succeeds immediately; this
		// covers zero-byte files and final empty reads without special
		// casing at call sites.
		if amount == 0 {
			return nil
		}

		current := b.used.Load()
		if current+amount <= b.ceiling || current == 0 {
			// Always allow forward progress when nothing is currently
			// reserved, even if a single chunk exceeds the ceiling: the
			// ceiling bounds concurrent aggregate usage, not the size of
			// an individual chunk.
			if b.used.CompareAndSwap(current, current+amount) {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(throttleSleep):
		}
		if observer != nil {
			observer(throttleSleep)
		}
	}
}

// Release returns n bytes to the budget after they've been consumed by
// the writer stage (written, or discarded after cancellation); the
// hasher may still hold the same chunk at that point.
func (b *Budget) Release(n uint64) {
	b.used.Add(-int64(n))
}

// InUse returns the current number of reserved bytes. It is intended for
// diagnostics and tests only; correctness never depends on reading this
// value.
func (b *Budget) InUse() uint64 {
	v := b.used.Load()
	if v < 0 {
		return 0
	}
	return uint64(v)
}
