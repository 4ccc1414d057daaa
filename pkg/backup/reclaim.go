package backup

import (
	"math/rand/v2"
	"os"

	"github.com/timabell/disk-hog-backup/pkg/diskspace"
	"github.com/timabell/disk-hog-backup/pkg/reclaim"
	"github.com/timabell/disk-hog-backup/pkg/setid"
	"github.com/timabell/disk-hog-backup/pkg/telemetry"
)

// globalSource adapts math/rand/v2's auto-seeded package-level generator
// to reclaim.Source, avoiding the need for this package to manage its own
// seed.
type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// reclaimIfShort probes disk space under destination and, if fewer than
// neededBytes are available, deletes older backup sets via reclaim.Select
// until the shortfall is covered (or candidates run out). It is a no-op
// unless opts.AutoDelete is set.
func reclaimIfShort(opts Options, counters *telemetry.Counters, neededBytes uint64) error {
	if !opts.AutoDelete {
		return nil
	}

	usage, err := diskspace.Probe(opts.Destination)
	if err != nil {
		opts.logger().Warn(err)
		return nil
	}
	if usage.Available >= neededBytes {
		return nil
	}
	shortfall := neededBytes - usage.Available

	sets, err := setid.ListSets(opts.Destination)
	if err != nil {
		opts.logger().Warn(err)
		return nil
	}
	if len(sets) < 2 {
		return nil
	}

	sizes := make([]uint64, len(sets))
	for i, s := range sets {
		size, err := reclaim.DirSize(s.Path)
		if err != nil {
			opts.logger().Warn(err)
			continue
		}
		sizes[i] = size
	}

	selected := reclaim.Select(sets, sizes, shortfall, opts.reclaimExponent(), globalSource{})
	for _, s := range selected {
		if err := os.RemoveAll(s.Path); err != nil {
			opts.logger().Warn(err)
			continue
		}
		counters.RecordAutoDeletedSet(s.Name)
	}

	return nil
}
