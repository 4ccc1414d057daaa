// Package reclaim implements the auto-reclaim hook that selects older
// backup sets for deletion under disk-space pressure, weighted toward
// closely-spaced sets so that a broad temporal spread of history
// survives rather than the oldest sets always being the first
// sacrificed.
//
// Select is grounded on the *shape* of the teacher's pkg/selection
// package: a pure function that takes a candidate collection plus a
// specification and returns the selected subset, with no side effects of
// its own. The weighting formula (w_i = (1/Δt_i)^α) is new domain math
// with no teacher analogue.
package reclaim

import (
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/timabell/disk-hog-backup/pkg/setid"
)

// Source is the minimal random source Select needs; *math/rand/v2.Rand
// satisfies it.
type Source interface {
	Float64() float64
}

// DirSize sums the size of every regular file under root, used to size
// each candidate set passed to Select.
func DirSize(root string) (uint64, error) {
	var total uint64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += uint64(info.Size())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// candidate pairs a set with its size and computed selection weight.
type candidate struct {
	set    setid.Set
	size   uint64
	weight float64
}

// Select chooses zero or more sets from sets (ordered oldest-first, as
// setid.ListSets returns them) for deletion:
//
//   - the most recent set (sets[len(sets)-1]) is never selected;
//   - selection is weighted-random without replacement, continuing until
//     the cumulative size of selected sets reaches neededBytes or no
//     eligible candidate remains (only the most recent set is left);
//   - each set i's weight is (1/Δt_i)^exponent, where Δt_i is the
//     interval in days from set i-1 to set i (or since the epoch for the
//     oldest set); non-positive weights are excluded from selection.
//
// sizes must be parallel to sets (sizes[i] is the byte size of sets[i]),
// typically produced by DirSize.
func Select(sets []setid.Set, sizes []uint64, neededBytes uint64, exponent float64, rng Source) []setid.Set {
	if len(sets) < 2 {
		return nil
	}

	candidates := make([]candidate, 0, len(sets)-1)
	var previous time.Time
	for i, s := range sets {
		var deltaDays float64
		if i == 0 {
			deltaDays = s.CreatedAt.Sub(time.Unix(0, 0).UTC()).Hours() / 24
		} else {
			deltaDays = s.CreatedAt.Sub(previous).Hours() / 24
		}
		previous = s.CreatedAt

		// The most recent set is never an eligible candidate.
		if i == len(sets)-1 {
			continue
		}

		weight := 0.0
		if deltaDays > 0 {
			weight = math.Pow(1/deltaDays, exponent)
		}
		candidates = append(candidates, candidate{set: s, size: sizes[i], weight: weight})
	}

	var selected []setid.Set
	var accumulated uint64

	for accumulated < neededBytes && len(candidates) > 0 {
		var totalWeight float64
		for _, c := range candidates {
			totalWeight += c.weight
		}
		if totalWeight <= 0 {
			break
		}

		pick := rng.Float64() * totalWeight
		var index int
		var cumulative float64
		for i, c := range candidates {
			cumulative += c.weight
			if pick < cumulative {
				index = i
				break
			}
			index = i
		}

		chosen := candidates[index]
		selected = append(selected, chosen.set)
		accumulated += chosen.size
		candidates = append(candidates[:index], candidates[index+1:]...)
	}

	return selected
}
