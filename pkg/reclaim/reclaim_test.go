package reclaim

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/timabell/disk-hog-backup/pkg/setid"
)

// fixedSource is a deterministic Source for tests: it always returns the
// values in sequence (cycling), so selection order is predictable.
type fixedSource struct {
	values []float64
	idx    int
}

func (f *fixedSource) Float64() float64 {
	v := f.values[f.idx%len(f.values)]
	f.idx++
	return v
}

func makeSets(days ...int) []setid.Set {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sets := make([]setid.Set, len(days))
	for i, d := range days {
		t := base.AddDate(0, 0, d)
		sets[i] = setid.Set{Name: setid.New(t), Path: "/sets/" + setid.New(t), CreatedAt: t}
	}
	return sets
}

func TestSelectNeverPicksMostRecentSet(t *testing.T) {
	sets := makeSets(0, 10, 20, 30)
	sizes := []uint64{100, 100, 100, 100}
	rng := &fixedSource{values: []float64{0.99}}

	selected := Select(sets, sizes, 1000, 2.0, rng)
	for _, s := range selected {
		if s.Name == sets[len(sets)-1].Name {
			t.Fatalf("most recent set must never be selected")
		}
	}
}

func TestSelectStopsWhenBudgetMet(t *testing.T) {
	sets := makeSets(0, 5, 10, 15, 20)
	sizes := []uint64{50, 50, 50, 50, 50}
	rng := &fixedSource{values: []float64{0.0}}

	selected := Select(sets, sizes, 60, 2.0, rng)
	var total uint64
	for _, s := range selected {
		for i, candidate := range sets {
			if candidate.Name == s.Name {
				total += sizes[i]
			}
		}
	}
	if total < 60 {
		t.Fatalf("expected accumulated size to reach the needed-bytes budget, got %d", total)
	}
	if len(selected) == 0 {
		t.Fatalf("expected at least one set selected")
	}
}

func TestSelectStopsWhenOnlyNewestSetRemains(t *testing.T) {
	sets := makeSets(0, 5, 10)
	sizes := []uint64{10, 10, 10}
	rng := &fixedSource{values: []float64{0.0}}

	// Needed bytes far exceeds what the two eligible candidates could
	// ever provide, so selection must take both and stop once only the
	// most recent set remains rather than looping forever.
	selected := Select(sets, sizes, 1_000_000, 2.0, rng)
	if len(selected) != 2 {
		t.Fatalf("expected both eligible candidates selected, got %d", len(selected))
	}
}

func TestSelectReturnsNoneForFewerThanTwoSets(t *testing.T) {
	sets := makeSets(0)
	sizes := []uint64{10}
	rng := &fixedSource{values: []float64{0.5}}

	if selected := Select(sets, sizes, 1000, 2.0, rng); selected != nil {
		t.Fatalf("expected no selection when fewer than two sets exist, got %v", selected)
	}
}

func TestSelectExcludesNonPositiveWeights(t *testing.T) {
	// Two sets created at the exact same instant have a zero interval,
	// giving a non-positive weight that must be excluded.
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sets := []setid.Set{
		{Name: "dhb-set-a", CreatedAt: base},
		{Name: "dhb-set-b", CreatedAt: base},
		{Name: "dhb-set-c", CreatedAt: base.AddDate(0, 0, 5)},
	}
	sizes := []uint64{10, 10, 10}
	rng := &fixedSource{values: []float64{0.0}}

	selected := Select(sets, sizes, 5, 2.0, rng)
	for _, s := range selected {
		if s.Name == "dhb-set-b" {
			t.Fatalf("expected zero-interval set to carry zero weight and never be selected")
		}
	}
}

func TestDirSizeSumsRegularFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("12345"), 0644); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("123"), 0644); err != nil {
		t.Fatalf("write b: %v", err)
	}

	size, err := DirSize(root)
	if err != nil {
		t.Fatalf("dir size: %v", err)
	}
	if size != 8 {
		t.Fatalf("expected size 8, got %d", size)
	}
}
