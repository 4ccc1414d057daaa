package walk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/timabell/disk-hog-backup/pkg/digestindex"
	"github.com/timabell/disk-hog-backup/pkg/memory"
	"github.com/timabell/disk-hog-backup/pkg/telemetry"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestWalkRecreatesTreeAndRecordsDigests(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "source")
	target := filepath.Join(root, "target")

	writeFile(t, filepath.Join(source, "a.txt"), []byte("alpha"))
	writeFile(t, filepath.Join(source, "nested", "b.txt"), []byte("bravo"))

	idx := digestindex.New()
	counters := telemetry.NewCounters()
	budget := memory.NewBudget(1 << 20)

	err := Walk(context.Background(), Params{
		SourceRoot: source,
		TargetRoot: target,
		Index:      idx,
		Budget:     budget,
		Counters:   counters,
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	if got, err := os.ReadFile(filepath.Join(target, "a.txt")); err != nil || string(got) != "alpha" {
		t.Fatalf("expected a.txt copied, got %q err %v", got, err)
	}
	if got, err := os.ReadFile(filepath.Join(target, "nested", "b.txt")); err != nil || string(got) != "bravo" {
		t.Fatalf("expected nested/b.txt copied, got %q err %v", got, err)
	}
	if _, ok := idx.Lookup("a.txt"); !ok {
		t.Fatalf("expected a.txt digest recorded")
	}
	if _, ok := idx.Lookup(filepath.Join("nested", "b.txt")); !ok {
		t.Fatalf("expected nested/b.txt digest recorded")
	}
}

func TestWalkHonorsDhbignore(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "source")
	target := filepath.Join(root, "target")

	writeFile(t, filepath.Join(source, ".dhbignore"), []byte("*.tmp\n"))
	writeFile(t, filepath.Join(source, "keep.txt"), []byte("keep"))
	writeFile(t, filepath.Join(source, "drop.tmp"), []byte("drop"))

	idx := digestindex.New()
	counters := telemetry.NewCounters()
	budget := memory.NewBudget(1 << 20)

	err := Walk(context.Background(), Params{
		SourceRoot: source,
		TargetRoot: target,
		Index:      idx,
		Budget:     budget,
		Counters:   counters,
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	if _, err := os.Stat(filepath.Join(target, "keep.txt")); err != nil {
		t.Fatalf("expected keep.txt to be copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "drop.tmp")); !os.IsNotExist(err) {
		t.Fatalf("expected drop.tmp to be ignored, stat err = %v", err)
	}
	if counters.Snapshot().FilesIgnored != 1 {
		t.Fatalf("expected one ignored file recorded")
	}
}

func TestWalkRecreatesSymlinksWithoutFollowing(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "source")
	target := filepath.Join(root, "target")

	writeFile(t, filepath.Join(source, "real.txt"), []byte("real"))
	if err := os.MkdirAll(source, 0755); err != nil {
		t.Fatalf("mkdir source: %v", err)
	}
	if err := os.Symlink("real.txt", filepath.Join(source, "link.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	idx := digestindex.New()
	counters := telemetry.NewCounters()
	budget := memory.NewBudget(1 << 20)

	err := Walk(context.Background(), Params{
		SourceRoot: source,
		TargetRoot: target,
		Index:      idx,
		Budget:     budget,
		Counters:   counters,
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	linkTarget, err := os.Readlink(filepath.Join(target, "link.txt"))
	if err != nil {
		t.Fatalf("expected symlink to be recreated: %v", err)
	}
	if linkTarget != "real.txt" {
		t.Fatalf("expected symlink target to be preserved verbatim, got %q", linkTarget)
	}
}

func TestWalkDoesNotFollowCyclicDirectorySymlink(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "source")
	target := filepath.Join(root, "target")

	if err := os.MkdirAll(filepath.Join(source, "sub"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(source, "sub", "file.txt"), []byte("data"))
	if err := os.Symlink("..", filepath.Join(source, "sub", "loop")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	idx := digestindex.New()
	counters := telemetry.NewCounters()
	budget := memory.NewBudget(1 << 20)

	err := Walk(context.Background(), Params{
		SourceRoot: source,
		TargetRoot: target,
		Index:      idx,
		Budget:     budget,
		Counters:   counters,
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	if _, err := os.Lstat(filepath.Join(target, "sub", "loop")); err != nil {
		t.Fatalf("expected loop symlink to be recreated verbatim: %v", err)
	}
}

func TestWalkProducesEmptyDirectoryAtTarget(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "source")
	target := filepath.Join(root, "target")

	if err := os.MkdirAll(filepath.Join(source, "empty"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	idx := digestindex.New()
	counters := telemetry.NewCounters()
	budget := memory.NewBudget(1 << 20)

	err := Walk(context.Background(), Params{
		SourceRoot: source,
		TargetRoot: target,
		Index:      idx,
		Budget:     budget,
		Counters:   counters,
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	info, err := os.Stat(filepath.Join(target, "empty"))
	if err != nil || !info.IsDir() {
		t.Fatalf("expected empty directory to be recreated at target: %v", err)
	}
}

func TestEstimateSizeMatchesIgnoreLogic(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "source")

	writeFile(t, filepath.Join(source, ".dhbignore"), []byte("*.tmp\n"))
	writeFile(t, filepath.Join(source, "keep.txt"), []byte("12345"))
	writeFile(t, filepath.Join(source, "drop.tmp"), []byte("1234567890"))
	writeFile(t, filepath.Join(source, "nested", "deep.txt"), []byte("123"))

	total, err := EstimateSize(source)
	if err != nil {
		t.Fatalf("estimate size: %v", err)
	}
	// The .dhbignore file is itself backed up, so its 6 bytes count too.
	if total != 6+5+3 {
		t.Fatalf("expected estimate to exclude ignored file, got %d", total)
	}
}
