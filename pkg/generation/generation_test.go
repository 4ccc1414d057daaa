package generation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/timabell/disk-hog-backup/pkg/digestindex"
	"github.com/timabell/disk-hog-backup/pkg/memory"
)

func setup(t *testing.T) (sourceDir, priorDir, targetDir string, budget *memory.Budget) {
	t.Helper()
	root := t.TempDir()
	sourceDir = filepath.Join(root, "source")
	priorDir = filepath.Join(root, "prior")
	targetDir = filepath.Join(root, "target")
	for _, d := range []string{sourceDir, priorDir, targetDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	return sourceDir, priorDir, targetDir, memory.NewBudget(1 << 20)
}

func inode(t *testing.T, path string) uint64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	stat, ok := info.Sys().(*syscallStatT)
	if !ok {
		t.Fatalf("unexpected stat type for %s", path)
	}
	return stat.Ino
}

func TestGenerateNewFileCopies(t *testing.T) {
	sourceDir, _, targetDir, budget := setup(t)
	source := filepath.Join(sourceDir, "file.txt")
	if err := os.WriteFile(source, []byte("hello"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	target := filepath.Join(targetDir, "file.txt")
	idx := digestindex.New()

	result, err := Generate(context.Background(), Params{
		Source: source,
		Rel:    "file.txt",
		Target: target,
		Index:  idx,
		Budget: budget,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Disposition != DispositionCopyNew {
		t.Fatalf("expected DispositionCopyNew, got %v", result.Disposition)
	}
	if _, ok := idx.Lookup("file.txt"); !ok {
		t.Fatalf("expected digest to be recorded in index")
	}
	if got, err := os.ReadFile(target); err != nil || string(got) != "hello" {
		t.Fatalf("expected target to contain source content, got %q err %v", got, err)
	}
}

func TestGenerateSizeChangedCopies(t *testing.T) {
	sourceDir, priorDir, targetDir, budget := setup(t)
	priorPath := filepath.Join(priorDir, "file.txt")
	if err := os.WriteFile(priorPath, []byte("short"), 0644); err != nil {
		t.Fatalf("write prior: %v", err)
	}
	source := filepath.Join(sourceDir, "file.txt")
	if err := os.WriteFile(source, []byte("a much longer body of content"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	priorIndex := digestindex.New()
	priorIndex.Insert("file.txt", [16]byte{1})

	target := filepath.Join(targetDir, "file.txt")
	idx := digestindex.New()

	result, err := Generate(context.Background(), Params{
		Source:     source,
		Rel:        "file.txt",
		Target:     target,
		PriorRoot:  priorDir,
		PriorIndex: priorIndex,
		Index:      idx,
		Budget:     budget,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Disposition != DispositionCopySizeChanged {
		t.Fatalf("expected DispositionCopySizeChanged, got %v", result.Disposition)
	}
}

func TestGenerateMtimeTrustedHardlinks(t *testing.T) {
	sourceDir, priorDir, targetDir, budget := setup(t)
	priorPath := filepath.Join(priorDir, "file.txt")
	if err := os.WriteFile(priorPath, []byte("identical"), 0644); err != nil {
		t.Fatalf("write prior: %v", err)
	}
	source := filepath.Join(sourceDir, "file.txt")
	if err := os.WriteFile(source, []byte("identical"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	sharedMtime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(priorPath, sharedMtime, sharedMtime); err != nil {
		t.Fatalf("chtimes prior: %v", err)
	}
	if err := os.Chtimes(source, sharedMtime, sharedMtime); err != nil {
		t.Fatalf("chtimes source: %v", err)
	}

	priorDigest := [16]byte{9, 9, 9}
	priorIndex := digestindex.New()
	priorIndex.Insert("file.txt", priorDigest)

	target := filepath.Join(targetDir, "file.txt")
	idx := digestindex.New()

	result, err := Generate(context.Background(), Params{
		Source:     source,
		Rel:        "file.txt",
		Target:     target,
		PriorRoot:  priorDir,
		PriorIndex: priorIndex,
		Index:      idx,
		Budget:     budget,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Disposition != DispositionHardlinkMtimeTrusted {
		t.Fatalf("expected DispositionHardlinkMtimeTrusted, got %v", result.Disposition)
	}
	if result.Digest != priorDigest {
		t.Fatalf("expected trusted prior digest to be recorded without rehashing")
	}
	if got, ok := idx.Lookup("file.txt"); !ok || got != priorDigest {
		t.Fatalf("expected prior digest recorded in new index")
	}

	sourceInode := inode(t, source)
	priorInode := inode(t, priorPath)
	targetInode := inode(t, target)
	if targetInode != priorInode {
		t.Fatalf("expected target to be hardlinked to prior file (same inode)")
	}
	_ = sourceInode
}

func TestGenerateMtimeDifferButContentUnchangedHardlinks(t *testing.T) {
	sourceDir, priorDir, targetDir, budget := setup(t)
	content := []byte("stable content, touched mtime")
	priorPath := filepath.Join(priorDir, "file.txt")
	if err := os.WriteFile(priorPath, content, 0644); err != nil {
		t.Fatalf("write prior: %v", err)
	}
	source := filepath.Join(sourceDir, "file.txt")
	if err := os.WriteFile(source, content, 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := os.Chtimes(source, time.Now().Add(time.Hour), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("chtimes source: %v", err)
	}

	priorDigest := md5Sum(content)
	priorIndex := digestindex.New()
	priorIndex.Insert("file.txt", priorDigest)

	target := filepath.Join(targetDir, "file.txt")
	idx := digestindex.New()

	result, err := Generate(context.Background(), Params{
		Source:     source,
		Rel:        "file.txt",
		Target:     target,
		PriorRoot:  priorDir,
		PriorIndex: priorIndex,
		Index:      idx,
		Budget:     budget,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Disposition != DispositionHardlinkContentUnchanged {
		t.Fatalf("expected DispositionHardlinkContentUnchanged, got %v", result.Disposition)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected target to exist as a hardlink: %v", err)
	}
}

func TestGenerateMtimeDifferAndContentChangedCopies(t *testing.T) {
	sourceDir, priorDir, targetDir, budget := setup(t)
	priorPath := filepath.Join(priorDir, "file.txt")
	if err := os.WriteFile(priorPath, []byte("original9"), 0644); err != nil {
		t.Fatalf("write prior: %v", err)
	}
	source := filepath.Join(sourceDir, "file.txt")
	if err := os.WriteFile(source, []byte("changed!9"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := os.Chtimes(source, time.Now().Add(time.Hour), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("chtimes source: %v", err)
	}

	priorDigest := md5Sum([]byte("original9"))
	priorIndex := digestindex.New()
	priorIndex.Insert("file.txt", priorDigest)

	target := filepath.Join(targetDir, "file.txt")
	idx := digestindex.New()

	result, err := Generate(context.Background(), Params{
		Source:     source,
		Rel:        "file.txt",
		Target:     target,
		PriorRoot:  priorDir,
		PriorIndex: priorIndex,
		Index:      idx,
		Budget:     budget,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Disposition != DispositionCopyContentChanged {
		t.Fatalf("expected DispositionCopyContentChanged, got %v", result.Disposition)
	}
	got, err := os.ReadFile(target)
	if err != nil || string(got) != "changed!9" {
		t.Fatalf("expected target to contain changed content, got %q err %v", got, err)
	}
}
