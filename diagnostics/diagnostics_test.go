package diagnostics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStatReportsSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, make([]byte, 4096), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	stat, err := Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.Size != 4096 {
		t.Fatalf("expected size 4096, got %d", stat.Size)
	}
	if stat.ModTime.IsZero() {
		t.Fatalf("expected a non-zero mod time")
	}
}

func TestStatMissingFile(t *testing.T) {
	if _, err := Stat(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestDumpBlockContainsOffsetAndASCII(t *testing.T) {
	data := []byte("hello, sectorfs!")
	out := DumpBlock(data)
	if !strings.Contains(out, "00000000") {
		t.Fatalf("expected a hex offset header in dump, got %q", out)
	}
	if !strings.Contains(out, "hello") {
		t.Fatalf("expected ASCII rendering in dump, got %q", out)
	}
}

func TestDiffBlocksReportsNoChangeForIdenticalBlocks(t *testing.T) {
	a := bytes.Repeat([]byte{0xAA}, 32)
	b := bytes.Repeat([]byte{0xAA}, 32)
	changed, out := DiffBlocks(a, b)
	if changed {
		t.Fatalf("expected identical blocks to report no change, got dump %q", out)
	}
}

func TestDiffBlocksHighlightsDifference(t *testing.T) {
	a := bytes.Repeat([]byte{0xAA}, 32)
	b := bytes.Repeat([]byte{0xAA}, 32)
	b[10] = 0xBB
	changed, out := DiffBlocks(a, b)
	if !changed {
		t.Fatalf("expected a single differing byte to be reported as changed")
	}
	if out == "" {
		t.Fatalf("expected a non-empty diff dump")
	}
}
