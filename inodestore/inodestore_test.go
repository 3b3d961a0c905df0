package inodestore

import (
	"path/filepath"
	"testing"

	"github.com/sectorfs/sectorfs/image"
)

func TestAllocateInodeThenMarkAllocated(t *testing.T) {
	dir := t.TempDir()
	backendPath := filepath.Join(dir, "disk.img")
	b, err := image.CreateFileStore(backendPath, 4096)
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	s, err := Open(b, 0, 32, filepath.Join(dir, "inode-map"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	byteIdx, bitIdx, ok := s.AllocateInode()
	if !ok {
		t.Fatalf("expected a free inode")
	}
	if byteIdx != 0 || bitIdx != 0 {
		t.Fatalf("expected the first free bit to be (0,0), got (%d,%d)", byteIdx, bitIdx)
	}
	if err := s.MarkAllocated(byteIdx, bitIdx); err != nil {
		t.Fatalf("mark allocated: %v", err)
	}

	byteIdx2, bitIdx2, ok := s.AllocateInode()
	if !ok {
		t.Fatalf("expected a second free inode")
	}
	if byteIdx2 != 0 || bitIdx2 != 1 {
		t.Fatalf("expected the next free bit to be (0,1), got (%d,%d)", byteIdx2, bitIdx2)
	}
}

func TestDeallocateInodeReturnsItToPool(t *testing.T) {
	dir := t.TempDir()
	b, err := image.CreateFileStore(filepath.Join(dir, "disk.img"), 4096)
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	s, err := Open(b, 0, 16, filepath.Join(dir, "inode-map"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	byteIdx, bitIdx, ok := s.AllocateInode()
	if !ok {
		t.Fatalf("expected a free inode")
	}
	n := uint32(byteIdx*8 + bitIdx)
	if err := s.MarkAllocated(byteIdx, bitIdx); err != nil {
		t.Fatalf("mark allocated: %v", err)
	}
	if err := s.DeallocateInode(n); err != nil {
		t.Fatalf("deallocate: %v", err)
	}

	byteIdx2, bitIdx2, ok := s.AllocateInode()
	if !ok {
		t.Fatalf("expected the inode to be reusable")
	}
	if uint32(byteIdx2*8+bitIdx2) != n {
		t.Fatalf("expected the freed inode %d to be reallocated first, got %d", n, byteIdx2*8+bitIdx2)
	}
}

func TestReadWriteInodeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := image.CreateFileStore(filepath.Join(dir, "disk.img"), 4096)
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	s, err := Open(b, 0, 16, filepath.Join(dir, "inode-map"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	rec := &Record{}
	s.InitRecord(rec)
	rec.FileType = 1
	rec.FileSize = 42
	rec.DirectPtr[3] = 9000

	if err := s.WriteInode(2, rec); err != nil {
		t.Fatalf("write inode: %v", err)
	}
	got, err := s.ReadInode(2)
	if err != nil {
		t.Fatalf("read inode: %v", err)
	}
	if got.FileType != 1 || got.FileSize != 42 || got.DirectPtr[3] != 9000 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.DirectPtr[0] != NilPtr || got.SIndirect != NilPtr {
		t.Fatalf("expected untouched pointer slots to stay NIL: %+v", got)
	}
}

func TestInitPointersLeavesScalarFieldsAlone(t *testing.T) {
	dir := t.TempDir()
	b, err := image.CreateFileStore(filepath.Join(dir, "disk.img"), 4096)
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	s, err := Open(b, 0, 16, filepath.Join(dir, "inode-map"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	rec := &Record{FileType: 2, FileSize: 100, LinkCount: 3}
	rec.DirectPtr[0] = 123
	s.InitPointers(rec)

	if rec.FileType != 2 || rec.FileSize != 100 || rec.LinkCount != 3 {
		t.Fatalf("InitPointers must not touch scalar fields: %+v", rec)
	}
	if rec.DirectPtr[0] != NilPtr || rec.SIndirect != NilPtr || rec.DIndirect != NilPtr || rec.TIndirect != NilPtr {
		t.Fatalf("InitPointers must NIL every pointer slot: %+v", rec)
	}
}

func TestOpenLoadsBitmapFromExistingMapFile(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "inode-map")
	b, err := image.CreateFileStore(filepath.Join(dir, "disk.img"), 4096)
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	s, err := Open(b, 0, 16, mapPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	byteIdx, bitIdx, ok := s.AllocateInode()
	if !ok {
		t.Fatalf("expected a free inode")
	}
	if err := s.MarkAllocated(byteIdx, bitIdx); err != nil {
		t.Fatalf("mark allocated: %v", err)
	}

	s2, err := Open(b, 0, 16, mapPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	byteIdx2, bitIdx2, ok := s2.AllocateInode()
	if !ok {
		t.Fatalf("expected a free inode on reopen")
	}
	if byteIdx2 != 0 || bitIdx2 != 1 {
		t.Fatalf("expected the previously allocated bit to stay allocated across reopen, got (%d,%d)", byteIdx2, bitIdx2)
	}
}
