package fsm

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sectorfs/sectorfs/image"
	"github.com/sectorfs/sectorfs/inodestore"
	"github.com/sectorfs/sectorfs/ssm"
)

// testConstants lays out a small image: 512-byte blocks, a 5-block inode
// table (room for 32 inodes), and a 64-sector data region.
func testConstants() Constants {
	return Constants{
		BlockSize:   512,
		DiskSize:    2*512 + 5*512 + 64*512,
		InodeSize:   68,
		InodeBlocks: 5,
		InodeCount:  32,
	}
}

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	c := testConstants()
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "disk.img")

	img, err := image.Create(imgPath, int64(c.DiskSize))
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	inodeTableStart := uint32(2 * c.BlockSize)
	dataStart := inodeTableStart + c.InodeBlocks*c.BlockSize
	sectorCap := (c.DiskSize - dataStart) / c.BlockSize

	sm := ssm.New(filepath.Join(dir, "ssm-map"), c.BlockSize, dataStart, sectorCap)
	inodes, err := inodestore.Open(img.Store(), inodeTableStart, c.InodeCount, filepath.Join(dir, "inode-map"))
	if err != nil {
		t.Fatalf("open inode store: %v", err)
	}

	fsys, err := Make(c, img, sm, inodes)
	if err != nil {
		t.Fatalf("make filesystem: %v", err)
	}
	t.Cleanup(func() { fsys.Close() })
	return fsys
}

func TestMakeStampsNonZeroUUID(t *testing.T) {
	fsys := newTestFS(t)
	id, err := fsys.UUID()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	if id.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("expected Make to stamp a random, non-zero UUID")
	}
}

func TestMakeCreatesRootWithDotEntries(t *testing.T) {
	fsys := newTestFS(t)

	rec, err := fsys.OpenFile(rootInode)
	if err != nil {
		t.Fatalf("open root: %v", err)
	}
	if rec.FileType != 2 {
		t.Fatalf("expected root to be a directory, got fileType=%d", rec.FileType)
	}
	if rec.LinkCount != 2 {
		t.Fatalf("expected root to have exactly 2 entries (. and ..), got %d", rec.LinkCount)
	}

	block, err := fsys.img.ReadBlock(blockPtrFromRaw(rec.DirectPtr[0]).offset(), fsys.constants.BlockSize)
	if err != nil {
		t.Fatalf("read root block: %v", err)
	}
	_, _, selfInode, inUse := readEntrySlot(block, 0)
	if inUse != 1 || selfInode != rootInode {
		t.Fatalf("expected '.' entry to point at root inode %d, got inode=%d inUse=%d", rootInode, selfInode, inUse)
	}
	_, _, parentInode, inUse := readEntrySlot(block, 1)
	if inUse != 1 {
		t.Fatalf("expected '..' entry to be in use")
	}
	if parentInode != rawNil {
		t.Fatalf("expected root's '..' parent slot to be NIL, got %d", parentInode)
	}
}

func TestCreateFileInsertsEntryIntoParent(t *testing.T) {
	fsys := newTestFS(t)

	childNum, err := fsys.CreateFile(false, "hello.txt", rootInode)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	root, err := fsys.inodes.ReadInode(rootInode)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if root.LinkCount != 3 {
		t.Fatalf("expected root link count 3 after creating one child, got %d", root.LinkCount)
	}

	child, err := fsys.OpenFile(childNum)
	if err != nil {
		t.Fatalf("open child: %v", err)
	}
	if child.FileType != 1 {
		t.Fatalf("expected regular file type, got %d", child.FileType)
	}
}

func TestWriteFileThenReadFileRoundTrip(t *testing.T) {
	fsys := newTestFS(t)
	inodeNum, err := fsys.CreateFile(false, "data.bin", rootInode)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	payload := bytes.Repeat([]byte{0x5A}, 1200)
	if err := fsys.WriteFile(inodeNum, payload); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := fsys.ReadFile(inodeNum)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestWriteFileCrossesIntoSingleIndirect(t *testing.T) {
	fsys := newTestFS(t)
	inodeNum, err := fsys.CreateFile(false, "big.bin", rootInode)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	blockSize := int(fsys.constants.BlockSize)
	size := blockSize*inodeDirectPtrs + blockSize*3
	payload := bytes.Repeat([]byte{0x11}, size)
	if err := fsys.WriteFile(inodeNum, payload); err != nil {
		t.Fatalf("write file: %v", err)
	}

	rec, err := fsys.inodes.ReadInode(inodeNum)
	if err != nil {
		t.Fatalf("read inode: %v", err)
	}
	if blockPtrFromRaw(rec.SIndirect).isNil() {
		t.Fatalf("expected single-indirect pointer to be allocated for a file this size")
	}

	got, err := fsys.ReadFile(inodeNum)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch across single-indirect boundary")
	}
}

func TestWriteFilePreservesFloorDivisionDataBlocksQuirk(t *testing.T) {
	fsys := newTestFS(t)
	inodeNum, err := fsys.CreateFile(false, "quirk.bin", rootInode)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	blockSize := fsys.constants.BlockSize
	payload := make([]byte, blockSize+1) // one byte past a full block
	if err := fsys.WriteFile(inodeNum, payload); err != nil {
		t.Fatalf("write file: %v", err)
	}

	rec, err := fsys.inodes.ReadInode(inodeNum)
	if err != nil {
		t.Fatalf("read inode: %v", err)
	}
	// size/BLOCK_SIZE floors to 1, even though 2 blocks are actually used.
	if rec.DataBlocks != 1 {
		t.Fatalf("expected the preserved floor-division quirk to report DataBlocks=1, got %d", rec.DataBlocks)
	}
}

func TestRemoveFileDeletesEntryFromParent(t *testing.T) {
	fsys := newTestFS(t)
	inodeNum, err := fsys.CreateFile(false, "gone.txt", rootInode)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if err := fsys.RemoveFile(inodeNum, rootInode); err != nil {
		t.Fatalf("remove file: %v", err)
	}

	if _, err := fsys.OpenFile(inodeNum); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}

	root, err := fsys.inodes.ReadInode(rootInode)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if root.LinkCount != 2 {
		t.Fatalf("expected root link count to drop back to 2, got %d", root.LinkCount)
	}
}

func TestRemoveDirectoryRecursesIntoChildren(t *testing.T) {
	fsys := newTestFS(t)
	dirNum, err := fsys.CreateFile(true, "subdir", rootInode)
	if err != nil {
		t.Fatalf("create subdir: %v", err)
	}
	childNum, err := fsys.CreateFile(false, "child.txt", dirNum)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	if err := fsys.RemoveFile(dirNum, rootInode); err != nil {
		t.Fatalf("remove subdir: %v", err)
	}

	if _, err := fsys.OpenFile(childNum); err != ErrNotFound {
		t.Fatalf("expected child to be torn down along with its parent directory, got %v", err)
	}
	if _, err := fsys.OpenFile(dirNum); err != ErrNotFound {
		t.Fatalf("expected subdir itself to be removed")
	}
}

func TestRenameFileUpdatesNameNotInode(t *testing.T) {
	fsys := newTestFS(t)
	inodeNum, err := fsys.CreateFile(false, "old.txt", rootInode)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if err := fsys.RenameFile(inodeNum, rootInode, "new.txt"); err != nil {
		t.Fatalf("rename file: %v", err)
	}

	root, err := fsys.inodes.ReadInode(rootInode)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	block, err := fsys.img.ReadBlock(blockPtrFromRaw(root.DirectPtr[0]).offset(), fsys.constants.BlockSize)
	if err != nil {
		t.Fatalf("read root block: %v", err)
	}
	entries := int(fsys.entriesPerBlock())
	found := false
	for slot := 0; slot < entries; slot++ {
		lo, hi, inode, inUse := readEntrySlot(block, slot)
		if inUse == 1 && inode == inodeNum {
			if decodeName(lo, hi) != "new.txt" {
				t.Fatalf("expected renamed entry, got %q", decodeName(lo, hi))
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("expected to find the renamed entry for inode %d", inodeNum)
	}
}

func TestOpenFileNotFoundOnFreeInode(t *testing.T) {
	fsys := newTestFS(t)
	// inode 5 was never created by Make's bootstrap (boot=0, super=1, root=2).
	if _, err := fsys.OpenFile(5); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for a never-allocated inode, got %v", err)
	}
}
