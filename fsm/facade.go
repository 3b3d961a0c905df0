package fsm

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sectorfs/sectorfs/image"
	"github.com/sectorfs/sectorfs/inodestore"
	"github.com/sectorfs/sectorfs/ssm"
)

const (
	bootInode = 0
	superInode = 1
	rootInode = 2
)

// FileSystem is the public façade: Make, CreateFile, OpenFile, CloseFile,
// ReadFile, WriteFile, RemoveFile, RenameFile. It wraps one image.Image,
// one ssm.Manager, and one inodestore.Store, plus the single process-wide
// working inode slot the concurrency model requires.
//
// FileSystem is not safe for concurrent use from more than one goroutine —
// the single working-inode slot and single disk handle are properties of
// this model, not an oversight.
type FileSystem struct {
	constants Constants
	img       *image.Image
	ssm       *ssm.Manager
	inodes    *inodestore.Store

	// working is the single cached inode slot; workingNum is NilPtr's raw
	// value when no inode is currently open.
	working    *inodestore.Record
	workingNum uint32
}

// Open attaches a FileSystem to an already-created image, ssm manager, and
// inode store — the counterpart to Make for reopening an existing disk.
func Open(c Constants, img *image.Image, sm *ssm.Manager, inodes *inodestore.Store) *FileSystem {
	return &FileSystem{
		constants:  c,
		img:        img,
		ssm:        sm,
		inodes:     inodes,
		workingNum: nilPtr.raw(),
	}
}

// Make initializes a fresh filesystem: zeroes the disk image, resets the
// inode bitmap to all-free, reserves two sectors from the SSM, then creates
// inode 0 (boot) and inode 1 (super), pointed at the image's first two
// blocks (offsets 0 and BlockSize), and inode 2 (root directory, with "."
// and ".." entries). The inode table's position is the one the given
// inodestore.Store was opened with. It returns success only if every
// creation step succeeds, mirroring fs_make's all-or-nothing contract.
func Make(c Constants, img *image.Image, sm *ssm.Manager, inodes *inodestore.Store) (*FileSystem, error) {
	fsys := Open(c, img, sm, inodes)

	zero := make([]byte, c.BlockSize)
	for off := uint64(0); c.BlockSize > 0 && off+uint64(c.BlockSize) <= uint64(c.DiskSize); off += uint64(c.BlockSize) {
		if err := fsys.img.WriteBlock(uint32(off), zero); err != nil {
			return nil, fmt.Errorf("fsm: zeroing disk image: %w", err)
		}
	}
	for n := uint32(0); n < c.InodeCount; n++ {
		if err := fsys.inodes.DeallocateInode(n); err != nil {
			return nil, fmt.Errorf("fsm: resetting inode bitmap: %w", err)
		}
	}

	// boot + super block sectors
	if _, ok := fsys.ssm.AllocateSectors(2); !ok {
		return nil, ErrOutOfSpace
	}

	if _, err := fsys.CreateFile(false, "", nilPtr.raw()); err != nil {
		return nil, fmt.Errorf("fsm: creating boot inode: %w", err)
	}
	boot, err := fsys.inodes.ReadInode(bootInode)
	if err != nil {
		return nil, err
	}
	boot.DirectPtr[0] = 0
	if err := fsys.inodes.WriteInode(bootInode, boot); err != nil {
		return nil, err
	}

	if _, err := fsys.CreateFile(false, "", nilPtr.raw()); err != nil {
		return nil, fmt.Errorf("fsm: creating super inode: %w", err)
	}
	sup, err := fsys.inodes.ReadInode(superInode)
	if err != nil {
		return nil, err
	}
	sup.DirectPtr[0] = c.BlockSize
	if err := fsys.inodes.WriteInode(superInode, sup); err != nil {
		return nil, err
	}
	id := uuid.New()
	superBlock := make([]byte, c.BlockSize)
	copy(superBlock, id[:])
	if err := fsys.img.WriteBlock(sup.DirectPtr[0], superBlock); err != nil {
		return nil, fmt.Errorf("fsm: stamping filesystem UUID: %w", err)
	}

	if _, err := fsys.CreateFile(true, "", nilPtr.raw()); err != nil {
		return nil, fmt.Errorf("fsm: creating root directory: %w", err)
	}

	return fsys, nil
}

// UUID reads the filesystem identifier fsm.Make stamped into the super
// block at creation time, the same role ext4's superblock UUID plays:
// a stable identity for this image independent of its file path.
func (fsys *FileSystem) UUID() (uuid.UUID, error) {
	sup, err := fsys.inodes.ReadInode(superInode)
	if err != nil {
		return uuid.UUID{}, err
	}
	block, err := fsys.img.ReadBlock(sup.DirectPtr[0], 16)
	if err != nil {
		return uuid.UUID{}, err
	}
	return uuid.FromBytes(block)
}

// Close releases the underlying backing store, the counterpart to
// fs_remove.
func (fsys *FileSystem) Close() error {
	return fsys.img.Close()
}

// CreateFile reserves an inode, initializes its fields, and inserts an
// entry for it into parentInodeNum's directory. For a directory it
// additionally inserts "." and ".." entries. The inode number for the new
// file's own parent-less creation (boot/super/root bootstrap) is signaled
// by parentInodeNum == NIL, in which case no parent entry is inserted —
// fs_make's own inode 0/1/2 creation calls pass (unsigned int)(-1) for
// exactly this reason.
func (fsys *FileSystem) CreateFile(isDirectory bool, name string, parentInodeNum uint32) (uint32, error) {
	byteIdx, bitIdx, ok := fsys.inodes.AllocateInode()
	if !ok {
		return 0, ErrOutOfInodes
	}
	inodeNum := uint32(8*byteIdx + bitIdx)

	rec, err := fsys.inodes.ReadInode(inodeNum)
	if err != nil {
		return 0, err
	}
	fsys.inodes.InitRecord(rec)
	if isDirectory {
		rec.FileType = 2
	} else {
		rec.FileType = 1
	}
	if err := fsys.inodes.WriteInode(inodeNum, rec); err != nil {
		return 0, err
	}
	if err := fsys.inodes.MarkAllocated(byteIdx, bitIdx); err != nil {
		return 0, err
	}

	if isDirectory {
		if err := fsys.insertEntry(inodeNum, ".", inodeNum); err != nil {
			return 0, err
		}
		// ".." points at the real parent, or stays NIL for the root
		// directory, which has none — spec.md calls this out explicitly.
		if err := fsys.insertEntry(inodeNum, "..", parentInodeNum); err != nil {
			return 0, err
		}
	}

	if !blockPtrFromRaw(parentInodeNum).isNil() && name != "" {
		if err := fsys.insertEntry(parentInodeNum, name, inodeNum); err != nil {
			return 0, err
		}
	}

	return inodeNum, nil
}

// OpenFile loads inodeNum into the working slot. fileType <= 0 is treated
// as absent.
func (fsys *FileSystem) OpenFile(inodeNum uint32) (*inodestore.Record, error) {
	rec, err := fsys.inodes.ReadInode(inodeNum)
	if err != nil {
		return nil, err
	}
	if rec.FileType == 0 {
		fsys.inodes.InitRecord(rec)
		fsys.workingNum = nilPtr.raw()
		return nil, ErrNotFound
	}
	fsys.working = rec
	fsys.workingNum = inodeNum
	return rec, nil
}

// CloseFile resets the working inode slot.
func (fsys *FileSystem) CloseFile() {
	fsys.working = nil
	fsys.workingNum = nilPtr.raw()
}

// RemoveFile tears down inodeNum: if it is a directory, every child entry
// reachable through direct and indirect blocks is recursively removed
// first (skipping the "." and ".." self/parent slots at entry indices 0
// and 1 of EVERY directory data block it visits — not just the first —
// matching the source's uniform j-starts-at-8-words skip rather than a
// first-block-only special case); then every data and index block is
// deallocated, the inode cleared and returned to the allocator, and
// finally the entry is removed from the parent directory.
func (fsys *FileSystem) RemoveFile(inodeNum, parentInodeNum uint32) error {
	rec, err := fsys.OpenFile(inodeNum)
	if err != nil {
		return err
	}

	directPtrs := rec.DirectPtr
	sIndirect := blockPtrFromRaw(rec.SIndirect)
	dIndirect := blockPtrFromRaw(rec.DIndirect)
	tIndirect := blockPtrFromRaw(rec.TIndirect)
	fileType := rec.FileType

	for _, raw := range directPtrs {
		ptr := blockPtrFromRaw(raw)
		if ptr.isNil() {
			continue
		}
		if err := fsys.teardownLeafBlock(ptr, fileType, inodeNum); err != nil {
			return err
		}
		fsys.ssm.DeallocateSectors(fsys.ssm.SectorIndex(ptr.offset()))
	}

	if !sIndirect.isNil() {
		if err := fsys.teardownTree(1, sIndirect, fileType, inodeNum); err != nil {
			return err
		}
	}
	if !dIndirect.isNil() {
		if err := fsys.teardownTree(2, dIndirect, fileType, inodeNum); err != nil {
			return err
		}
	}
	if !tIndirect.isNil() {
		if err := fsys.teardownTree(3, tIndirect, fileType, inodeNum); err != nil {
			return err
		}
	}

	clean, err := fsys.inodes.ReadInode(inodeNum)
	if err != nil {
		return err
	}
	fsys.inodes.InitRecord(clean)
	if err := fsys.inodes.WriteInode(inodeNum, clean); err != nil {
		return err
	}
	if err := fsys.inodes.DeallocateInode(inodeNum); err != nil {
		return err
	}
	fsys.CloseFile()

	if blockPtrFromRaw(parentInodeNum).isNil() {
		return nil
	}
	return fsys.removeEntry(parentInodeNum, inodeNum)
}

// teardownLeafBlock recurses into a directory data block's children
// (skipping entry slots 0 and 1, the "." / ".." convention) when fileType
// is a directory, then the caller deallocates the block itself.
func (fsys *FileSystem) teardownLeafBlock(offset blockPtr, fileType uint32, inodeNum uint32) error {
	if fileType != 2 {
		return nil
	}
	block, err := fsys.img.ReadBlock(offset.offset(), fsys.constants.BlockSize)
	if err != nil {
		return err
	}
	entries := int(fsys.entriesPerBlock())
	for slot := 2; slot < entries; slot++ {
		_, _, childInode, inUse := readEntrySlot(block, slot)
		if inUse != 1 {
			continue
		}
		if err := fsys.RemoveFile(childInode, inodeNum); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"inode":  childInode,
				"parent": inodeNum,
			}).Warn("fsm: best-effort recursive child removal failed")
		}
	}
	return nil
}

// teardownTree frees an entire indirect subtree unconditionally: every
// reachable leaf data block (recursing into directory children first),
// and every index block along the way.
func (fsys *FileSystem) teardownTree(depth int, offset blockPtr, fileType uint32, inodeNum uint32) error {
	block, err := fsys.img.ReadBlock(offset.offset(), fsys.constants.BlockSize)
	if err != nil {
		return err
	}
	ptrsPerBlock := fsys.constants.PtrsPerBlock()
	for i := uint32(0); i < ptrsPerBlock; i++ {
		child := blockPtrFromRaw(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
		if child.isNil() {
			continue
		}
		if depth == 1 {
			if err := fsys.teardownLeafBlock(child, fileType, inodeNum); err != nil {
				return err
			}
			fsys.ssm.DeallocateSectors(fsys.ssm.SectorIndex(child.offset()))
			continue
		}
		if err := fsys.teardownTree(depth-1, child, fileType, inodeNum); err != nil {
			return err
		}
	}
	fsys.ssm.DeallocateSectors(fsys.ssm.SectorIndex(offset.offset()))
	return nil
}

// RenameFile renames the directory entry for inodeNum within
// parentInodeNum's directory to newName.
func (fsys *FileSystem) RenameFile(inodeNum, parentInodeNum uint32, newName string) error {
	return fsys.renameEntry(parentInodeNum, inodeNum, newName)
}
