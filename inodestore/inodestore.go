// Package inodestore implements the Inode Store: the fixed-size inode
// record table plus the bitmap allocator over inode numbers. It is an
// external collaborator to the File Sector Manager, in the same sense the
// Sector Space Manager is: fsm consumes it only through Store's exported
// methods.
package inodestore

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/sectorfs/sectorfs/image"
)

// NilPtr is the raw on-disk null pointer sentinel: all 32 bits set.
const NilPtr uint32 = 0xFFFFFFFF

// recordSize is the on-disk byte width of a single inode record: fileType,
// fileSize, dataBlocks, linkCount (4 uint32 each) plus 10 direct pointers
// and 3 indirect pointers, all 4-byte words.
const recordSize = 4*4 + (10+3)*4

// Record is the in-memory form of one inode.
type Record struct {
	FileType   uint32 // 0 = free/unused, 1 = regular file, 2 = directory
	FileSize   uint32
	DataBlocks uint32
	LinkCount  uint32
	DirectPtr  [10]uint32
	SIndirect  uint32
	DIndirect  uint32
	TIndirect  uint32
}

// Store is the inode record table plus its bitmap allocator. Records live
// at tableStart + n*recordSize within the same backing store the rest of
// the filesystem uses; the bitmap is persisted to a separate sidecar file
// (conventionally named FSM_INODE_MAP, per spec.md's literal filename).
type Store struct {
	store      image.BackingStore
	tableStart uint32
	count      uint32
	mapPath    string
	bm         *inodeBitmap
}

// Open attaches a Store to an existing backing store and loads (or, if
// absent, creates) its inode bitmap from mapPath.
func Open(b image.BackingStore, tableStart, count uint32, mapPath string) (*Store, error) {
	s := &Store{
		store:      b,
		tableStart: tableStart,
		count:      count,
		mapPath:    mapPath,
	}
	buf, err := os.ReadFile(mapPath)
	switch {
	case err == nil:
		s.bm = inodeBitmapFromBytes(buf)
	case os.IsNotExist(err):
		s.bm = newAllFreeInodeBitmap(count)
	default:
		return nil, fmt.Errorf("inodestore: reading map file %s: %w", mapPath, err)
	}
	return s, nil
}

func (s *Store) saveMap() error {
	if err := os.WriteFile(s.mapPath, s.bm.toBytes(), 0o644); err != nil {
		return fmt.Errorf("inodestore: writing map file %s: %w", s.mapPath, err)
	}
	return nil
}

// InitRecord zeroes every field of r and sets every pointer slot to NilPtr.
func (s *Store) InitRecord(r *Record) {
	*r = Record{}
	s.InitPointers(r)
}

// InitPointers resets only the pointer slots of r to NilPtr, leaving
// fileType/fileSize/dataBlocks/linkCount untouched. Used when a directory's
// linkCount drops to zero and its tree must be torn down but the record
// itself is reused in place.
func (s *Store) InitPointers(r *Record) {
	for i := range r.DirectPtr {
		r.DirectPtr[i] = NilPtr
	}
	r.SIndirect = NilPtr
	r.DIndirect = NilPtr
	r.TIndirect = NilPtr
}

func (s *Store) offsetFor(n uint32) int64 {
	return int64(s.tableStart) + int64(n)*int64(recordSize)
}

// ReadInode loads the record stored at inode number n.
func (s *Store) ReadInode(n uint32) (*Record, error) {
	buf := make([]byte, recordSize)
	if _, err := s.store.ReadAt(buf, s.offsetFor(n)); err != nil {
		return nil, fmt.Errorf("inodestore: read inode %d: %w", n, err)
	}
	r := &Record{}
	le := binary.LittleEndian
	r.FileType = le.Uint32(buf[0:4])
	r.FileSize = le.Uint32(buf[4:8])
	r.DataBlocks = le.Uint32(buf[8:12])
	r.LinkCount = le.Uint32(buf[12:16])
	off := 16
	for i := range r.DirectPtr {
		r.DirectPtr[i] = le.Uint32(buf[off : off+4])
		off += 4
	}
	r.SIndirect = le.Uint32(buf[off : off+4])
	off += 4
	r.DIndirect = le.Uint32(buf[off : off+4])
	off += 4
	r.TIndirect = le.Uint32(buf[off : off+4])
	return r, nil
}

// WriteInode persists r at inode number n.
func (s *Store) WriteInode(n uint32, r *Record) error {
	buf := make([]byte, recordSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], r.FileType)
	le.PutUint32(buf[4:8], r.FileSize)
	le.PutUint32(buf[8:12], r.DataBlocks)
	le.PutUint32(buf[12:16], r.LinkCount)
	off := 16
	for _, p := range r.DirectPtr {
		le.PutUint32(buf[off:off+4], p)
		off += 4
	}
	le.PutUint32(buf[off:off+4], r.SIndirect)
	off += 4
	le.PutUint32(buf[off:off+4], r.DIndirect)
	off += 4
	le.PutUint32(buf[off:off+4], r.TIndirect)

	w, err := s.store.Writable()
	if err != nil {
		return fmt.Errorf("inodestore: not writable: %w", err)
	}
	if _, err := w.WriteAt(buf, s.offsetFor(n)); err != nil {
		return fmt.Errorf("inodestore: write inode %d: %w", n, err)
	}
	return nil
}

// AllocateInode finds the first free inode bit and returns its byte and bit
// index WITHOUT yet marking it allocated — callers must compute the inode
// number from (byteIndex, bitIndex) themselves before calling MarkAllocated,
// mirroring the source's ordering: the number is derived from the map
// offsets before the allocator flips the bit.
func (s *Store) AllocateInode() (byteIndex, bitIndex int, ok bool) {
	bit := s.firstFreeBit()
	if bit < 0 {
		return 0, 0, false
	}
	return bit / 8, bit % 8, true
}

// MarkAllocated flips the bit identified by (byteIndex, bitIndex) from free
// to allocated and persists the bitmap.
func (s *Store) MarkAllocated(byteIndex, bitIndex int) error {
	if err := s.bm.markAllocated(byteIndex*8 + bitIndex); err != nil {
		return fmt.Errorf("inodestore: marking inode allocated: %w", err)
	}
	return s.saveMap()
}

// DeallocateInode returns inode number n to the pool.
func (s *Store) DeallocateInode(n uint32) error {
	if err := s.bm.markFree(int(n)); err != nil {
		return fmt.Errorf("inodestore: deallocating inode %d: %w", n, err)
	}
	return s.saveMap()
}

// firstFreeBit scans for the lowest free inode number, bounded to the
// valid inode range.
func (s *Store) firstFreeBit() int {
	return s.bm.firstFree(int(s.count))
}
