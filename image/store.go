package image

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

var (
	// ErrIncorrectOpenMode is returned by Writable when the backing store
	// was opened read-only.
	ErrIncorrectOpenMode = errors.New("image: backing store not open for write")
	// ErrNotSuitable is returned when a backing store does not support an
	// operation a caller asked for.
	ErrNotSuitable = errors.New("image: backing store not suitable for this operation")
)

// blockFile is the minimal read/seek/close capability any backing store
// must provide.
type blockFile interface {
	fs.File
	io.ReaderAt
	io.Seeker
	io.Closer
}

// WritableRegion is a blockFile that also supports positioned writes — what
// BackingStore.Writable returns.
type WritableRegion interface {
	blockFile
	io.WriterAt
}

// BackingStore is the single contiguous byte-addressable region a sectorfs
// image reads and writes through: a plain disk image file, a real block
// device, or (via Region) a sub-range carved out of either — the inode
// table or data region sliced out of the full image, rather than an
// arbitrary partition.
type BackingStore interface {
	blockFile
	// Sys returns the underlying *os.File, for platform ioctl probing of a
	// real block device's sector size.
	Sys() (*os.File, error)
	// Writable returns a write-capable view of this store, or
	// ErrIncorrectOpenMode if it was opened read-only.
	Writable() (WritableRegion, error)
}
