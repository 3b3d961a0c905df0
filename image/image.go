// Package image provides the Disk Image I/O layer the File Sector Manager
// reads and writes through: a single contiguous, byte-addressable backing
// store of exactly Size bytes, accessed in BlockSize-aligned chunks.
//
// The backing store can be a plain file (the common case: a disk image) or
// a real block device, in which case sector sizes are probed from the
// kernel rather than assumed.
package image

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrMisaligned is returned when an offset is not a multiple of the
	// block size the access was made at.
	ErrMisaligned = errors.New("image: offset is not block-aligned")
	// ErrOutOfRange is returned when an access falls outside [0, Size).
	ErrOutOfRange = errors.New("image: access out of range")
)

// Kind distinguishes a plain file backing store from a real block device.
type Kind int

const (
	// KindFile is a regular file used as a disk image.
	KindFile Kind = iota
	// KindDevice is an OS-managed block device.
	KindDevice
)

// Image is a handle to a single flat backing byte array of exactly Size bytes.
type Image struct {
	store             BackingStore
	Kind              Kind
	Size              int64
	LogicalBlockSize  int64
	PhysicalBlockSize int64
}

// Create makes a new backing store of the given size at path. path must not
// already exist.
func Create(path string, size int64) (*Image, error) {
	if size <= 0 {
		return nil, fmt.Errorf("image: size must be positive, got %d", size)
	}
	b, err := createFileStore(path, size)
	if err != nil {
		return nil, fmt.Errorf("image: could not create backing store %s: %w", path, err)
	}
	return &Image{
		store:             b,
		Kind:              KindFile,
		Size:              size,
		LogicalBlockSize:  defaultBlockSize,
		PhysicalBlockSize: defaultBlockSize,
	}, nil
}

// Open opens an existing backing store at path, which may be a plain file
// or a real block device. Device sector sizes are probed via the platform's
// getSectorSizes; a plain file simply reports its length as Size.
func Open(path string) (*Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("image: could not stat %s: %w", path, err)
	}

	kind := KindFile
	size := info.Size()
	lblk := int64(defaultBlockSize)
	pblk := int64(defaultBlockSize)

	if info.Mode()&os.ModeDevice != 0 {
		kind = KindDevice
		f, err := os.OpenFile(path, os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("image: could not open device %s: %w", path, err)
		}
		lblk, pblk, err = getSectorSizes(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("image: could not probe sector sizes for %s: %w", path, err)
		}
		if size, err = deviceSize(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("image: could not determine size of device %s: %w", path, err)
		}
		return &Image{
			store:             newFileStore(f, false),
			Kind:              kind,
			Size:              size,
			LogicalBlockSize:  lblk,
			PhysicalBlockSize: pblk,
		}, nil
	}

	b, err := openFileStoreFromPath(path, false)
	if err != nil {
		return nil, fmt.Errorf("image: could not open %s: %w", path, err)
	}
	return &Image{
		store:             b,
		Kind:              kind,
		Size:              size,
		LogicalBlockSize:  lblk,
		PhysicalBlockSize: pblk,
	}, nil
}

// Close releases the underlying backing store.
func (img *Image) Close() error {
	return img.store.Close()
}

// Store returns the underlying BackingStore, for packages (ssm, inodestore,
// fsm) that need to read and write the flat byte array directly rather
// than through Image's block-aligned helpers.
func (img *Image) Store() BackingStore {
	return img.store
}

// ReadBlock reads exactly blockSize bytes starting at offset. offset must
// be a multiple of blockSize.
func (img *Image) ReadBlock(offset uint32, blockSize uint32) ([]byte, error) {
	if err := img.checkAligned(offset, blockSize); err != nil {
		return nil, err
	}
	buf := make([]byte, blockSize)
	if _, err := img.store.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("image: read at %d: %w", offset, err)
	}
	return buf, nil
}

// WriteBlock writes exactly len(data) bytes at offset. offset must be a
// multiple of len(data) — every caller in this tree writes a full block at
// a time, so that length doubles as the alignment modulus.
func (img *Image) WriteBlock(offset uint32, data []byte) error {
	if err := img.checkAligned(offset, uint32(len(data))); err != nil {
		return err
	}
	w, err := img.store.Writable()
	if err != nil {
		return fmt.Errorf("image: not writable: %w", err)
	}
	if _, err := w.WriteAt(data, int64(offset)); err != nil {
		return fmt.Errorf("image: write at %d: %w", offset, err)
	}
	return nil
}

// WriteUint32 writes a little-endian 32-bit value at offset, with no
// alignment requirement beyond fitting within [0, Size) — directory entry
// fields and pointer words live at arbitrary 4-byte offsets, not block
// boundaries.
func (img *Image) WriteUint32(offset uint32, v uint32) error {
	if int64(offset)+4 > img.Size {
		return ErrOutOfRange
	}
	buf := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	w, err := img.store.Writable()
	if err != nil {
		return fmt.Errorf("image: not writable: %w", err)
	}
	if _, err := w.WriteAt(buf, int64(offset)); err != nil {
		return fmt.Errorf("image: write uint32 at %d: %w", offset, err)
	}
	return nil
}

// checkAligned enforces both bounds ([0, Size)) and alignment (offset must
// be a multiple of length) for a block-sized access.
func (img *Image) checkAligned(offset uint32, length uint32) error {
	if int64(offset)+int64(length) > img.Size {
		return ErrOutOfRange
	}
	if length != 0 && offset%length != 0 {
		return ErrMisaligned
	}
	return nil
}

const defaultBlockSize = 512
