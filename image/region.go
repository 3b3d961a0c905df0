package image

import (
	"io"
	"io/fs"
	"os"
)

// Region scopes a BackingStore to a byte range within the image: the inode
// table carved out between the boot/super blocks and the data region, for
// example. Offsets passed to ReadAt/WriteAt/Seek are relative to the
// region's own start, not the underlying store's.
type Region struct {
	parent BackingStore
	offset int64
	size   int64
}

// NewRegion scopes parent to [offset, offset+size).
func NewRegion(parent BackingStore, offset, size int64) BackingStore {
	return Region{parent: parent, offset: offset, size: size}
}

func (r Region) Stat() (fs.FileInfo, error) { return r.parent.Stat() }
func (r Region) Read(b []byte) (int, error) { return r.parent.Read(b) }
func (r Region) Close() error               { return r.parent.Close() }

func (r Region) ReadAt(p []byte, off int64) (int, error) {
	return r.parent.ReadAt(p, r.offset+off)
}

func (r Region) Seek(offset int64, whence int) (int64, error) {
	pos, err := seekRelative(r.parent, r.offset, r.size, offset, whence)
	if err != nil {
		return -1, err
	}
	return pos - r.offset, nil
}

func (r Region) Sys() (*os.File, error) { return r.parent.Sys() }

func (r Region) Writable() (WritableRegion, error) {
	pw, err := r.parent.Writable()
	if err != nil {
		return nil, err
	}
	return writableRegion{parent: pw, offset: r.offset, size: r.size}, nil
}

// writableRegion is the write-capable counterpart Region.Writable returns.
type writableRegion struct {
	parent WritableRegion
	offset int64
	size   int64
}

func (w writableRegion) Stat() (fs.FileInfo, error) { return w.parent.Stat() }
func (w writableRegion) Read(b []byte) (int, error) { return w.parent.Read(b) }
func (w writableRegion) Close() error               { return w.parent.Close() }

func (w writableRegion) ReadAt(p []byte, off int64) (int, error) {
	return w.parent.ReadAt(p, w.offset+off)
}

func (w writableRegion) Seek(offset int64, whence int) (int64, error) {
	pos, err := seekRelative(w.parent, w.offset, w.size, offset, whence)
	if err != nil {
		return -1, err
	}
	return pos - w.offset, nil
}

func (w writableRegion) WriteAt(p []byte, off int64) (int, error) {
	return w.parent.WriteAt(p, w.offset+off)
}

// seeker is the subset of BackingStore/WritableRegion seekRelative needs.
type seeker interface {
	Seek(offset int64, whence int) (int64, error)
}

func seekRelative(parent seeker, regionOffset, regionSize, offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		return parent.Seek(offset+regionOffset, io.SeekStart)
	case io.SeekCurrent:
		return parent.Seek(offset, io.SeekCurrent)
	case io.SeekEnd:
		return parent.Seek(regionOffset+regionSize+offset, io.SeekStart)
	default:
		return -1, ErrNotSuitable
	}
}
