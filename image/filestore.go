package image

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// fileStore is a BackingStore backed directly by an os.File — used for a
// freshly created disk image file, a reopened one, and a real block
// device's already-open handle alike.
type fileStore struct {
	f        fs.File
	readOnly bool
}

var _ BackingStore = fileStore{}

// newFileStore wraps an already-open file as a BackingStore.
func newFileStore(f fs.File, readOnly bool) BackingStore {
	return fileStore{f: f, readOnly: readOnly}
}

// CreateFileStore creates a brand new disk image file at path, sized to
// size bytes, and returns it as a bare BackingStore — for a caller (ssm,
// inodestore) that wants direct ReadAt/WriteAt access without the rest of
// Image's block-aligned bookkeeping.
func CreateFileStore(path string, size int64) (BackingStore, error) {
	return createFileStore(path, size)
}

// createFileStore creates a brand new disk image file at path, sized to
// size bytes. path must not already exist.
func createFileStore(path string, size int64) (BackingStore, error) {
	if path == "" {
		return nil, errors.New("image: path must not be empty")
	}
	if size <= 0 {
		return nil, errors.New("image: size must be positive")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_EXCL|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("image: could not create %s: %w", path, err)
	}
	if err := os.Truncate(path, size); err != nil {
		return nil, fmt.Errorf("image: could not size %s to %d bytes: %w", path, size, err)
	}
	return fileStore{f: f, readOnly: false}, nil
}

// openFileStoreFromPath opens an existing disk image file, or a block
// device special file, at path.
func openFileStoreFromPath(path string, readOnly bool) (BackingStore, error) {
	if path == "" {
		return nil, errors.New("image: path must not be empty")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("image: %s does not exist", path)
	}
	openMode := os.O_RDONLY
	if !readOnly {
		openMode |= os.O_RDWR
	}
	f, err := os.OpenFile(path, openMode, 0o600)
	if err != nil {
		return nil, fmt.Errorf("image: could not open %s: %w", path, err)
	}
	return fileStore{f: f, readOnly: readOnly}, nil
}

func (f fileStore) Sys() (*os.File, error) {
	if osFile, ok := f.f.(*os.File); ok {
		return osFile, nil
	}
	return nil, ErrNotSuitable
}

func (f fileStore) Writable() (WritableRegion, error) {
	if rw, ok := f.f.(WritableRegion); ok {
		if f.readOnly {
			return nil, ErrIncorrectOpenMode
		}
		return rw, nil
	}
	return nil, ErrNotSuitable
}

func (f fileStore) Stat() (fs.FileInfo, error) { return f.f.Stat() }
func (f fileStore) Read(b []byte) (int, error) { return f.f.Read(b) }
func (f fileStore) Close() error               { return f.f.Close() }

func (f fileStore) ReadAt(p []byte, off int64) (int, error) {
	if ra, ok := f.f.(io.ReaderAt); ok {
		return ra.ReadAt(p, off)
	}
	return -1, ErrNotSuitable
}

func (f fileStore) Seek(offset int64, whence int) (int64, error) {
	if s, ok := f.f.(io.Seeker); ok {
		return s.Seek(offset, whence)
	}
	return -1, ErrNotSuitable
}
