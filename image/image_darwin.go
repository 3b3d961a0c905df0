//go:build darwin

package image

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// these constants should be part of golang.org/x/sys/unix, but aren't, yet
const (
	dkiocGetBlockSize         = 0x40046418
	dkiocGetPhysicalBlockSize = 0x4004644D
	dkiocGetBlockCount        = 0x40086419
)

func getSectorSizes(f *os.File) (logical, physical int64, err error) {
	fd := int(f.Fd())
	l, err := unix.IoctlGetInt(fd, dkiocGetBlockSize)
	if err != nil {
		return 0, 0, fmt.Errorf("DKIOCGETBLOCKSIZE: %w", err)
	}
	p, err := unix.IoctlGetInt(fd, dkiocGetPhysicalBlockSize)
	if err != nil {
		return 0, 0, fmt.Errorf("DKIOCGETPHYSICALBLOCKSIZE: %w", err)
	}
	return int64(l), int64(p), nil
}

func deviceSize(f *os.File) (int64, error) {
	blocks, err := unix.IoctlGetInt(int(f.Fd()), dkiocGetBlockCount)
	if err != nil {
		return 0, fmt.Errorf("DKIOCGETBLOCKCOUNT: %w", err)
	}
	logical, _, err := getSectorSizes(f)
	if err != nil {
		return 0, err
	}
	return int64(blocks) * logical, nil
}
