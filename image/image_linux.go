//go:build linux

package image

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	blkSszGet = 0x1268
	blkBszGet = 0x80081270
	blkGetSz64 = 0x80081272
)

func getSectorSizes(f *os.File) (logical, physical int64, err error) {
	fd := int(f.Fd())
	l, err := unix.IoctlGetInt(fd, blkSszGet)
	if err != nil {
		return 0, 0, fmt.Errorf("BLKSSZGET: %w", err)
	}
	p, err := unix.IoctlGetInt(fd, blkBszGet)
	if err != nil {
		return 0, 0, fmt.Errorf("BLKBSZGET: %w", err)
	}
	return int64(l), int64(p), nil
}

func deviceSize(f *os.File) (int64, error) {
	sz, err := unix.IoctlGetUint64(int(f.Fd()), blkGetSz64)
	if err != nil {
		return 0, fmt.Errorf("BLKGETSIZE64: %w", err)
	}
	return int64(sz), nil
}
