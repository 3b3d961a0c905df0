// Package diagnostics reports host-level facts about a sectorfs disk image
// file that Go's standard os.FileInfo cannot portably expose, namely birth
// time, for operational tooling built on top of a mounted image.
package diagnostics

import (
	"fmt"
	"os"
	"time"

	times "gopkg.in/djherbis/times.v1"
)

// ImageStat reports the backing image file's size plus its birth, access,
// and change timestamps. BirthTime and ChangeTime are zero-valued (with
// their Has flag false) on platforms/filesystems that don't track them.
type ImageStat struct {
	Size uint64

	AccessTime time.Time
	ModTime    time.Time

	ChangeTime    time.Time
	HasChangeTime bool

	BirthTime    time.Time
	HasBirthTime bool
}

// Stat reports size and timestamps for the disk image file at path.
func Stat(path string) (ImageStat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ImageStat{}, fmt.Errorf("diagnostics: could not stat %s: %w", path, err)
	}
	t, err := times.Stat(path)
	if err != nil {
		return ImageStat{}, fmt.Errorf("diagnostics: could not read timestamps for %s: %w", path, err)
	}

	stat := ImageStat{
		Size:       uint64(info.Size()),
		AccessTime: t.AccessTime(),
		ModTime:    t.ModTime(),
	}
	if t.HasChangeTime() {
		stat.ChangeTime = t.ChangeTime()
		stat.HasChangeTime = true
	}
	if t.HasBirthTime() {
		stat.BirthTime = t.BirthTime()
		stat.HasBirthTime = true
	}
	return stat, nil
}

// DumpBlock renders one data or index block as a hex/ASCII dump, the way an
// operator inspecting a raw block pulled off a sectorfs image by hand would
// want it printed: 16 bytes per row, with both the byte offset and the
// ASCII rendering alongside.
func DumpBlock(data []byte) string {
	return hexDump(data, nil)
}

// DiffBlocks compares two blocks of equal conceptual size (e.g. the same
// index block read before and after a cascading free) and renders only the
// rows that differ, highlighting the differing bytes.
func DiffBlocks(a, b []byte) (changed bool, dump string) {
	offsets := diffOffsets(a, b)
	if len(offsets) == 0 {
		return false, ""
	}
	out := hexDump(a, offsets)
	out += "\n"
	out += hexDump(b, offsets)
	return true, out
}
