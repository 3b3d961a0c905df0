// Package ssm implements the Sector Space Manager: a bitmap allocator over
// the data region of a sectorfs disk image. It is an external collaborator
// to the File Sector Manager in spec terms — fsm consumes it only through
// AllocateSectors/DeallocateSectors/SectorIndex — but ships here so the module runs
// end to end.
package ssm

import (
	"fmt"
	"os"
)

// Manager allocates and frees fixed-size sectors from a contiguous data
// region, persisting its free/used bitmap to a sidecar map file so state
// survives across Open/Close of the disk image.
type Manager struct {
	bm        *sectorBitmap
	mapPath   string
	blockSize uint32
	dataStart uint32
	sectorCap uint32
}

// New creates a Manager over sectorCap sectors of blockSize bytes each,
// starting at byte offset dataStart within the disk image. The bitmap is
// freshly zeroed (all sectors free).
func New(mapPath string, blockSize, dataStart, sectorCap uint32) *Manager {
	return &Manager{
		bm:        newSectorBitmap(int(sectorCap)),
		mapPath:   mapPath,
		blockSize: blockSize,
		dataStart: dataStart,
		sectorCap: sectorCap,
	}
}

// Load reads a Manager's bitmap back from its sidecar map file, for reopening
// an existing image. If the file does not exist, the bitmap starts empty
// (all free), matching a freshly fs_make'd image.
func Load(mapPath string, blockSize, dataStart, sectorCap uint32) (*Manager, error) {
	m := New(mapPath, blockSize, dataStart, sectorCap)
	b, err := os.ReadFile(mapPath)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("ssm: reading map file %s: %w", mapPath, err)
	}
	m.bm = sectorBitmapFromBytes(b)
	return m, nil
}

func (m *Manager) save() error {
	if err := os.WriteFile(m.mapPath, m.bm.toBytes(), 0o644); err != nil {
		return fmt.Errorf("ssm: writing map file %s: %w", m.mapPath, err)
	}
	return nil
}

// AllocateSectors allocates count contiguous sectors and returns the byte
// offset of the first one. ok is false if no contiguous run of that size is
// free (SSM exhaustion, surfaced by fsm as NIL).
func (m *Manager) AllocateSectors(count uint32) (offset uint32, ok bool) {
	if count == 0 {
		return 0, false
	}
	pos := m.bm.firstFreeRun(int(count), 0)
	if pos < 0 || pos+int(count) > int(m.sectorCap) {
		return 0, false
	}
	for i := 0; i < int(count); i++ {
		_ = m.bm.markAllocated(pos + i)
	}
	if err := m.save(); err != nil {
		// best-effort persistence; the in-memory bitmap is still authoritative
		// for the remainder of this process's lifetime
		_ = err
	}
	return m.dataStart + uint32(pos)*m.blockSize, true
}

// DeallocateSectors frees exactly one sector identified by its sector index
// (byte offset / blockSize within the data region).
func (m *Manager) DeallocateSectors(sectorIndex uint32) {
	_ = m.bm.markFree(int(sectorIndex))
	_ = m.save()
}

// SectorIndex converts a data-region byte offset to the sector index
// DeallocateSectors expects.
func (m *Manager) SectorIndex(offset uint32) uint32 {
	return (offset - m.dataStart) / m.blockSize
}
