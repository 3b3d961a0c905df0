package fsm

// Constants holds the configurable parameters fixed at Make time and held
// immutable for the life of a FileSystem, mirroring the process-wide
// constants the original fs_make establishes once.
type Constants struct {
	BlockSize   uint32
	DiskSize    uint32
	InodeSize   uint32
	InodeBlocks uint32
	InodeCount  uint32
}

const inodeDirectPtrs = 10

// PtrsPerBlock is the number of 4-byte pointer slots in one index block.
func (c Constants) PtrsPerBlock() uint32 {
	return c.BlockSize / 4
}

// SIndirectBlocks is the data-block capacity of a fully populated
// single-indirect tree.
func (c Constants) SIndirectBlocks() uint32 {
	return c.PtrsPerBlock()
}

// DIndirectBlocks is the data-block capacity of a fully populated
// double-indirect tree.
func (c Constants) DIndirectBlocks() uint32 {
	p := c.PtrsPerBlock()
	return p * p
}

// TIndirectBlocks is the data-block capacity of a fully populated
// triple-indirect tree.
func (c Constants) TIndirectBlocks() uint32 {
	p := c.PtrsPerBlock()
	return p * p * p
}

// SIndirectSize is the byte size reachable through direct pointers plus a
// fully populated single-indirect tree.
func (c Constants) SIndirectSize() uint64 {
	return uint64(inodeDirectPtrs+c.SIndirectBlocks()) * uint64(c.BlockSize)
}

// DIndirectSize is SIndirectSize plus a fully populated double-indirect tree.
func (c Constants) DIndirectSize() uint64 {
	return c.SIndirectSize() + uint64(c.DIndirectBlocks())*uint64(c.BlockSize)
}

// capacityAtDepth returns the data-block capacity of a fully populated
// indirect tree of the given depth (1, 2, or 3).
func (c Constants) capacityAtDepth(depth int) uint32 {
	switch depth {
	case 1:
		return c.SIndirectBlocks()
	case 2:
		return c.DIndirectBlocks()
	case 3:
		return c.TIndirectBlocks()
	default:
		return 0
	}
}
