package fsm

import "encoding/binary"

// allocateIndirectTree allocates one index block at the given depth (1, 2,
// or 3) and fills it with NIL, then recursively allocates children beneath
// it. depth 1 allocates min(n, PTRS_PER_BLOCK) leaf data sectors directly;
// depth 2/3 allocate a child subtree per slot, passing the same n to every
// child and stopping once the running budget (n minus the capacity of one
// child subtree per child created) goes negative — so at least one child is
// always created once this function is entered, and the tree can hold more
// than n leaves when n exceeds one child's capacity, exactly mirroring aloc_single/double/triple_indirect's single
// shared recursive shape (spec.md §9's REDESIGN FLAG collapses the three
// symmetric C routines into this one depth-parameterized implementation).
//
// If the SSM is exhausted partway through, already-written slots are kept
// and the rest stay NIL: no rollback, matching spec.md §4.3.
func (fsys *FileSystem) allocateIndirectTree(depth int, n int64) (blockPtr, error) {
	base, ok := fsys.ssm.AllocateSectors(1)
	if !ok {
		return nilPtr, nil
	}
	baseOffset := base

	blank := make([]byte, fsys.constants.BlockSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	if err := fsys.img.WriteBlock(baseOffset, blank); err != nil {
		return nilPtr, err
	}

	ptrsPerBlock := fsys.constants.PtrsPerBlock()

	if depth == 1 {
		limit := int64(ptrsPerBlock)
		if n < limit {
			limit = n
		}
		for i := int64(0); i < limit; i++ {
			addr, ok := fsys.ssm.AllocateSectors(1)
			if !ok {
				break
			}
			if err := fsys.img.WriteUint32(baseOffset+uint32(i)*4, addr); err != nil {
				return nilPtr, err
			}
		}
		return blockPtrFromRaw(baseOffset), nil
	}

	childCap := int64(fsys.constants.capacityAtDepth(depth - 1))
	budget := n
	for i := uint32(0); i < ptrsPerBlock; i++ {
		child, err := fsys.allocateIndirectTree(depth-1, n)
		if err != nil {
			return nilPtr, err
		}
		if err := fsys.img.WriteUint32(baseOffset+i*4, child.raw()); err != nil {
			return nilPtr, err
		}
		budget -= childCap
		if budget < 0 {
			break
		}
	}
	return blockPtrFromRaw(baseOffset), nil
}

// readIndirectTree walks an already-allocated tree depth-first, appending
// the content of every reachable leaf data block to out, in pointer order.
func (fsys *FileSystem) readIndirectTree(depth int, offset blockPtr, out *[][]byte) error {
	if offset.isNil() {
		return nil
	}
	block, err := fsys.img.ReadBlock(offset.offset(), fsys.constants.BlockSize)
	if err != nil {
		return err
	}
	ptrsPerBlock := fsys.constants.PtrsPerBlock()
	for i := uint32(0); i < ptrsPerBlock; i++ {
		child := blockPtrFromRaw(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
		if child.isNil() {
			continue
		}
		if depth == 1 {
			data, err := fsys.img.ReadBlock(child.offset(), fsys.constants.BlockSize)
			if err != nil {
				return err
			}
			*out = append(*out, data)
			continue
		}
		if err := fsys.readIndirectTree(depth-1, child, out); err != nil {
			return err
		}
	}
	return nil
}

// writeIndirectTree writes blocks from in into an already-allocated tree,
// in pointer order, stopping when in is exhausted or a NIL slot is hit —
// writing fewer blocks than were allocated is a no-op on the unused tail.
func (fsys *FileSystem) writeIndirectTree(depth int, offset blockPtr, in [][]byte, cursor *int) error {
	if offset.isNil() || *cursor >= len(in) {
		return nil
	}
	block, err := fsys.img.ReadBlock(offset.offset(), fsys.constants.BlockSize)
	if err != nil {
		return err
	}
	ptrsPerBlock := fsys.constants.PtrsPerBlock()
	for i := uint32(0); i < ptrsPerBlock; i++ {
		if *cursor >= len(in) {
			return nil
		}
		child := blockPtrFromRaw(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
		if child.isNil() {
			return nil
		}
		if depth == 1 {
			if err := fsys.img.WriteBlock(child.offset(), in[*cursor]); err != nil {
				return err
			}
			*cursor++
			continue
		}
		if err := fsys.writeIndirectTree(depth-1, child, in, cursor); err != nil {
			return err
		}
	}
	return nil
}

// freeIndirectTree frees an index subtree depth-first: children first
// (recursing for depth > 1, deallocating the leaf data sector directly at
// depth == 1), then the index block itself. Invariant 3 (no index block
// left entirely NIL) holds because every reachable non-NIL slot is visited
// and freed before its parent is deallocated.
func (fsys *FileSystem) freeIndirectTree(depth int, offset blockPtr) error {
	if offset.isNil() {
		return nil
	}
	block, err := fsys.img.ReadBlock(offset.offset(), fsys.constants.BlockSize)
	if err != nil {
		return err
	}
	ptrsPerBlock := fsys.constants.PtrsPerBlock()
	for i := uint32(0); i < ptrsPerBlock; i++ {
		child := blockPtrFromRaw(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
		if child.isNil() {
			continue
		}
		if depth == 1 {
			fsys.ssm.DeallocateSectors(fsys.ssm.SectorIndex(child.offset()))
			continue
		}
		if err := fsys.freeIndirectTree(depth-1, child); err != nil {
			return err
		}
	}
	fsys.ssm.DeallocateSectors(fsys.ssm.SectorIndex(offset.offset()))
	return nil
}
