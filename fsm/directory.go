package fsm

import (
	"encoding/binary"

	"github.com/sectorfs/sectorfs/inodestore"
)

// entrySize is the on-disk width of one directory entry: name_lo, name_hi,
// inode_num, in_use_flag, each a 32-bit word.
const entrySize = 16

// entriesPerBlock is the number of directory entries packed into one data
// block.
func (fsys *FileSystem) entriesPerBlock() uint32 {
	return fsys.constants.BlockSize / entrySize
}

// encodeName packs up to 8 bytes of name into two little-endian words, the
// on-disk representation spec.md calls (name_lo, name_hi).
func encodeName(name string) (lo, hi uint32) {
	var buf [8]byte
	copy(buf[:], name)
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8])
}

// decodeName reverses encodeName, trimming trailing NUL bytes.
func decodeName(lo, hi uint32) string {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], lo)
	binary.LittleEndian.PutUint32(buf[4:8], hi)
	n := 8
	for n > 0 && buf[n-1] == 0 {
		n--
	}
	return string(buf[:n])
}

func readEntrySlot(block []byte, slot int) (lo, hi, inodeNum, inUse uint32) {
	off := slot * entrySize
	le := binary.LittleEndian
	return le.Uint32(block[off : off+4]), le.Uint32(block[off+4 : off+8]),
		le.Uint32(block[off+8 : off+12]), le.Uint32(block[off+12 : off+16])
}

func writeEntrySlot(block []byte, slot int, lo, hi, inodeNum, inUse uint32) {
	off := slot * entrySize
	le := binary.LittleEndian
	le.PutUint32(block[off:off+4], lo)
	le.PutUint32(block[off+4:off+8], hi)
	le.PutUint32(block[off+8:off+12], inodeNum)
	le.PutUint32(block[off+12:off+16], inUse)
}

func clearEntrySlot(block []byte, slot int) {
	off := slot * entrySize
	for i := 0; i < entrySize; i++ {
		block[off+i] = 0
	}
}

func blockHasInUseEntry(block []byte, entries int) bool {
	for i := 0; i < entries; i++ {
		_, _, _, inUse := readEntrySlot(block, i)
		if inUse == 1 {
			return true
		}
	}
	return false
}

// insertEntry inserts (name -> childInodeNum) into the directory at
// dirInodeNum, following the seven-attempt ladder: direct scan, indirect
// scan (no alloc), new direct block, indirect scan again (the redundant
// second no-allocation pass — kept exactly because a careful reader of the
// source finds it there twice, not because it does anything the first pass
// didn't), indirect scan with allocation, then creating the single/double/
// triple indirect root in turn if still missing.
func (fsys *FileSystem) insertEntry(dirInodeNum uint32, name string, childInodeNum uint32) error {
	rec, err := fsys.inodes.ReadInode(dirInodeNum)
	if err != nil {
		return err
	}
	lo, hi := encodeName(name)
	entries := int(fsys.entriesPerBlock())

	// 1. existing direct blocks, free slot, no allocation
	ok, err := fsys.insertIntoDirectBlocks(rec, lo, hi, childInodeNum, entries)
	if err != nil {
		return err
	}
	if ok {
		return fsys.inodes.WriteInode(dirInodeNum, rec)
	}

	// 2. existing indirect trees, free slot, no allocation
	ok, err = fsys.insertIntoExistingTrees(rec, lo, hi, childInodeNum, entries, false)
	if err != nil {
		return err
	}
	if ok {
		return fsys.inodes.WriteInode(dirInodeNum, rec)
	}

	// 3. allocate a new direct block
	ok, err = fsys.insertIntoNewDirectBlock(rec, lo, hi, childInodeNum, entries)
	if err != nil {
		return err
	}
	if ok {
		return fsys.inodes.WriteInode(dirInodeNum, rec)
	}

	// 4. re-scan indirect trees without allocation — kept for behavior
	// preservation; functionally identical to step 2.
	ok, err = fsys.insertIntoExistingTrees(rec, lo, hi, childInodeNum, entries, false)
	if err != nil {
		return err
	}
	if ok {
		return fsys.inodes.WriteInode(dirInodeNum, rec)
	}

	// 5. scan indirect trees with allocation
	ok, err = fsys.insertIntoExistingTrees(rec, lo, hi, childInodeNum, entries, true)
	if err != nil {
		return err
	}
	if ok {
		return fsys.inodes.WriteInode(dirInodeNum, rec)
	}

	// 6/7. create the single, then double, then triple indirect root.
	for depth, slot := range []*uint32{&rec.SIndirect, &rec.DIndirect, &rec.TIndirect} {
		d := depth + 1
		if !blockPtrFromRaw(*slot).isNil() {
			continue
		}
		base, ok := fsys.ssm.AllocateSectors(1)
		if !ok {
			continue
		}
		blank := make([]byte, fsys.constants.BlockSize)
		for i := range blank {
			blank[i] = 0xFF
		}
		if err := fsys.img.WriteBlock(base, blank); err != nil {
			return err
		}
		*slot = base
		ok2, err := fsys.insertIntoTree(rec, d, blockPtrFromRaw(base), lo, hi, childInodeNum, entries, true)
		if err != nil {
			return err
		}
		if ok2 {
			return fsys.inodes.WriteInode(dirInodeNum, rec)
		}
	}

	return ErrOutOfSpace
}

func (fsys *FileSystem) insertIntoDirectBlocks(rec *inodestore.Record, lo, hi, childInodeNum uint32, entries int) (bool, error) {
	for _, raw := range rec.DirectPtr {
		ptr := blockPtrFromRaw(raw)
		if ptr.isNil() {
			continue
		}
		block, err := fsys.img.ReadBlock(ptr.offset(), fsys.constants.BlockSize)
		if err != nil {
			return false, err
		}
		for slot := 0; slot < entries; slot++ {
			_, _, _, inUse := readEntrySlot(block, slot)
			if inUse != 0 {
				continue
			}
			writeEntrySlot(block, slot, lo, hi, childInodeNum, 1)
			if err := fsys.img.WriteBlock(ptr.offset(), block); err != nil {
				return false, err
			}
			rec.LinkCount++
			return true, nil
		}
	}
	return false, nil
}

func (fsys *FileSystem) insertIntoNewDirectBlock(rec *inodestore.Record, lo, hi, childInodeNum uint32, entries int) (bool, error) {
	for i, raw := range rec.DirectPtr {
		if !blockPtrFromRaw(raw).isNil() {
			continue
		}
		off, ok := fsys.ssm.AllocateSectors(1)
		if !ok {
			return false, nil
		}
		rec.DirectPtr[i] = off
		block := make([]byte, fsys.constants.BlockSize)
		writeEntrySlot(block, 0, lo, hi, childInodeNum, 1)
		if err := fsys.img.WriteBlock(off, block); err != nil {
			return false, err
		}
		rec.LinkCount++
		rec.FileSize += fsys.constants.BlockSize
		rec.DataBlocks = rec.FileSize / fsys.constants.BlockSize
		return true, nil
	}
	return false, nil
}

func (fsys *FileSystem) insertIntoExistingTrees(rec *inodestore.Record, lo, hi, childInodeNum uint32, entries int, allocate bool) (bool, error) {
	for depth, raw := range []uint32{rec.SIndirect, rec.DIndirect, rec.TIndirect} {
		ptr := blockPtrFromRaw(raw)
		if ptr.isNil() {
			continue
		}
		ok, err := fsys.insertIntoTree(rec, depth+1, ptr, lo, hi, childInodeNum, entries, allocate)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// insertIntoTree walks one indirect tree at the given depth looking for a
// free directory-entry slot. When allocate is false it only considers
// existing leaf data blocks. When allocate is true and no existing slot has
// room, it creates a new child (a leaf data block at depth 1, a new index
// block at deeper levels) in the first NIL pointer slot, exactly as
// add_file_to_single/double/triple_indirect do.
func (fsys *FileSystem) insertIntoTree(rec *inodestore.Record, depth int, offset blockPtr, lo, hi, childInodeNum uint32, entries int, allocate bool) (bool, error) {
	block, err := fsys.img.ReadBlock(offset.offset(), fsys.constants.BlockSize)
	if err != nil {
		return false, err
	}
	ptrsPerBlock := fsys.constants.PtrsPerBlock()

	if depth == 1 {
		for i := uint32(0); i < ptrsPerBlock; i++ {
			child := blockPtrFromRaw(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
			if child.isNil() {
				continue
			}
			leaf, err := fsys.img.ReadBlock(child.offset(), fsys.constants.BlockSize)
			if err != nil {
				return false, err
			}
			for slot := 0; slot < entries; slot++ {
				_, _, _, inUse := readEntrySlot(leaf, slot)
				if inUse != 0 {
					continue
				}
				writeEntrySlot(leaf, slot, lo, hi, childInodeNum, 1)
				if err := fsys.img.WriteBlock(child.offset(), leaf); err != nil {
					return false, err
				}
				rec.LinkCount++
				return true, nil
			}
		}
		if !allocate {
			return false, nil
		}
		for i := uint32(0); i < ptrsPerBlock; i++ {
			child := blockPtrFromRaw(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
			if !child.isNil() {
				continue
			}
			leafOff, ok := fsys.ssm.AllocateSectors(1)
			if !ok {
				return false, nil
			}
			binary.LittleEndian.PutUint32(block[i*4:i*4+4], leafOff)
			if err := fsys.img.WriteBlock(offset.offset(), block); err != nil {
				return false, err
			}
			leaf := make([]byte, fsys.constants.BlockSize)
			writeEntrySlot(leaf, 0, lo, hi, childInodeNum, 1)
			if err := fsys.img.WriteBlock(leafOff, leaf); err != nil {
				return false, err
			}
			rec.LinkCount++
			rec.FileSize += fsys.constants.BlockSize
			rec.DataBlocks = rec.FileSize / fsys.constants.BlockSize
			return true, nil
		}
		return false, nil
	}

	for i := uint32(0); i < ptrsPerBlock; i++ {
		child := blockPtrFromRaw(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
		if child.isNil() {
			continue
		}
		ok, err := fsys.insertIntoTree(rec, depth-1, child, lo, hi, childInodeNum, entries, allocate)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	if !allocate {
		return false, nil
	}
	for i := uint32(0); i < ptrsPerBlock; i++ {
		child := blockPtrFromRaw(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
		if !child.isNil() {
			continue
		}
		newOff, ok := fsys.ssm.AllocateSectors(1)
		if !ok {
			return false, nil
		}
		binary.LittleEndian.PutUint32(block[i*4:i*4+4], newOff)
		if err := fsys.img.WriteBlock(offset.offset(), block); err != nil {
			return false, err
		}
		blank := make([]byte, fsys.constants.BlockSize)
		for j := range blank {
			blank[j] = 0xFF
		}
		if err := fsys.img.WriteBlock(newOff, blank); err != nil {
			return false, err
		}
		return fsys.insertIntoTree(rec, depth-1, blockPtrFromRaw(newOff), lo, hi, childInodeNum, entries, true)
	}
	return false, nil
}

// removeEntry removes the entry for childInodeNum from the directory at
// dirInodeNum: direct blocks first, then a depth-first descent into
// sIndirect, dIndirect, tIndirect. Any data or index block left with no
// in-use entries (or, for an index block, no non-NIL slot) is freed and
// its parent slot cleared, cascading up to the inode's own pointer field
// when the top-level index becomes empty (invariant 3).
func (fsys *FileSystem) removeEntry(dirInodeNum, childInodeNum uint32) error {
	rec, err := fsys.inodes.ReadInode(dirInodeNum)
	if err != nil {
		return err
	}
	entries := int(fsys.entriesPerBlock())

	removed, err := fsys.removeFromDirectBlocks(rec, childInodeNum, entries)
	if err != nil {
		return err
	}
	if !removed {
		for depth, slot := range []*uint32{&rec.SIndirect, &rec.DIndirect, &rec.TIndirect} {
			ptr := blockPtrFromRaw(*slot)
			if ptr.isNil() {
				continue
			}
			var freed bool
			removed, freed, err = fsys.removeFromTree(rec, depth+1, ptr, childInodeNum, entries)
			if err != nil {
				return err
			}
			if removed {
				if freed {
					*slot = nilPtr.raw()
				}
				break
			}
		}
	}
	if !removed {
		return ErrNotFound
	}

	if rec.LinkCount == 0 {
		rec.FileSize = 0
		fsys.inodes.InitPointers(rec)
	}
	return fsys.inodes.WriteInode(dirInodeNum, rec)
}

func (fsys *FileSystem) removeFromDirectBlocks(rec *inodestore.Record, childInodeNum uint32, entries int) (bool, error) {
	for i, raw := range rec.DirectPtr {
		ptr := blockPtrFromRaw(raw)
		if ptr.isNil() {
			continue
		}
		block, err := fsys.img.ReadBlock(ptr.offset(), fsys.constants.BlockSize)
		if err != nil {
			return false, err
		}
		found := false
		for slot := 0; slot < entries; slot++ {
			_, _, inodeNum, inUse := readEntrySlot(block, slot)
			if inUse == 1 && inodeNum == childInodeNum {
				clearEntrySlot(block, slot)
				rec.LinkCount--
				found = true
				break
			}
		}
		if !found {
			continue
		}
		if err := fsys.img.WriteBlock(ptr.offset(), block); err != nil {
			return false, err
		}
		if !blockHasInUseEntry(block, entries) {
			fsys.ssm.DeallocateSectors(fsys.ssm.SectorIndex(ptr.offset()))
			rec.DirectPtr[i] = nilPtr.raw()
			rec.DataBlocks--
		}
		return true, nil
	}
	return false, nil
}

// removeFromTree descends depth-first, returning (removed, freedSelf, err):
// removed reports whether the entry was found and cleared somewhere in
// this subtree; freedSelf reports whether the index block at offset itself
// had no remaining non-NIL slot afterward and was deallocated — the
// caller's responsibility is to NIL out the slot that pointed to it.
func (fsys *FileSystem) removeFromTree(rec *inodestore.Record, depth int, offset blockPtr, childInodeNum uint32, entries int) (bool, bool, error) {
	block, err := fsys.img.ReadBlock(offset.offset(), fsys.constants.BlockSize)
	if err != nil {
		return false, false, err
	}
	ptrsPerBlock := fsys.constants.PtrsPerBlock()
	removed := false

	for i := uint32(0); i < ptrsPerBlock; i++ {
		child := blockPtrFromRaw(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
		if child.isNil() {
			continue
		}
		if depth == 1 {
			leaf, err := fsys.img.ReadBlock(child.offset(), fsys.constants.BlockSize)
			if err != nil {
				return false, false, err
			}
			found := false
			for slot := 0; slot < entries; slot++ {
				_, _, inodeNum, inUse := readEntrySlot(leaf, slot)
				if inUse == 1 && inodeNum == childInodeNum {
					clearEntrySlot(leaf, slot)
					rec.LinkCount--
					found = true
					break
				}
			}
			if !found {
				continue
			}
			if err := fsys.img.WriteBlock(child.offset(), leaf); err != nil {
				return false, false, err
			}
			if !blockHasInUseEntry(leaf, entries) {
				fsys.ssm.DeallocateSectors(fsys.ssm.SectorIndex(child.offset()))
				binary.LittleEndian.PutUint32(block[i*4:i*4+4], nilPtr.raw())
				rec.DataBlocks--
			}
			removed = true
			break
		}

		ok, childFreed, err := fsys.removeFromTree(rec, depth-1, child, childInodeNum, entries)
		if err != nil {
			return false, false, err
		}
		if !ok {
			continue
		}
		if childFreed {
			binary.LittleEndian.PutUint32(block[i*4:i*4+4], nilPtr.raw())
		}
		removed = true
		break
	}

	if !removed {
		return false, false, nil
	}
	if err := fsys.img.WriteBlock(offset.offset(), block); err != nil {
		return false, false, err
	}

	empty := true
	for i := uint32(0); i < ptrsPerBlock; i++ {
		if !blockPtrFromRaw(binary.LittleEndian.Uint32(block[i*4 : i*4+4])).isNil() {
			empty = false
			break
		}
	}
	if empty {
		fsys.ssm.DeallocateSectors(fsys.ssm.SectorIndex(offset.offset()))
		return true, true, nil
	}
	return true, false, nil
}

// renameEntry locates the entry for childInodeNum (direct blocks, then
// s/d/t indirect trees) and overwrites its name words in place, leaving
// in_use_flag and inode_num unchanged.
func (fsys *FileSystem) renameEntry(dirInodeNum, childInodeNum uint32, newName string) error {
	rec, err := fsys.inodes.ReadInode(dirInodeNum)
	if err != nil {
		return err
	}
	lo, hi := encodeName(newName)
	entries := int(fsys.entriesPerBlock())

	for _, raw := range rec.DirectPtr {
		ptr := blockPtrFromRaw(raw)
		if ptr.isNil() {
			continue
		}
		block, err := fsys.img.ReadBlock(ptr.offset(), fsys.constants.BlockSize)
		if err != nil {
			return err
		}
		for slot := 0; slot < entries; slot++ {
			_, _, inodeNum, inUse := readEntrySlot(block, slot)
			if inUse == 1 && inodeNum == childInodeNum {
				writeEntrySlot(block, slot, lo, hi, inodeNum, inUse)
				return fsys.img.WriteBlock(ptr.offset(), block)
			}
		}
	}

	for depth, raw := range []uint32{rec.SIndirect, rec.DIndirect, rec.TIndirect} {
		ptr := blockPtrFromRaw(raw)
		if ptr.isNil() {
			continue
		}
		ok, err := fsys.renameInTree(depth+1, ptr, childInodeNum, lo, hi, entries)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrNotFound
}

func (fsys *FileSystem) renameInTree(depth int, offset blockPtr, childInodeNum uint32, lo, hi uint32, entries int) (bool, error) {
	block, err := fsys.img.ReadBlock(offset.offset(), fsys.constants.BlockSize)
	if err != nil {
		return false, err
	}
	ptrsPerBlock := fsys.constants.PtrsPerBlock()
	for i := uint32(0); i < ptrsPerBlock; i++ {
		child := blockPtrFromRaw(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
		if child.isNil() {
			continue
		}
		if depth == 1 {
			leaf, err := fsys.img.ReadBlock(child.offset(), fsys.constants.BlockSize)
			if err != nil {
				return false, err
			}
			for slot := 0; slot < entries; slot++ {
				_, _, inodeNum, inUse := readEntrySlot(leaf, slot)
				if inUse == 1 && inodeNum == childInodeNum {
					writeEntrySlot(leaf, slot, lo, hi, inodeNum, inUse)
					return true, fsys.img.WriteBlock(child.offset(), leaf)
				}
			}
			continue
		}
		ok, err := fsys.renameInTree(depth-1, child, childInodeNum, lo, hi, entries)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
