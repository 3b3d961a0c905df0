package fsm

import "github.com/sectorfs/sectorfs/inodestore"

// WriteFile maps the linear payload data onto inodeNum's direct pointers
// and, as needed, its single/double/triple indirect trees, allocating any
// NIL slot on demand. It preserves the documented floor-division quirk in
// computing dataBlocks: fileSize/BLOCK_SIZE truncates, so a payload whose
// length is not a multiple of BLOCK_SIZE under-reports its block count by
// one. This is not fixed — spec.md calls it out as a known behavior of the
// original, not something later callers may silently patch.
func (fsys *FileSystem) WriteFile(inodeNum uint32, data []byte) error {
	rec, err := fsys.inodes.ReadInode(inodeNum)
	if err != nil {
		return err
	}

	size := uint32(len(data))
	rec.FileSize = size
	rec.DataBlocks = size / fsys.constants.BlockSize

	blockSize := fsys.constants.BlockSize
	numBlocks := ceilDiv(size, blockSize)

	directCount := numBlocks
	if directCount > inodeDirectPtrs {
		directCount = inodeDirectPtrs
	}
	for i := uint32(0); i < directCount; i++ {
		chunk := chunkAt(data, i, blockSize)
		ptr := blockPtrFromRaw(rec.DirectPtr[i])
		if ptr.isNil() {
			off, ok := fsys.ssm.AllocateSectors(1)
			if !ok {
				if err := fsys.inodes.WriteInode(inodeNum, rec); err != nil {
					return err
				}
				return nil
			}
			ptr = blockPtrFromRaw(off)
			rec.DirectPtr[i] = ptr.raw()
		}
		if err := fsys.img.WriteBlock(ptr.offset(), chunk); err != nil {
			return err
		}
	}

	remaining := int64(size) - int64(inodeDirectPtrs)*int64(blockSize)
	sIndirectSize := int64(fsys.constants.SIndirectSize()) - int64(inodeDirectPtrs)*int64(blockSize)
	dIndirectExtra := int64(fsys.constants.DIndirectSize()) - int64(fsys.constants.SIndirectSize())

	if remaining <= 0 {
		return fsys.inodes.WriteInode(inodeNum, rec)
	}

	rest := data[int64(inodeDirectPtrs)*int64(blockSize):]

	switch {
	case remaining <= sIndirectSize:
		if err := fsys.fillIndirectLevel(rec, 1, &rec.SIndirect, rest); err != nil {
			return err
		}
	case remaining <= sIndirectSize+dIndirectExtra:
		sPart, dPart := splitAt(rest, int(sIndirectSize))
		if err := fsys.fillIndirectLevel(rec, 1, &rec.SIndirect, sPart); err != nil {
			return err
		}
		if err := fsys.fillIndirectLevel(rec, 2, &rec.DIndirect, dPart); err != nil {
			return err
		}
	default:
		sPart, rest2 := splitAt(rest, int(sIndirectSize))
		dPart, tPart := splitAt(rest2, int(dIndirectExtra))
		if err := fsys.fillIndirectLevel(rec, 1, &rec.SIndirect, sPart); err != nil {
			return err
		}
		if err := fsys.fillIndirectLevel(rec, 2, &rec.DIndirect, dPart); err != nil {
			return err
		}
		if err := fsys.fillIndirectLevel(rec, 3, &rec.TIndirect, tPart); err != nil {
			return err
		}
	}

	return fsys.inodes.WriteInode(inodeNum, rec)
}

// fillIndirectLevel allocates (if NIL) and writes one indirect level with
// the given chunked payload.
func (fsys *FileSystem) fillIndirectLevel(rec *inodestore.Record, depth int, slot *uint32, chunk []byte) error {
	_ = rec
	blocks := chunkBlocks(chunk, fsys.constants.BlockSize)
	ptr := blockPtrFromRaw(*slot)
	if ptr.isNil() {
		allocated, err := fsys.allocateIndirectTree(depth, int64(len(blocks)))
		if err != nil {
			return err
		}
		ptr = allocated
		*slot = ptr.raw()
	}
	if ptr.isNil() {
		return nil
	}
	cursor := 0
	return fsys.writeIndirectTree(depth, ptr, blocks, &cursor)
}

// ReadFile reads back inodeNum's full payload: direct pointers in order,
// then single/double/triple indirect trees in full (each only if non-NIL).
func (fsys *FileSystem) ReadFile(inodeNum uint32) ([]byte, error) {
	rec, err := fsys.inodes.ReadInode(inodeNum)
	if err != nil {
		return nil, err
	}
	if rec.FileType <= 0 {
		return nil, ErrNotFound
	}

	var out []byte
	for _, raw := range rec.DirectPtr {
		ptr := blockPtrFromRaw(raw)
		if ptr.isNil() {
			continue
		}
		block, err := fsys.img.ReadBlock(ptr.offset(), fsys.constants.BlockSize)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}

	indirects := []struct {
		depth int
		raw   uint32
	}{
		{1, rec.SIndirect},
		{2, rec.DIndirect},
		{3, rec.TIndirect},
	}
	for _, ind := range indirects {
		ptr := blockPtrFromRaw(ind.raw)
		if ptr.isNil() {
			continue
		}
		var blocks [][]byte
		if err := fsys.readIndirectTree(ind.depth, ptr, &blocks); err != nil {
			return nil, err
		}
		for _, b := range blocks {
			out = append(out, b...)
		}
	}

	if uint32(len(out)) > rec.FileSize {
		out = out[:rec.FileSize]
	}
	return out, nil
}

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func chunkAt(data []byte, i, blockSize uint32) []byte {
	start := int64(i) * int64(blockSize)
	end := start + int64(blockSize)
	if start >= int64(len(data)) {
		return make([]byte, blockSize)
	}
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	chunk := make([]byte, blockSize)
	copy(chunk, data[start:end])
	return chunk
}

// splitAt splits data into (first n bytes, rest), clamping n to len(data).
func splitAt(data []byte, n int) (first, rest []byte) {
	boundary := n
	if boundary > len(data) {
		boundary = len(data)
	}
	return data[:boundary], data[boundary:]
}

func chunkBlocks(data []byte, blockSize uint32) [][]byte {
	var blocks [][]byte
	for off := 0; off < len(data); off += int(blockSize) {
		end := off + int(blockSize)
		if end > len(data) {
			end = len(data)
		}
		b := make([]byte, blockSize)
		copy(b, data[off:end])
		blocks = append(blocks, b)
	}
	return blocks
}
