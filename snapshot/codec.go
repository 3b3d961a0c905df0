// Package snapshot exports and imports a compressed copy of a sectorfs
// disk image's full flat byte array, for offline backup. It never touches
// a live fsm.FileSystem/ssm.Manager/inodestore.Store triple while running
// — export and import both operate on the raw backing store only.
package snapshot

import (
	"fmt"
	"io"
)

// Codec names a registered compression scheme for the snapshot stream.
type Codec uint8

const (
	// LZ4 compresses with pierrec/lz4's frame format: fast, lower ratio.
	LZ4 Codec = iota + 1
	// XZ compresses with ulikunitz/xz: slower, higher ratio.
	XZ
)

func (c Codec) String() string {
	switch c {
	case LZ4:
		return "LZ4"
	case XZ:
		return "XZ"
	}
	return fmt.Sprintf("Codec(%d)", uint8(c))
}

// compressor wraps w with a Codec's writer; the returned io.WriteCloser's
// Close must be called to flush the final frame.
type compressor func(w io.Writer) (io.WriteCloser, error)

// decompressor wraps r with a Codec's reader.
type decompressor func(r io.Reader) (io.Reader, error)

var (
	compressors   = map[Codec]compressor{}
	decompressors = map[Codec]decompressor{}
)

// registerCodec is called from each codec's init(), mirroring the
// per-format registration idiom: every codec owns one file and wires
// itself in without the registry needing to know its package.
func registerCodec(c Codec, comp compressor, decomp decompressor) {
	compressors[c] = comp
	decompressors[c] = decomp
}

func compressorFor(c Codec) (compressor, error) {
	fn, ok := compressors[c]
	if !ok {
		return nil, fmt.Errorf("snapshot: no compressor registered for codec %s", c)
	}
	return fn, nil
}

func decompressorFor(c Codec) (decompressor, error) {
	fn, ok := decompressors[c]
	if !ok {
		return nil, fmt.Errorf("snapshot: no decompressor registered for codec %s", c)
	}
	return fn, nil
}
