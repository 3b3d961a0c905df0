package snapshot

import (
	"fmt"
	"io"

	"github.com/sectorfs/sectorfs/image"
)

// Export writes a compressed copy of img's full flat byte array to w, using
// codec. The image is read start to finish via its backing store's
// io.ReaderAt, in 64 KiB chunks, so Export never allocates the whole disk
// image in memory at once.
func Export(img *image.Image, w io.Writer, codec Codec) error {
	comp, err := compressorFor(codec)
	if err != nil {
		return err
	}
	cw, err := comp(w)
	if err != nil {
		return fmt.Errorf("snapshot: starting %s writer: %w", codec, err)
	}

	const chunkSize = 64 * 1024
	buf := make([]byte, chunkSize)
	r := io.NewSectionReader(img.Store(), 0, img.Size)
	if _, err := io.CopyBuffer(cw, r, buf); err != nil {
		cw.Close()
		return fmt.Errorf("snapshot: compressing image: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("snapshot: flushing %s writer: %w", codec, err)
	}
	return nil
}

// Import reads a compressed stream produced by Export and returns the
// decompressed flat byte array, for a caller to write back into a fresh
// image.Create'd backing store.
func Import(r io.Reader, codec Codec) ([]byte, error) {
	decomp, err := decompressorFor(codec)
	if err != nil {
		return nil, err
	}
	dr, err := decomp(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: starting %s reader: %w", codec, err)
	}
	data, err := io.ReadAll(dr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decompressing image: %w", err)
	}
	return data, nil
}
