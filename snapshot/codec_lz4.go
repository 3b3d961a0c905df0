package snapshot

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

func init() {
	registerCodec(LZ4,
		func(w io.Writer) (io.WriteCloser, error) {
			return lz4.NewWriter(w), nil
		},
		func(r io.Reader) (io.Reader, error) {
			return lz4.NewReader(r), nil
		},
	)
}
