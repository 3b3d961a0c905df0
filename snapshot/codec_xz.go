package snapshot

import (
	"io"

	"github.com/ulikunitz/xz"
)

func init() {
	registerCodec(XZ,
		func(w io.Writer) (io.WriteCloser, error) {
			return xz.NewWriter(w)
		},
		func(r io.Reader) (io.Reader, error) {
			return xz.NewReader(r)
		},
	)
}
