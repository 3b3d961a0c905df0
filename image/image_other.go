//go:build !linux && !darwin

package image

import (
	"errors"
	"os"
)

func getSectorSizes(f *os.File) (logical, physical int64, err error) {
	return 0, 0, errors.New("image: block devices not supported on this platform")
}

func deviceSize(f *os.File) (int64, error) {
	return 0, errors.New("image: block devices not supported on this platform")
}
