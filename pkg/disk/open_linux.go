//go:build linux
// +build linux

package disk

import (
	"os"

	"golang.org/x/sys/unix"
)

func openSegmentForRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	// Linux: sequential access hint
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
	return f, nil
}
