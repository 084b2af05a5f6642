//go:build !linux
// +build !linux

package disk

import "os"

func openSegmentForRead(path string) (*os.File, error) {
	return os.Open(path)
}
