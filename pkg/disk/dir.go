package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/downfa11-org/spillq/pkg/types"
	"github.com/downfa11-org/spillq/util"
)

var ErrNotDir = errors.New("disk: path is not a directory")

// SegmentPath returns the file holding segment index inside dir.
func SegmentPath(dir string, index uint64) string {
	return filepath.Join(dir, strconv.FormatUint(index, 10))
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return types.StorageError("stat", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDir, dir)
	}
	return nil
}

// ListSegments returns the segment indices present in dir in ascending order.
// Entries whose names are not plain decimal numbers are ignored.
func ListSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, types.StorageError("list", dir, err)
	}
	indices := make([]uint64, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if idx, ok := util.ParseSegmentIndex(e.Name()); ok {
			indices = append(indices, idx)
		}
	}
	slices.Sort(indices)
	return indices, nil
}
