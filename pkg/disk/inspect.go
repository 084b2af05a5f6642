package disk

import (
	"errors"
	"os"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/pkg/types"
	"golang.org/x/exp/mmap"
)

// SegmentInfo describes a segment file without consuming it.
type SegmentInfo struct {
	Index  uint64
	Path   string
	Size   int64
	Sealed bool
	// Items counts complete frames.
	Items int
	// ValidBytes is the length of the prefix made of complete frames. It is
	// less than Size when a writer died mid-frame.
	ValidBytes int64
}

// Inspect scans the segment at path. visit, when non-nil, is called for
// every decoded item in order.
func Inspect[T any](path string, c codec.Codec[T], visit func(T)) (SegmentInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return SegmentInfo{}, types.StorageError("stat", path, err)
	}
	info := SegmentInfo{Path: path, Size: st.Size(), Sealed: isSealed(st.Mode())}

	reader, err := mmap.Open(path)
	if err != nil {
		return info, types.StorageError("mmap open", path, err)
	}
	defer reader.Close()

	data := make([]byte, reader.Len())
	if len(data) > 0 {
		if _, err := reader.ReadAt(data, 0); err != nil {
			return info, types.StorageError("mmap read", path, err)
		}
	}

	pos := 0
	for pos < len(data) {
		item, n, err := c.Decode(data[pos:])
		if errors.Is(err, codec.ErrIncomplete) {
			break
		}
		if err != nil {
			return info, types.CodecError("decode", path, err)
		}
		if visit != nil {
			visit(item)
		}
		pos += n
		info.Items++
	}
	info.ValidBytes = int64(pos)
	return info, nil
}

// InspectDir runs Inspect over every segment in dir.
func InspectDir[T any](dir string, c codec.Codec[T], visit func(uint64, T)) ([]SegmentInfo, error) {
	if err := checkDir(dir); err != nil {
		return nil, err
	}
	indices, err := ListSegments(dir)
	if err != nil {
		return nil, err
	}
	infos := make([]SegmentInfo, 0, len(indices))
	for _, idx := range indices {
		var fn func(T)
		if visit != nil {
			fn = func(item T) { visit(idx, item) }
		}
		info, err := Inspect(SegmentPath(dir, idx), c, fn)
		if err != nil {
			return infos, err
		}
		info.Index = idx
		infos = append(infos, info)
	}
	return infos, nil
}
