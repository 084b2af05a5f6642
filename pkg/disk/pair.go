package disk

import (
	"fmt"

	"github.com/downfa11-org/spillq/pkg/codec"
)

// OpenDir returns a writer/reader pair bound to dir. The writer is opened
// first so the reader always finds the segment it should start on.
func OpenDir[T any](dir string, c codec.Codec[T], opts Options) (*DirWriter[T], *DirReader[T], error) {
	w, err := OpenDirWriter(dir, c, opts)
	if err != nil {
		return nil, nil, err
	}
	r, err := OpenDirReader(dir, c)
	if err != nil {
		if cerr := w.Close(); cerr != nil {
			return nil, nil, fmt.Errorf("%w (closing writer: %v)", err, cerr)
		}
		return nil, nil, err
	}
	return w, r, nil
}

// OpenPair returns an uncapped writer and a reader on a single segment file.
func OpenPair[T any](path string, c codec.Codec[T], opts Options) (*Writer[T], *Reader[T], error) {
	w, err := OpenWriter(path, c, opts)
	if err != nil {
		return nil, nil, err
	}
	r, err := OpenReader(path, c)
	if err != nil {
		if cerr := w.Close(); cerr != nil {
			return nil, nil, fmt.Errorf("%w (closing writer: %v)", err, cerr)
		}
		return nil, nil, err
	}
	return w, r, nil
}
