package disk

import (
	"context"
	"errors"
	"io"
	"io/fs"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/util"
)

// DirReader reads the segments of one directory in index order, deleting
// each once it is sealed and drained.
//
// A missing index ends the stream: a gap in the numbering cannot be told
// apart from a fully drained queue, so segments must be created without gaps.
type DirReader[T any] struct {
	dir       string
	codec     codec.Codec[T]
	current   *Reader[T]
	index     uint64
	exhausted bool
}

// OpenDirReader starts at the lowest segment present in dir. An empty
// directory reads as already exhausted unless segment 0 shows up before the
// first read.
func OpenDirReader[T any](dir string, c codec.Codec[T]) (*DirReader[T], error) {
	if err := checkDir(dir); err != nil {
		return nil, err
	}
	indices, err := ListSegments(dir)
	if err != nil {
		return nil, err
	}
	d := &DirReader[T]{dir: dir, codec: c}
	if len(indices) > 0 {
		d.index = indices[0]
	}
	return d, nil
}

func (d *DirReader[T]) Dir() string {
	return d.dir
}

// CurrentIndex is the segment being read or about to be opened.
func (d *DirReader[T]) CurrentIndex() uint64 {
	return d.index
}

// Exhausted reports whether the reader already hit the end of the queue.
func (d *DirReader[T]) Exhausted() bool {
	return d.exhausted
}

// Changed fires when the segment being read may have progressed.
func (d *DirReader[T]) Changed() <-chan struct{} {
	if d.current == nil {
		return nil
	}
	return d.current.Changed()
}

// TryNext never blocks. See Reader.TryNext; io.EOF here means the whole
// queue is drained.
func (d *DirReader[T]) TryNext() (T, bool, error) {
	var zero T
	for {
		if d.exhausted {
			return zero, false, io.EOF
		}
		if d.current == nil {
			r, err := OpenReader(SegmentPath(d.dir, d.index), d.codec)
			if errors.Is(err, fs.ErrNotExist) {
				util.Debug("disk: no segment %d in %s, queue exhausted", d.index, d.dir)
				d.exhausted = true
				return zero, false, io.EOF
			}
			if err != nil {
				return zero, false, err
			}
			d.current = r
		}

		item, ok, err := d.current.TryNext()
		if errors.Is(err, io.EOF) {
			d.current = nil
			d.index++
			continue
		}
		return item, ok, err
	}
}

// Next blocks until an item is available, the queue is exhausted (io.EOF) or
// ctx is done.
func (d *DirReader[T]) Next(ctx context.Context) (T, error) {
	for {
		item, ok, err := d.TryNext()
		if err != nil || ok {
			return item, err
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-d.Changed():
		}
	}
}

// Close releases the current segment without deleting it.
func (d *DirReader[T]) Close() error {
	d.exhausted = true
	if d.current == nil {
		return nil
	}
	err := d.current.Close()
	d.current = nil
	return err
}
