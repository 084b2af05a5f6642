package disk

import (
	"errors"
	"fmt"
	"os"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/pkg/metrics"
	"github.com/downfa11-org/spillq/pkg/types"
	"github.com/downfa11-org/spillq/util"
)

// DirWriter appends items to numbered segments in one directory, moving to
// the next index whenever the current segment reaches its item cap.
//
// Rotation creates the next segment before sealing the previous one, and the
// previous one is fully closed before the new one takes the item. A reader
// that finds segment N sealed and drained can therefore rely on N+1 existing.
type DirWriter[T any] struct {
	dir       string
	codec     codec.Codec[T]
	opts      Options
	current   *CappedWriter[T]
	retiring  *CappedWriter[T]
	nextIndex uint64
	closed    bool
}

// OpenDirWriter prepares a writer for dir. Existing segments are kept: a
// sealed last segment makes the writer start after it, an unsealed one is
// reopened and appended to after dropping any torn trailing frame. An
// unsealed segment below the last one was left behind by a rotation that
// never finished; it is trimmed the same way and sealed.
func OpenDirWriter[T any](dir string, c codec.Codec[T], opts Options) (*DirWriter[T], error) {
	if err := checkDir(dir); err != nil {
		return nil, err
	}
	indices, err := ListSegments(dir)
	if err != nil {
		return nil, err
	}

	d := &DirWriter[T]{dir: dir, codec: c, opts: opts}

	var (
		index    uint64
		existing int
	)
	if n := len(indices); n > 0 {
		for _, idx := range indices[:n-1] {
			if err := sealStranded(SegmentPath(dir, idx), c); err != nil {
				return nil, err
			}
		}

		last := indices[n-1]
		info, err := Inspect(SegmentPath(dir, last), c, nil)
		if err != nil {
			return nil, err
		}
		if info.Sealed {
			index = last + 1
		} else {
			index = last
			existing = info.Items
			if err := dropTornTail(info); err != nil {
				return nil, err
			}
			util.Info("disk: resuming segment %s with %d items", info.Path, existing)
		}
	}

	w, err := OpenWriter(SegmentPath(dir, index), c, opts)
	if err != nil {
		return nil, err
	}
	d.current = NewCappedWriter(w, existing, opts.MaxItems)
	d.nextIndex = index + 1
	return d, nil
}

func dropTornTail(info SegmentInfo) error {
	if info.ValidBytes >= info.Size {
		return nil
	}
	util.Warn("disk: dropping %d torn bytes at the end of %s", info.Size-info.ValidBytes, info.Path)
	if err := os.Truncate(info.Path, info.ValidBytes); err != nil {
		return types.StorageError("truncate", info.Path, err)
	}
	return nil
}

func sealStranded[T any](path string, c codec.Codec[T]) error {
	info, err := Inspect(path, c, nil)
	if err != nil {
		return err
	}
	if info.Sealed {
		return nil
	}
	if err := dropTornTail(info); err != nil {
		return err
	}
	st, err := os.Stat(path)
	if err != nil {
		return types.StorageError("stat", path, err)
	}
	util.Warn("disk: sealing segment %s left open by an interrupted rotation (%d items)", path, info.Items)
	if err := os.Chmod(path, st.Mode().Perm()&^0o222); err != nil {
		return types.StorageError("seal", path, err)
	}
	return nil
}

func (d *DirWriter[T]) Dir() string {
	return d.dir
}

// CurrentIndex is the index of the segment currently taking writes.
func (d *DirWriter[T]) CurrentIndex() uint64 {
	return d.nextIndex - 1
}

// Accept hands item to the current segment, rotating first when it is full.
// It reports false when the write buffer must be flushed before the item
// fits.
func (d *DirWriter[T]) Accept(item T) (bool, error) {
	if d.closed {
		return false, ErrClosed
	}
	if err := d.finishRetiring(); err != nil {
		return false, err
	}

	ok, err := d.current.Accept(item)
	if !errors.Is(err, ErrSegmentFull) {
		return ok, err
	}
	if err := d.rotate(); err != nil {
		return false, err
	}
	return d.current.Accept(item)
}

func (d *DirWriter[T]) rotate() error {
	next, err := OpenWriter(SegmentPath(d.dir, d.nextIndex), d.codec, d.opts)
	if err != nil {
		return err
	}
	util.Debug("disk: rotating %s -> %s", d.current.Path(), next.Path())
	d.retiring = d.current
	d.current = NewCappedWriter(next, 0, d.opts.MaxItems)
	d.nextIndex++
	metrics.SegmentsRotated.Inc()
	return d.finishRetiring()
}

func (d *DirWriter[T]) finishRetiring() error {
	if d.retiring == nil {
		return nil
	}
	if err := d.retiring.Close(); err != nil {
		return fmt.Errorf("seal rotated segment: %w", err)
	}
	d.retiring = nil
	return nil
}

// Flush pushes buffered bytes of the current segment to disk.
func (d *DirWriter[T]) Flush() error {
	if d.closed {
		return nil
	}
	if err := d.finishRetiring(); err != nil {
		return err
	}
	return d.current.Flush()
}

// Close seals the current segment. Like Writer.Close it can be retried after
// a failure.
func (d *DirWriter[T]) Close() error {
	if err := d.finishRetiring(); err != nil {
		return err
	}
	d.closed = true
	return d.current.Close()
}
