package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/pkg/metrics"
	"github.com/downfa11-org/spillq/pkg/types"
	"github.com/downfa11-org/spillq/pkg/watch"
	"github.com/downfa11-org/spillq/util"
)

const readChunkSize = 32 * 1024

var errTruncatedFrame = errors.New("sealed segment ends in a partial frame")

// Reader reads items from one segment while its writer may still be
// appending. A sealed segment that has been read to the end is deleted.
type Reader[T any] struct {
	path  string
	codec codec.Codec[T]
	file  *os.File
	buf   []byte
	chunk []byte
	sub   *watch.Subscription
	done  bool
}

// OpenReader opens the segment at path. A missing file yields an error
// matching fs.ErrNotExist.
func OpenReader[T any](path string, c codec.Codec[T]) (*Reader[T], error) {
	f, err := openSegmentForRead(path)
	if err != nil {
		return nil, types.StorageError("open", path, err)
	}
	return &Reader[T]{
		path:  path,
		codec: c,
		file:  f,
		chunk: make([]byte, readChunkSize),
	}, nil
}

func (r *Reader[T]) Path() string {
	return r.path
}

// Changed fires when the segment may have new bytes or a new seal. It is nil
// until TryNext first had to wait.
func (r *Reader[T]) Changed() <-chan struct{} {
	if r.sub == nil {
		return nil
	}
	return r.sub.C()
}

// TryNext never blocks. It returns the next item with ok set, io.EOF once
// the segment is sealed, drained and deleted, or ok unset while the writer
// has not produced more data yet.
func (r *Reader[T]) TryNext() (item T, ok bool, err error) {
	var zero T
	if r.done {
		return zero, false, io.EOF
	}

	sealSeen := false
	for {
		if len(r.buf) > 0 {
			item, n, err := r.codec.Decode(r.buf)
			if err == nil {
				r.buf = r.buf[n:]
				return item, true, nil
			}
			if !errors.Is(err, codec.ErrIncomplete) {
				return zero, false, types.CodecError("decode", r.path, err)
			}
		}

		n, err := r.fill()
		if err != nil {
			return zero, false, err
		}
		if n > 0 {
			continue
		}

		// nothing more on disk right now
		if sealSeen {
			if len(r.buf) > 0 {
				return zero, false, types.CodecError("decode", r.path, errTruncatedFrame)
			}
			if err := r.finish(); err != nil {
				return zero, false, err
			}
			return zero, false, io.EOF
		}

		sealed, err := r.sealed()
		if err != nil {
			return zero, false, err
		}
		if sealed {
			// the writer flushes before sealing, so one more read settles it
			sealSeen = true
			continue
		}

		if r.sub == nil {
			sub, err := watch.Subscribe(r.path)
			if err != nil {
				return zero, false, err
			}
			r.sub = sub
			// bytes may have landed before the watch was in place
			continue
		}
		if err := r.sub.Err(); err != nil {
			return zero, false, err
		}
		return zero, false, nil
	}
}

// Next blocks until an item is available, the segment is exhausted (io.EOF)
// or ctx is done.
func (r *Reader[T]) Next(ctx context.Context) (T, error) {
	for {
		item, ok, err := r.TryNext()
		if err != nil || ok {
			return item, err
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-r.Changed():
		}
	}
}

func (r *Reader[T]) fill() (int, error) {
	n, err := r.file.Read(r.chunk)
	if n > 0 {
		r.buf = append(r.buf, r.chunk[:n]...)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, types.StorageError("read", r.path, err)
	}
	return n, nil
}

func (r *Reader[T]) sealed() (bool, error) {
	info, err := r.file.Stat()
	if err != nil {
		return false, types.StorageError("stat", r.path, err)
	}
	return isSealed(info.Mode()), nil
}

func (r *Reader[T]) finish() error {
	if err := r.release(); err != nil {
		return err
	}
	if err := os.Remove(r.path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return types.StorageError("delete", r.path, err)
		}
		util.Warn("disk: segment %s already deleted", r.path)
	} else {
		metrics.SegmentsDeleted.Inc()
		util.Debug("disk: segment %s drained and deleted", r.path)
	}
	r.done = true
	return nil
}

func (r *Reader[T]) release() error {
	var errs []error
	if r.sub != nil {
		if err := r.sub.Close(); err != nil {
			errs = append(errs, types.NotificationError("close watch", r.path, err))
		}
		r.sub = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, types.StorageError("close", r.path, err))
		}
		r.file = nil
	}
	return errors.Join(errs...)
}

// Close releases the file and watch without deleting the segment. Unread
// items stay on disk for the next reader.
func (r *Reader[T]) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	if err := r.release(); err != nil {
		return fmt.Errorf("close reader: %w", err)
	}
	return nil
}

func isSealed(mode fs.FileMode) bool {
	return mode.Perm()&0o222 == 0
}
