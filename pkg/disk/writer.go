package disk

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/pkg/metrics"
	"github.com/downfa11-org/spillq/pkg/types"
	"github.com/downfa11-org/spillq/util"
)

const defaultBufferSize = 64 * 1024

var ErrClosed = errors.New("disk: segment writer is closed")

// CloseState tracks how far a segment close has progressed.
type CloseState int

const (
	CloseIdle CloseState = iota
	CloseFlushPending
	CloseSealPending
	CloseReleasePending
	CloseDone
)

func (s CloseState) String() string {
	switch s {
	case CloseIdle:
		return "idle"
	case CloseFlushPending:
		return "flush-pending"
	case CloseSealPending:
		return "seal-pending"
	case CloseReleasePending:
		return "release-pending"
	case CloseDone:
		return "done"
	default:
		return fmt.Sprintf("close-state(%d)", int(s))
	}
}

// Options tunes segment writers.
type Options struct {
	// MaxItems caps the items per segment. Zero means unlimited.
	MaxItems int
	// BufferSize is the write buffer in bytes. Accept reports not ready once
	// an item no longer fits and the buffer must be flushed first.
	BufferSize int
	// NoSync skips fsync after each flush.
	NoSync bool
}

func (o Options) bufferSize() int {
	if o.BufferSize <= 0 {
		return defaultBufferSize
	}
	return o.BufferSize
}

// Writer appends framed items to one segment file. The segment is sealed by
// clearing its write permission bits when the writer closes.
type Writer[T any] struct {
	path    string
	codec   codec.Codec[T]
	opts    Options
	file    *os.File
	writer  *bufio.Writer
	scratch []byte

	state CloseState
	mode  fs.FileMode
	// set once the seal step read the file mode
	haveMode bool
}

// OpenWriter opens path for appending, creating it when missing.
func OpenWriter[T any](path string, c codec.Codec[T], opts Options) (*Writer[T], error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, types.StorageError("open", path, err)
	}
	return &Writer[T]{
		path:   path,
		codec:  c,
		opts:   opts,
		file:   f,
		writer: bufio.NewWriterSize(f, opts.bufferSize()),
	}, nil
}

func (w *Writer[T]) Path() string {
	return w.path
}

func (w *Writer[T]) State() CloseState {
	return w.state
}

// Buffered returns the number of bytes not yet handed to the OS.
func (w *Writer[T]) Buffered() int {
	if w.writer == nil {
		return 0
	}
	return w.writer.Buffered()
}

// Accept encodes item into the write buffer. It returns false without
// touching the file when the buffer has to be flushed before the item fits;
// the caller keeps the item in that case.
func (w *Writer[T]) Accept(item T) (bool, error) {
	if w.state != CloseIdle {
		return false, ErrClosed
	}

	frame, err := w.codec.Encode(w.scratch[:0], item)
	if err != nil {
		return false, types.CodecError("encode", w.path, err)
	}
	w.scratch = frame

	if buffered := w.writer.Buffered(); buffered > 0 && len(frame) > w.writer.Available() {
		return false, nil
	}
	if _, err := w.writer.Write(frame); err != nil {
		return false, types.StorageError("write", w.path, err)
	}
	return true, nil
}

// Flush pushes buffered frames to the OS and, unless NoSync is set, syncs
// the file.
func (w *Writer[T]) Flush() error {
	if w.state != CloseIdle {
		return ErrClosed
	}
	return w.flush()
}

func (w *Writer[T]) flush() error {
	if w.writer.Buffered() == 0 {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return types.StorageError("flush", w.path, err)
	}
	if !w.opts.NoSync {
		if err := w.file.Sync(); err != nil {
			return types.StorageError("sync", w.path, err)
		}
	}
	return nil
}

// Close flushes, seals and releases the segment. A failed step leaves the
// state on that step and the next Close resumes there; completed steps are
// never repeated.
func (w *Writer[T]) Close() error {
	if w.state == CloseIdle {
		w.state = CloseFlushPending
	}

	for {
		switch w.state {
		case CloseFlushPending:
			util.Debug("disk: close %s -> flush", w.path)
			if err := w.flush(); err != nil {
				return err
			}
			w.state = CloseSealPending

		case CloseSealPending:
			if !w.haveMode {
				info, err := w.file.Stat()
				if err != nil {
					return types.StorageError("stat", w.path, err)
				}
				w.mode = info.Mode().Perm()
				w.haveMode = true
			}
			util.Debug("disk: close %s -> seal (mode %v)", w.path, w.mode&^0o222)
			if err := w.file.Chmod(w.mode &^ 0o222); err != nil {
				return types.StorageError("chmod", w.path, err)
			}
			metrics.SegmentsSealed.Inc()
			w.state = CloseReleasePending

		case CloseReleasePending:
			util.Debug("disk: close %s -> release", w.path)
			if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				return types.StorageError("close", w.path, err)
			}
			w.state = CloseDone

		case CloseDone:
			return nil

		default:
			return fmt.Errorf("disk: invalid close state %v", w.state)
		}
	}
}
