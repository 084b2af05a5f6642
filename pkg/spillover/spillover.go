// Package spillover feeds a consumer from an upstream channel and parks the
// items the consumer cannot take yet in a spill directory, replaying them once
// it catches up.
//
// Delivery is at-least-once and unordered: an item handed straight to the
// consumer may overtake items that were spilled before it.
package spillover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/pkg/disk"
	"github.com/downfa11-org/spillq/pkg/metrics"
	"github.com/downfa11-org/spillq/pkg/types"
	"github.com/downfa11-org/spillq/util"
)

const (
	DefaultLinger       = 50 * time.Millisecond
	DefaultSegmentItems = 1000
)

var ErrFinished = errors.New("spillover: already finished")

// Phase is the shutdown progress of a Spillover.
type Phase int

const (
	PhaseWorking Phase = iota
	PhaseClosingWriter
	PhaseDrainingDisk
	PhaseClosingConsumer
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseWorking:
		return "working"
	case PhaseClosingWriter:
		return "closing-writer"
	case PhaseDrainingDisk:
		return "draining-disk"
	case PhaseClosingConsumer:
		return "closing-consumer"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Options struct {
	// Linger is how often a consumer without ReadyNotifier is retried after
	// refusing an item.
	Linger time.Duration
}

type pendingItem[T any] struct {
	item     T
	fromDisk bool
	set      bool
}

// Spillover drives one consumer. It is not safe for concurrent use; a
// single goroutine calls Run.
type Spillover[T any] struct {
	consumer types.Consumer[T]
	ready    <-chan struct{}
	upstream <-chan T
	writer   *disk.DirWriter[T]
	reader   *disk.DirReader[T]
	linger   time.Duration

	phase   Phase
	pending pendingItem[T]
	// the consumer refused its last item; the backlog is left alone until it
	// shows signs of life so replayed items are not rewritten in a loop
	stalled    bool
	readerDone bool
	failed     error
}

// New wires a consumer to upstream through the writer/reader pair of one
// spill directory.
func New[T any](consumer types.Consumer[T], upstream <-chan T, w *disk.DirWriter[T], r *disk.DirReader[T], opts Options) *Spillover[T] {
	linger := opts.Linger
	if linger <= 0 {
		linger = DefaultLinger
	}
	s := &Spillover[T]{
		consumer: consumer,
		upstream: upstream,
		writer:   w,
		reader:   r,
		linger:   linger,
	}
	if n, ok := consumer.(types.ReadyNotifier); ok {
		s.ready = n.Ready()
	}
	return s
}

// Backpressure opens (or resumes) the spill directory dir and returns a
// Spillover over it. A zero MaxItems uses DefaultSegmentItems.
func Backpressure[T any](consumer types.Consumer[T], upstream <-chan T, dir string, c codec.Codec[T], diskOpts disk.Options, opts Options) (*Spillover[T], error) {
	if diskOpts.MaxItems == 0 {
		diskOpts.MaxItems = DefaultSegmentItems
	}
	w, r, err := disk.OpenDir(dir, c, diskOpts)
	if err != nil {
		return nil, err
	}
	return New(consumer, upstream, w, r, opts), nil
}

func (s *Spillover[T]) Phase() Phase {
	return s.phase
}

// Pending reports whether an item is parked in the single pending slot.
func (s *Spillover[T]) Pending() bool {
	return s.pending.set
}

// Run moves items until upstream is closed and the shutdown sequence is
// complete, then returns the consumer and the upstream channel.
//
// Storage, codec and watch failures are fatal, as is any consumer error,
// which is returned exactly as the consumer produced it. A Run stopped by ctx
// may be called again and continues where it left off.
func (s *Spillover[T]) Run(ctx context.Context) (types.Consumer[T], <-chan T, error) {
	if s.failed != nil {
		return nil, nil, s.failed
	}
	if s.phase == PhaseDone {
		return nil, nil, ErrFinished
	}

	ticker := time.NewTicker(s.linger)
	defer ticker.Stop()

	for {
		switch s.phase {
		case PhaseWorking:
			progressed, err := s.work(ctx)
			if err != nil {
				return s.stop(ctx, err)
			}
			if progressed {
				continue
			}
			if err := s.flush(ctx); err != nil {
				return s.stop(ctx, err)
			}
			if err := s.waitWorking(ctx, ticker); err != nil {
				return s.stop(ctx, err)
			}

		case PhaseClosingWriter:
			if err := s.writer.Close(); err != nil {
				return s.fail(err)
			}
			s.setPhase(PhaseDrainingDisk)

		case PhaseDrainingDisk:
			done, progressed, err := s.drain(ctx)
			if err != nil {
				return s.stop(ctx, err)
			}
			if done {
				s.setPhase(PhaseClosingConsumer)
				continue
			}
			if progressed {
				continue
			}
			if err := s.consumer.Flush(ctx); err != nil {
				return s.stop(ctx, err)
			}
			if err := s.waitDraining(ctx, ticker); err != nil {
				return nil, nil, err
			}

		case PhaseClosingConsumer:
			if err := s.consumer.Close(ctx); err != nil {
				return s.stop(ctx, err)
			}
			s.setPhase(PhaseDone)

		case PhaseDone:
			return s.consumer, s.upstream, nil
		}
	}
}

// Close releases the spill directory when Run will not be driven to the end.
// Items already spilled stay on disk for the next run; a parked item is lost.
func (s *Spillover[T]) Close() error {
	var errs []error
	if s.phase <= PhaseClosingWriter {
		if err := s.writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.reader.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.pending.set {
		util.Warn("spillover: abandoning a pending item in phase %s", s.phase)
		s.clearPending()
	}
	return errors.Join(errs...)
}

// stop ends a Run. Cancellation of ctx leaves the state intact for the next
// Run; anything else is fatal.
func (s *Spillover[T]) stop(ctx context.Context, err error) (types.Consumer[T], <-chan T, error) {
	if isContextErr(ctx, err) {
		util.Debug("spillover: interrupted in phase %s: %v", s.phase, err)
		return nil, nil, err
	}
	return s.fail(err)
}

func (s *Spillover[T]) fail(err error) (types.Consumer[T], <-chan T, error) {
	s.failed = err
	util.Error("spillover: stopped in phase %s: %v", s.phase, err)
	return nil, nil, err
}

func (s *Spillover[T]) setPhase(p Phase) {
	util.Debug("spillover: %s -> %s", s.phase, p)
	s.phase = p
}

// work performs one step of the working phase and reports whether anything
// moved.
func (s *Spillover[T]) work(ctx context.Context) (bool, error) {
	if s.pending.set {
		p := s.takePending()
		return s.route(ctx, p.item, p.fromDisk)
	}

	if !s.readerDone && !s.stalled {
		item, ok, err := s.reader.TryNext()
		switch {
		case errors.Is(err, io.EOF):
			util.Debug("spillover: spill directory %s exhausted while working", s.reader.Dir())
			s.readerDone = true
		case err != nil:
			return false, err
		case ok:
			return s.route(ctx, item, true)
		}
	}

	select {
	case item, ok := <-s.upstream:
		if !ok {
			util.Debug("spillover: upstream finished")
			s.setPhase(PhaseClosingWriter)
			return true, nil
		}
		return s.route(ctx, item, false)
	default:
		return false, nil
	}
}

// route offers item to the consumer, then to the spill directory, and parks
// it when neither takes it.
func (s *Spillover[T]) route(ctx context.Context, item T, fromDisk bool) (bool, error) {
	ok, err := s.consumer.TrySend(ctx, item)
	if err != nil {
		if isContextErr(ctx, err) {
			s.park(item, fromDisk)
		}
		return false, err
	}
	if ok {
		s.stalled = false
		if fromDisk {
			metrics.ItemsReplayed.Inc()
		} else {
			metrics.ItemsDirect.Inc()
		}
		return true, nil
	}

	s.stalled = true
	ok, err = s.writer.Accept(item)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.ItemsSpilled.Inc()
		if fromDisk {
			// the reader may delete the segment holding the old copy as soon
			// as it moves on
			return true, s.writer.Flush()
		}
		return true, nil
	}

	s.park(item, fromDisk)
	// the writer only refuses while its buffer is full
	if err := s.writer.Flush(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Spillover[T]) flush(ctx context.Context) error {
	if err := s.consumer.Flush(ctx); err != nil {
		return err
	}
	return s.writer.Flush()
}

func (s *Spillover[T]) waitWorking(ctx context.Context, ticker *time.Ticker) error {
	var up <-chan T
	if !s.pending.set {
		up = s.upstream
	}
	var changed <-chan struct{}
	if !s.readerDone && !s.stalled {
		changed = s.reader.Changed()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case item, ok := <-up:
		if !ok {
			util.Debug("spillover: upstream finished")
			s.setPhase(PhaseClosingWriter)
			return nil
		}
		_, err := s.route(ctx, item, false)
		return err
	case <-changed:
	case <-s.ready:
		s.stalled = false
	case <-ticker.C:
		s.stalled = false
	}
	return nil
}

// drain moves one spilled item straight to the consumer. The directory is
// sealed by now, so there is no detour left.
func (s *Spillover[T]) drain(ctx context.Context) (done, progressed bool, err error) {
	if !s.pending.set {
		item, ok, err := s.reader.TryNext()
		if errors.Is(err, io.EOF) {
			util.Debug("spillover: spill directory %s drained", s.reader.Dir())
			return true, false, nil
		}
		if err != nil {
			return false, false, err
		}
		if !ok {
			return false, false, nil
		}
		s.park(item, true)
	}

	ok, err := s.consumer.TrySend(ctx, s.pending.item)
	if err != nil {
		return false, false, err
	}
	if !ok {
		return false, false, nil
	}
	metrics.ItemsReplayed.Inc()
	s.clearPending()
	return false, true, nil
}

func (s *Spillover[T]) waitDraining(ctx context.Context, ticker *time.Ticker) error {
	var changed <-chan struct{}
	if !s.pending.set {
		changed = s.reader.Changed()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-changed:
	case <-s.ready:
	case <-ticker.C:
	}
	return nil
}

func (s *Spillover[T]) park(item T, fromDisk bool) {
	if s.pending.set {
		panic("spillover: pending slot already occupied")
	}
	s.pending = pendingItem[T]{item: item, fromDisk: fromDisk, set: true}
	metrics.SetPending(true)
}

func (s *Spillover[T]) takePending() pendingItem[T] {
	p := s.pending
	s.clearPending()
	return p
}

func (s *Spillover[T]) clearPending() {
	s.pending = pendingItem[T]{}
	metrics.SetPending(false)
}

func isContextErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}
