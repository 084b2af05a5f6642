// Package stream provides consumers that write items out as lines.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/downfa11-org/spillq/util"
)

var ErrSinkClosed = errors.New("stream: sink closed")

type SinkOptions struct {
	// RatePerSec caps accepted items per second. Zero means unlimited.
	RatePerSec int
	// BatchSize is how many lines are buffered before TrySend refuses until
	// the next Flush.
	BatchSize int
}

// Sink writes one encoded item per line to w, refusing items when its rate
// budget or batch is used up. It signals Ready once a refused item would be
// taken again.
type Sink[T any] struct {
	mu     sync.Mutex
	w      *bufio.Writer
	encode func(T) ([]byte, error)

	batch     [][]byte
	batchSize int

	limiter *rate.Limiter
	waking  bool
	readyCh chan struct{}

	delivered int
	closed    bool
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewSink[T any](w io.Writer, encode func(T) ([]byte, error), opts SinkOptions) *Sink[T] {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	s := &Sink[T]{
		w:         bufio.NewWriter(w),
		encode:    encode,
		batchSize: batchSize,
		readyCh:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	if opts.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), max(1, opts.RatePerSec/10))
	}
	return s
}

func (s *Sink[T]) Ready() <-chan struct{} {
	return s.readyCh
}

// Delivered counts items written out by Flush.
func (s *Sink[T]) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

func (s *Sink[T]) TrySend(_ context.Context, item T) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrSinkClosed
	}
	if len(s.batch) >= s.batchSize {
		return false, nil
	}
	if s.limiter != nil && !s.limiter.Allow() {
		r := s.limiter.Reserve()
		delay := r.Delay()
		r.Cancel()
		s.wakeLater(delay)
		return false, nil
	}

	line, err := s.encode(item)
	if err != nil {
		return false, fmt.Errorf("stream: encode: %w", err)
	}
	s.batch = append(s.batch, line)
	return true, nil
}

func (s *Sink[T]) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	return s.flushLocked()
}

func (s *Sink[T]) flushLocked() error {
	if len(s.batch) == 0 {
		return nil
	}
	full := len(s.batch) >= s.batchSize
	for _, line := range s.batch {
		if _, err := s.w.Write(line); err != nil {
			return err
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	s.delivered += len(s.batch)
	util.Debug("stream: sink wrote batch of %d lines, %d total", len(s.batch), s.delivered)
	s.batch = s.batch[:0]
	if full {
		s.signal()
	}
	return nil
}

// Close writes out the remaining batch. Later calls report ErrSinkClosed.
func (s *Sink[T]) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	err := s.flushLocked()
	s.closed = true
	s.stopOnce.Do(func() { close(s.stopCh) })
	return err
}

func (s *Sink[T]) wakeLater(d time.Duration) {
	if s.waking {
		return
	}
	s.waking = true
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-s.stopCh:
		case <-timer.C:
			s.mu.Lock()
			s.waking = false
			s.mu.Unlock()
			s.signal()
		}
	}()
}

func (s *Sink[T]) signal() {
	select {
	case s.readyCh <- struct{}{}:
	default:
	}
}
