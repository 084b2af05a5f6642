// Package watch turns fsnotify events for a single file into a wake-up
// signal that can sit in a select next to other channels.
package watch

import (
	"errors"
	"sync"

	"github.com/downfa11-org/spillq/pkg/types"
	"github.com/downfa11-org/spillq/util"
	"github.com/fsnotify/fsnotify"
)

// Subscription watches one path. Events carry no payload: a receive on C only
// means "something changed, look again". Bursts coalesce into one pending
// signal, which loses nothing because the receiver re-reads the file anyway.
type Subscription struct {
	path    string
	watcher *fsnotify.Watcher
	notify  chan struct{}
	done    chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	forwarder sync.WaitGroup
}

// Subscribe starts watching path. The forwarding goroutine lives until Close.
func Subscribe(path string) (*Subscription, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, types.NotificationError("create watcher", path, err)
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, types.NotificationError("watch", path, err)
	}

	s := &Subscription{
		path:    path,
		watcher: w,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.forwarder.Add(1)
	go func() {
		defer s.forwarder.Done()
		s.forward()
	}()
	util.Debug("watch: subscribed to %s", path)
	return s, nil
}

func (s *Subscription) forward() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			util.Debug("watch: %s %s", event.Op, event.Name)
			s.signal()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// dropped events only mean we must look again
				s.signal()
				continue
			}
			s.mu.Lock()
			if s.err == nil {
				s.err = types.NotificationError("watch", s.path, err)
			}
			s.mu.Unlock()
			s.signal()
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// C delivers a value after the watched file changed or the watcher failed.
// Check Err after every receive.
func (s *Subscription) C() <-chan struct{} {
	return s.notify
}

// Err returns the first watcher failure, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) Path() string {
	return s.path
}

// Close stops the watcher and its forwarding goroutine. It is safe to call
// more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.forwarder.Wait()
		util.Debug("watch: released %s", s.path)
	})
	return err
}
