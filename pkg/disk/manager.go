package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/util"
)

var ErrQueueBusy = errors.New("disk: queue already open")

// DiskManager hands out spill directories under one root and makes sure a
// queue has at most one writer/reader pair in this process.
type DiskManager struct {
	mu     sync.Mutex
	root   string
	opts   Options
	leases map[string]struct{}
}

func NewDiskManager(root string, opts Options) *DiskManager {
	return &DiskManager{
		root:   root,
		opts:   opts,
		leases: make(map[string]struct{}),
	}
}

// Dir returns the directory backing the named queue.
func (dm *DiskManager) Dir(name string) string {
	return filepath.Join(dm.root, name)
}

// Lease marks a queue as in use until Release.
type Lease struct {
	dm   *DiskManager
	name string
	once sync.Once
}

func (l *Lease) Release() {
	l.once.Do(func() {
		l.dm.mu.Lock()
		delete(l.dm.leases, l.name)
		l.dm.mu.Unlock()
		util.Debug("disk: released queue %s", l.name)
	})
}

func (dm *DiskManager) acquire(name string) (*Lease, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("disk: invalid queue name %q", name)
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if _, ok := dm.leases[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrQueueBusy, name)
	}
	if err := os.MkdirAll(dm.Dir(name), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory %s: %w", dm.Dir(name), err)
	}
	dm.leases[name] = struct{}{}
	return &Lease{dm: dm, name: name}, nil
}

// OpenQueue opens the writer/reader pair for a named queue. The lease must be
// released after both are closed.
func OpenQueue[T any](dm *DiskManager, name string, c codec.Codec[T]) (*DirWriter[T], *DirReader[T], *Lease, error) {
	lease, err := dm.acquire(name)
	if err != nil {
		return nil, nil, nil, err
	}
	w, r, err := OpenDir(dm.Dir(name), c, dm.opts)
	if err != nil {
		lease.Release()
		return nil, nil, nil, err
	}
	util.Debug("disk: opened queue %s at segment %d", name, w.CurrentIndex())
	return w, r, lease, nil
}

// Queues lists the queue directories under the root.
func (dm *DiskManager) Queues() ([]string, error) {
	entries, err := os.ReadDir(dm.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
