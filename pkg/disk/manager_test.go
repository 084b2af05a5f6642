package disk_test

import (
	"errors"
	"testing"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/pkg/disk"
)

func TestDiskManagerSingleOwner(t *testing.T) {
	dm := disk.NewDiskManager(t.TempDir(), disk.Options{MaxItems: 10})

	w, r, lease, err := disk.OpenQueue(dm, "orders", codec.String())
	if err != nil {
		t.Fatalf("OpenQueue: %v", err)
	}

	if _, _, _, err := disk.OpenQueue(dm, "orders", codec.String()); !errors.Is(err, disk.ErrQueueBusy) {
		t.Fatalf("expected ErrQueueBusy, got %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close reader: %v", err)
	}
	lease.Release()
	lease.Release()

	w2, r2, lease2, err := disk.OpenQueue(dm, "orders", codec.String())
	if err != nil {
		t.Fatalf("reopen after release: %v", err)
	}
	defer lease2.Release()
	defer r2.Close()
	defer w2.Close()

	if w2.CurrentIndex() != 1 {
		t.Fatalf("expected writer to move past sealed segment 0, got %d", w2.CurrentIndex())
	}
}

func TestDiskManagerQueues(t *testing.T) {
	dm := disk.NewDiskManager(t.TempDir(), disk.Options{})
	for _, name := range []string{"b", "a"} {
		w, r, lease, err := disk.OpenQueue(dm, name, codec.String())
		if err != nil {
			t.Fatalf("OpenQueue %s: %v", name, err)
		}
		_ = w.Close()
		_ = r.Close()
		lease.Release()
	}

	names, err := dm.Queues()
	if err != nil {
		t.Fatalf("Queues: %v", err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected queues %v", names)
	}
}

func TestDiskManagerRejectsNestedNames(t *testing.T) {
	dm := disk.NewDiskManager(t.TempDir(), disk.Options{})
	if _, _, _, err := disk.OpenQueue(dm, "../escape", codec.String()); err == nil {
		t.Fatalf("expected invalid name error")
	}
}
