package watch_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/downfa11-org/spillq/pkg/types"
	"github.com/downfa11-org/spillq/pkg/watch"
)

func waitForSignal(sub *watch.Subscription) bool {
	select {
	case <-sub.C():
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestSubscriptionSignalsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}

	sub, err := watch.Subscribe(path)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write([]byte("more")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	if !waitForSignal(sub) {
		t.Fatal("timed out waiting for write signal")
	}
	if err := sub.Err(); err != nil {
		t.Fatalf("unexpected watcher error: %v", err)
	}
}

func TestSubscriptionSignalsOnChmod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}

	sub, err := watch.Subscribe(path)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := os.Chmod(path, 0o444); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if !waitForSignal(sub) {
		t.Fatal("timed out waiting for chmod signal")
	}
}

func TestSubscribeMissingPath(t *testing.T) {
	_, err := watch.Subscribe(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for missing path")
	}
	if !types.IsNotification(err) {
		t.Fatalf("expected notification error, got %v", err)
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	sub, err := watch.Subscribe(path)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
