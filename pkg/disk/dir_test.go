package disk_test

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/pkg/disk"
)

func drain(t *testing.T, r *disk.DirReader[string]) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []string
	for {
		item, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return got
		}
		if err != nil {
			t.Fatalf("Next after %v: %v", got, err)
		}
		got = append(got, item)
	}
}

func assertItems(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestDirWriterRotation(t *testing.T) {
	dir := t.TempDir()
	w, err := disk.OpenDirWriter(dir, codec.String(), disk.Options{MaxItems: 3})
	if err != nil {
		t.Fatalf("OpenDirWriter: %v", err)
	}

	for _, s := range []string{"a", "b", "c", "d"} {
		mustAccept(t, w.Accept, s)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	indices, err := disk.ListSegments(dir)
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(indices) != 2 {
		t.Fatalf("expected 2 segments, got %v", indices)
	}
	seg0 := disk.SegmentPath(dir, 0)
	assertItems(t, readFrames(t, seg0), "a", "b", "c")
	if !isReadOnly(t, seg0) {
		t.Fatalf("segment 0 must be sealed on rotation")
	}
	if isReadOnly(t, disk.SegmentPath(dir, 1)) {
		t.Fatalf("segment 1 must stay writable until close")
	}
	if w.CurrentIndex() != 1 {
		t.Fatalf("expected current index 1, got %d", w.CurrentIndex())
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	r, err := disk.OpenDirReader(dir, codec.String())
	if err != nil {
		t.Fatalf("OpenDirReader: %v", err)
	}
	assertItems(t, drain(t, r), "a", "b", "c", "d")
}

func TestDirEndToEnd(t *testing.T) {
	dir := t.TempDir()
	w, r, err := disk.OpenDir(dir, codec.String(), disk.Options{MaxItems: 2})
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}

	for _, s := range []string{"A", "B", "C", "D", "E"} {
		mustAccept(t, w.Accept, s)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	for idx, want := range [][]string{{"A", "B"}, {"C", "D"}, {"E"}} {
		assertItems(t, readFrames(t, disk.SegmentPath(dir, uint64(idx))), want...)
	}
	if !isReadOnly(t, disk.SegmentPath(dir, 0)) || !isReadOnly(t, disk.SegmentPath(dir, 1)) {
		t.Fatalf("rotated segments must be sealed")
	}
	if isReadOnly(t, disk.SegmentPath(dir, 2)) {
		t.Fatalf("segment 2 must stay unsealed until the writer closes")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !isReadOnly(t, disk.SegmentPath(dir, 2)) {
		t.Fatalf("closing the writer must seal segment 2")
	}

	assertItems(t, drain(t, r), "A", "B", "C", "D", "E")
	for idx := uint64(0); idx < 3; idx++ {
		if _, err := os.Stat(disk.SegmentPath(dir, idx)); !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("segment %d should be deleted, stat err %v", idx, err)
		}
	}
}

func TestDirReaderFollowsLiveWriter(t *testing.T) {
	dir := t.TempDir()
	w, r, err := disk.OpenDir(dir, codec.String(), disk.Options{MaxItems: 2})
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	defer r.Close()

	want := []string{"1", "2", "3", "4", "5", "6", "7"}
	go func() {
		for _, s := range want {
			_, _ = w.Accept(s)
			_ = w.Flush()
			time.Sleep(5 * time.Millisecond)
		}
		_ = w.Close()
	}()

	assertItems(t, drain(t, r), want...)
}

func TestDirCrashRecovery(t *testing.T) {
	dir := t.TempDir()
	w, err := disk.OpenDirWriter(dir, codec.String(), disk.Options{MaxItems: 2})
	if err != nil {
		t.Fatalf("OpenDirWriter: %v", err)
	}
	for _, s := range []string{"a", "b", "c"} {
		mustAccept(t, w.Accept, s)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// simulated crash: w is dropped without Close, segment 1 stays unsealed

	restarted, err := disk.OpenDirWriter(dir, codec.String(), disk.Options{MaxItems: 2})
	if err != nil {
		t.Fatalf("reopen writer: %v", err)
	}
	if restarted.CurrentIndex() != 1 {
		t.Fatalf("expected to resume unsealed segment 1, got %d", restarted.CurrentIndex())
	}
	mustAccept(t, restarted.Accept, "d")
	mustAccept(t, restarted.Accept, "e")
	if err := restarted.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	assertItems(t, readFrames(t, disk.SegmentPath(dir, 1)), "c", "d")
	assertItems(t, readFrames(t, disk.SegmentPath(dir, 2)), "e")

	r, err := disk.OpenDirReader(dir, codec.String())
	if err != nil {
		t.Fatalf("OpenDirReader: %v", err)
	}
	assertItems(t, drain(t, r), "a", "b", "c", "d", "e")
}

func TestDirWriterDropsTornTail(t *testing.T) {
	dir := t.TempDir()
	good, _ := codec.String().Encode(nil, "whole")
	torn, _ := codec.String().Encode(nil, "half")
	if err := os.WriteFile(disk.SegmentPath(dir, 0), append(good, torn[:6]...), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w, err := disk.OpenDirWriter(dir, codec.String(), disk.Options{})
	if err != nil {
		t.Fatalf("OpenDirWriter: %v", err)
	}
	mustAccept(t, w.Accept, "after")
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	assertItems(t, readFrames(t, disk.SegmentPath(dir, 0)), "whole", "after")
}

func TestDirWriterSealsSegmentsLeftByInterruptedRotation(t *testing.T) {
	dir := t.TempDir()
	var data []byte
	for _, s := range []string{"a", "b"} {
		data, _ = codec.String().Encode(data, s)
	}
	torn, _ := codec.String().Encode(nil, "lost")
	data = append(data, torn[:5]...)
	// crash after the next segment was created but before 0 was sealed
	if err := os.WriteFile(disk.SegmentPath(dir, 0), data, 0o644); err != nil {
		t.Fatalf("write 0: %v", err)
	}
	if err := os.WriteFile(disk.SegmentPath(dir, 1), nil, 0o644); err != nil {
		t.Fatalf("write 1: %v", err)
	}

	w, r, err := disk.OpenDir(dir, codec.String(), disk.Options{MaxItems: 2})
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	defer r.Close()

	st, err := os.Stat(disk.SegmentPath(dir, 0))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode().Perm()&0o222 != 0 {
		t.Fatalf("expected segment 0 sealed on open, mode %v", st.Mode())
	}
	if w.CurrentIndex() != 1 {
		t.Fatalf("expected to resume segment 1, got %d", w.CurrentIndex())
	}

	mustAccept(t, w.Accept, "c")
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	assertItems(t, drain(t, r), "a", "b", "c")
}

func TestDirWriterStartsAfterSealedSegments(t *testing.T) {
	dir := t.TempDir()
	w, err := disk.OpenDirWriter(dir, codec.String(), disk.Options{})
	if err != nil {
		t.Fatalf("OpenDirWriter: %v", err)
	}
	mustAccept(t, w.Accept, "old")
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w2, err := disk.OpenDirWriter(dir, codec.String(), disk.Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if w2.CurrentIndex() != 1 {
		t.Fatalf("expected new segment 1 after sealed 0, got %d", w2.CurrentIndex())
	}
	mustAccept(t, w2.Accept, "new")
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := disk.OpenDirReader(dir, codec.String())
	if err != nil {
		t.Fatalf("OpenDirReader: %v", err)
	}
	assertItems(t, drain(t, r), "old", "new")
}

func TestDirReaderStartsAtLowestIndex(t *testing.T) {
	dir := t.TempDir()
	for idx, s := range map[uint64]string{4: "four", 5: "five"} {
		frame, _ := codec.String().Encode(nil, s)
		if err := os.WriteFile(disk.SegmentPath(dir, idx), frame, 0o444); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := disk.OpenDirReader(dir, codec.String())
	if err != nil {
		t.Fatalf("OpenDirReader: %v", err)
	}
	if r.CurrentIndex() != 4 {
		t.Fatalf("expected to start at 4, got %d", r.CurrentIndex())
	}
	assertItems(t, drain(t, r), "four", "five")
}

func TestDirReaderGapEndsStream(t *testing.T) {
	dir := t.TempDir()
	for _, idx := range []uint64{0, 2} {
		frame, _ := codec.String().Encode(nil, "x")
		if err := os.WriteFile(disk.SegmentPath(dir, idx), frame, 0o444); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	r, err := disk.OpenDirReader(dir, codec.String())
	if err != nil {
		t.Fatalf("OpenDirReader: %v", err)
	}
	assertItems(t, drain(t, r), "x")
	if !r.Exhausted() {
		t.Fatalf("expected exhausted reader")
	}
	if _, err := os.Stat(disk.SegmentPath(dir, 2)); err != nil {
		t.Fatalf("segment past the gap must be left alone: %v", err)
	}
}

func TestOpenDirRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := disk.OpenDir(path, codec.String(), disk.Options{}); !errors.Is(err, disk.ErrNotDir) {
		t.Fatalf("expected ErrNotDir, got %v", err)
	}
}

func TestInspectDir(t *testing.T) {
	dir := t.TempDir()
	w, err := disk.OpenDirWriter(dir, codec.String(), disk.Options{MaxItems: 2})
	if err != nil {
		t.Fatalf("OpenDirWriter: %v", err)
	}
	for _, s := range []string{"a", "b", "c"} {
		mustAccept(t, w.Accept, s)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	seen := map[uint64][]string{}
	infos, err := disk.InspectDir(dir, codec.String(), func(idx uint64, s string) {
		seen[idx] = append(seen[idx], s)
	})
	if err != nil {
		t.Fatalf("InspectDir: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(infos))
	}
	if !infos[0].Sealed || infos[0].Items != 2 || infos[1].Sealed || infos[1].Items != 1 {
		t.Fatalf("unexpected infos %+v", infos)
	}
	assertItems(t, seen[1], "c")
	_ = w.Close()
}
