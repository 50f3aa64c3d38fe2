package cache

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func pcmFixture(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 7)
	}
	return data
}

func TestDiskCache_RoundTripCompressed(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	value := pcmFixture(48000)
	if err := dc.Put("chunk", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "chunk"+diskExt))
	if err != nil {
		t.Fatalf("entry file missing: %v", err)
	}
	if info.Size() >= int64(len(value)) {
		t.Errorf("entry not compressed: %d bytes on disk for %d", info.Size(), len(value))
	}

	got, ok := dc.Get("chunk")
	if !ok {
		t.Fatal("expected hit")
	}
	if !bytes.Equal(got, value) {
		t.Error("round trip mismatch")
	}
}

func TestDiskCache_PersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()

	dc, err := NewDiskCache(dir, 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	if err := dc.Put("k", pcmFixture(2000)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	size := dc.Size()
	dc.Close()

	reopened, err := NewDiskCache(dir, 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if reopened.Size() != size {
		t.Errorf("size after reopen = %d, want %d", reopened.Size(), size)
	}
	if _, ok := reopened.Get("k"); !ok {
		t.Error("entry lost across reopen")
	}
}

func TestDiskCache_CorruptedEntryIsDropped(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	path := filepath.Join(dir, "bad"+diskExt)
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := dc.Load("bad"); !errors.Is(err, ErrCacheCorrupted) {
		t.Errorf("err = %v, want ErrCacheCorrupted", err)
	}
	if _, err := dc.Load("bad"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("second load err = %v, want fs.ErrNotExist", err)
	}

	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := dc.Get("bad"); ok {
		t.Error("corrupted entry should miss")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupted entry should be removed")
	}
}

func TestDiskCache_EvictsOldest(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	_ = dc.Put("old", pcmFixture(1000))
	_ = dc.Put("new", pcmFixture(1000))

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "old"+diskExt), past, past); err != nil {
		t.Fatal(err)
	}

	dc.mu.Lock()
	dc.capacity = dc.size
	dc.mu.Unlock()

	if err := dc.Put("third", pcmFixture(1000)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok := dc.Get("old"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := dc.Get("third"); !ok {
		t.Error("new entry missing")
	}
}

func TestDiskCache_RemoveOlderThan(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	_ = dc.Put("stale", pcmFixture(100))
	_ = dc.Put("fresh", pcmFixture(100))
	past := time.Now().Add(-48 * time.Hour)
	_ = os.Chtimes(filepath.Join(dir, "stale"+diskExt), past, past)

	if n := dc.RemoveOlderThan(time.Now().Add(-24 * time.Hour)); n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, ok := dc.Get("fresh"); !ok {
		t.Error("fresh entry removed")
	}
}
