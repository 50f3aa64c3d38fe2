package cache

import (
	"bytes"
	"testing"
)

func TestMemoryCache_PutGet(t *testing.T) {
	c := NewMemoryCache(1024)

	if err := c.Put("a", []byte("alpha")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit")
	}
	if !bytes.Equal(got, []byte("alpha")) {
		t.Errorf("got %q, want %q", got, "alpha")
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("hit rate = %v, want 0.5", stats.HitRate)
	}
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(10)

	_ = c.Put("a", make([]byte, 4))
	_ = c.Put("b", make([]byte, 4))
	c.Get("a") // b is now least recently used
	_ = c.Put("c", make([]byte, 4))

	if c.Contains("b") {
		t.Error("b should have been evicted")
	}
	if !c.Contains("a") || !c.Contains("c") {
		t.Error("a and c should remain")
	}
	if c.Size() != 8 {
		t.Errorf("size = %d, want 8", c.Size())
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestMemoryCache_Replace(t *testing.T) {
	c := NewMemoryCache(100)
	_ = c.Put("k", make([]byte, 10))
	_ = c.Put("k", make([]byte, 30))

	if c.Size() != 30 {
		t.Errorf("size = %d, want 30", c.Size())
	}
	if c.Stats().ItemCount != 1 {
		t.Errorf("items = %d, want 1", c.Stats().ItemCount)
	}
}

func TestMemoryCache_TooLarge(t *testing.T) {
	c := NewMemoryCache(4)
	if err := c.Put("big", make([]byte, 5)); err != ErrItemTooLarge {
		t.Errorf("err = %v, want ErrItemTooLarge", err)
	}
}

func TestMemoryCache_DeleteClear(t *testing.T) {
	c := NewMemoryCache(100)
	_ = c.Put("a", []byte("1"))
	_ = c.Put("b", []byte("2"))

	c.Delete("a")
	if c.Contains("a") {
		t.Error("a still present after Delete")
	}

	c.Clear()
	if c.Size() != 0 || c.Contains("b") {
		t.Error("cache not empty after Clear")
	}
}
