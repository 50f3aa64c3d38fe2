package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const diskExt = ".pcm.zst"

// DiskCache stores each entry as one zstd frame named after its key. The
// file modification time doubles as the last access time, so the directory
// itself is the index.
type DiskCache struct {
	basePath string
	capacity int64
	maxAge   time.Duration

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	size  int64
	stats Stats
}

// NewDiskCache opens (creating if needed) a disk cache rooted at basePath.
// Expired entries are removed on open.
func NewDiskCache(basePath string, capacity int64, compressionLevel int, maxAge time.Duration) (*DiskCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if compressionLevel <= 0 {
		compressionLevel = 3
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		basePath: basePath,
		capacity: capacity,
		maxAge:   maxAge,
		encoder:  encoder,
		decoder:  decoder,
		stats:    Stats{Capacity: capacity},
	}

	if maxAge > 0 {
		if n := dc.RemoveOlderThan(time.Now().Add(-maxAge)); n > 0 {
			log.Debug("Expired cached chunks", "count", n)
		}
	}
	dc.mu.Lock()
	dc.size = dc.scanLocked(nil)
	dc.mu.Unlock()

	return dc, nil
}

// Get reads and decompresses the entry for key. A corrupted entry is
// removed and reported as a miss.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	pcm, err := dc.Load(key)
	if err != nil {
		if errors.Is(err, ErrCacheCorrupted) {
			log.Warn("Dropping corrupted cache entry", "key", key, "error", err)
		}
		return nil, false
	}
	return pcm, true
}

// Load is Get with the reason for a miss: fs.ErrNotExist when there is no
// entry, ErrCacheCorrupted when it could not be decompressed.
func (dc *DiskCache) Load(key string) ([]byte, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	path := dc.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		dc.stats.Misses++
		return nil, err
	}

	pcm, err := dc.decoder.DecodeAll(data, nil)
	if err != nil {
		dc.removeLocked(path, int64(len(data)))
		dc.stats.Misses++
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheCorrupted, key, err)
	}

	now := time.Now()
	_ = os.Chtimes(path, now, now)
	dc.stats.Hits++
	dc.stats.LastAccess = now
	return pcm, nil
}

// Put compresses value and writes it under key, evicting the least recently
// used entries when over capacity.
func (dc *DiskCache) Put(key string, value []byte) error {
	compressed := dc.encoder.EncodeAll(value, nil)
	n := int64(len(compressed))

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if n > dc.capacity {
		return ErrItemTooLarge
	}

	path := dc.path(key)
	if info, err := os.Stat(path); err == nil {
		dc.removeLocked(path, info.Size())
	}

	if dc.size+n > dc.capacity {
		dc.evictLocked(dc.size + n - dc.capacity)
	}

	if err := writeFileAtomic(path, compressed); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	dc.size += n
	return nil
}

// Delete removes the entry for key.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	path := dc.path(key)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	dc.removeLocked(path, info.Size())
	return nil
}

// Clear removes every entry.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	var errs []error
	for _, e := range dc.entriesLocked() {
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	dc.size = 0
	return errors.Join(errs...)
}

// RemoveOlderThan removes entries last used before cutoff.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for _, e := range dc.entriesLocked() {
		if e.modTime.Before(cutoff) {
			dc.removeLocked(e.path, e.size)
			removed++
		}
	}
	return removed
}

// Size returns the bytes on disk.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.size
}

// Stats returns a snapshot of cache metrics.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Size = dc.size
	stats.ItemCount = int64(len(dc.entriesLocked()))
	stats.updateHitRate()
	return stats
}

// Close releases the zstd coders.
func (dc *DiskCache) Close() error {
	dc.decoder.Close()
	return dc.encoder.Close()
}

type diskEntry struct {
	path    string
	size    int64
	modTime time.Time
}

func (dc *DiskCache) path(key string) string {
	return filepath.Join(dc.basePath, key+diskExt)
}

func (dc *DiskCache) entriesLocked() []diskEntry {
	var entries []diskEntry
	dc.scanLocked(func(e diskEntry) { entries = append(entries, e) })
	return entries
}

// scanLocked walks the cache directory and returns the total entry size.
func (dc *DiskCache) scanLocked(fn func(diskEntry)) int64 {
	dirEntries, err := os.ReadDir(dc.basePath)
	if err != nil {
		return 0
	}

	var total int64
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), diskExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		total += info.Size()
		if fn != nil {
			fn(diskEntry{
				path:    filepath.Join(dc.basePath, de.Name()),
				size:    info.Size(),
				modTime: info.ModTime(),
			})
		}
	}
	return total
}

// evictLocked frees at least need bytes, oldest access first.
func (dc *DiskCache) evictLocked(need int64) {
	entries := dc.entriesLocked()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})

	var freed int64
	for _, e := range entries {
		if freed >= need {
			break
		}
		dc.removeLocked(e.path, e.size)
		dc.stats.Evictions++
		freed += e.size
	}
}

func (dc *DiskCache) removeLocked(path string, size int64) {
	if err := os.Remove(path); err == nil {
		dc.size -= size
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
