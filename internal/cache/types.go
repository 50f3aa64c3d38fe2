package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/dastaan/dastaan/internal/ttypes"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when a stored entry cannot be decompressed
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Level identifies the tier that served a lookup.
type Level int

const (
	// LevelMemory is the in-process LRU
	LevelMemory Level = iota

	// LevelDisk is the compressed on-disk store
	LevelDisk
)

func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds cache performance metrics.
type Stats struct {
	Capacity  int64 // Maximum capacity in bytes
	Size      int64 // Current size in bytes
	ItemCount int64

	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64

	LastAccess time.Time
}

func (s *Stats) updateHitRate() {
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
}

// Config holds configuration for the chunk cache.
type Config struct {
	// MemoryCapacity of the LRU in bytes
	MemoryCapacity int64

	// DiskCapacity of the on-disk store in bytes; 0 disables the disk tier
	DiskCapacity int64

	// DiskPath is the directory holding compressed entries
	DiskPath string

	// CompressionLevel is the zstd level (1-22)
	CompressionLevel int

	// MaxAge expires disk entries older than this; 0 keeps them forever
	MaxAge time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,
		DiskCapacity:     512 * 1024 * 1024,
		CompressionLevel: 3,
		MaxAge:           30 * 24 * time.Hour,
	}
}

// ChunkKey derives the cache key of one chunk's audio. Only the settings that
// change the generated speech take part; music and export quality do not.
func ChunkKey(text string, settings ttypes.GenerationSettings, model string) string {
	h := sha256.New()
	for _, part := range []string{text, string(settings.Voice), string(settings.Tone), model} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
