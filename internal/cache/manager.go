package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Manager looks up chunk audio in memory first, then on disk, promoting disk
// hits into memory. It satisfies ttypes.AudioCache.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache

	mu    sync.Mutex
	stats ManagerStats
}

// ManagerStats aggregates lookups across tiers.
type ManagerStats struct {
	MemoryHits int64
	DiskHits   int64
	Misses     int64
	Memory     Stats
	Disk       Stats
}

// HitRate returns the fraction of lookups served from either tier.
func (s ManagerStats) HitRate() float64 {
	hits := s.MemoryHits + s.DiskHits
	if hits+s.Misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+s.Misses)
}

// NewManager creates the cache tiers described by config. The disk tier is
// skipped when DiskPath is empty or DiskCapacity is zero.
func NewManager(config Config) (*Manager, error) {
	defaults := DefaultConfig()
	if config.MemoryCapacity <= 0 {
		config.MemoryCapacity = defaults.MemoryCapacity
	}

	m := &Manager{memory: NewMemoryCache(config.MemoryCapacity)}

	if config.DiskPath != "" && config.DiskCapacity > 0 {
		disk, err := NewDiskCache(config.DiskPath, config.DiskCapacity, config.CompressionLevel, config.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		m.disk = disk
	}

	return m, nil
}

// Get returns cached PCM for key.
func (m *Manager) Get(key string) ([]byte, bool) {
	data, _, ok := m.Lookup(key)
	return data, ok
}

// Lookup is Get that also reports which tier served the hit.
func (m *Manager) Lookup(key string) ([]byte, Level, bool) {
	if data, ok := m.memory.Get(key); ok {
		m.count(func(s *ManagerStats) { s.MemoryHits++ })
		return data, LevelMemory, true
	}

	if m.disk != nil {
		if data, ok := m.disk.Get(key); ok {
			m.count(func(s *ManagerStats) { s.DiskHits++ })
			_ = m.memory.Put(key, data)
			return data, LevelDisk, true
		}
	}

	m.count(func(s *ManagerStats) { s.Misses++ })
	return nil, LevelMemory, false
}

// Put writes value to both tiers. An entry too large for one tier is still
// stored in the other.
func (m *Manager) Put(key string, value []byte) error {
	var errs []error
	if err := m.memory.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}
	if m.disk != nil {
		if err := m.disk.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
			errs = append(errs, fmt.Errorf("disk: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Delete removes key from both tiers.
func (m *Manager) Delete(key string) error {
	m.memory.Delete(key)
	if m.disk != nil {
		return m.disk.Delete(key)
	}
	return nil
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	m.memory.Clear()
	if m.disk != nil {
		return m.disk.Clear()
	}
	return nil
}

// Stats returns lookup counts and per-tier metrics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	stats := m.stats
	m.mu.Unlock()

	stats.Memory = m.memory.Stats()
	if m.disk != nil {
		stats.Disk = m.disk.Stats()
	}
	return stats
}

// Close releases the disk tier.
func (m *Manager) Close() error {
	if m.disk == nil {
		return nil
	}
	log.Debug("Closing chunk cache", "diskBytes", m.disk.Size())
	return m.disk.Close()
}

func (m *Manager) count(fn func(*ManagerStats)) {
	m.mu.Lock()
	fn(&m.stats)
	m.mu.Unlock()
}
