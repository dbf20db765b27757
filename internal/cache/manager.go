package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Manager fronts the memory and disk tiers. Entries found on disk are
// promoted to memory; writes go to both tiers.
type Manager struct {
	l1 *MemoryCache
	l2 *DiskCache

	mu    sync.Mutex
	stats ManagerStats
}

// ManagerStats aggregates lookups across tiers.
type ManagerStats struct {
	Hits       int64
	Misses     int64
	MemoryHits int64
	DiskHits   int64
	Promotions int64
	Expired    int
}

// HitRate returns hits / lookups, or zero before the first lookup.
func (s ManagerStats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// NewManager builds a cache from cfg. The disk tier is only opened when
// cfg.DiskPath is set; expired disk entries are dropped on open.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.MemoryCapacity <= 0 {
		cfg.MemoryCapacity = DefaultConfig().MemoryCapacity
	}

	m := &Manager{l1: NewMemoryCache(cfg.MemoryCapacity)}
	if cfg.DiskPath == "" {
		return m, nil
	}

	if cfg.DiskCapacity <= 0 {
		cfg.DiskCapacity = DefaultConfig().DiskCapacity
	}
	l2, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}
	if cfg.TTL > 0 {
		m.stats.Expired = l2.RemoveOlderThan(time.Now().Add(-cfg.TTL))
	}
	m.l2 = l2
	return m, nil
}

// Get looks up key in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.l1.Get(key); ok {
		m.count(LevelMemory, true)
		return data, true
	}
	if m.l2 != nil {
		if data, ok := m.l2.Get(key); ok {
			_ = m.l1.Put(key, data)
			m.count(LevelDisk, true)
			return data, true
		}
	}
	m.count(LevelMemory, false)
	return nil, false
}

// Put stores value in every tier. Items too large for a tier are skipped there.
func (m *Manager) Put(key string, value []byte) error {
	if err := m.l1.Put(key, value); err != nil && err != ErrItemTooLarge {
		return fmt.Errorf("memory cache: %w", err)
	}
	if m.l2 != nil {
		if err := m.l2.Put(key, value); err != nil && err != ErrItemTooLarge {
			return fmt.Errorf("disk cache: %w", err)
		}
	}
	return nil
}

// GetString is Get for text values.
func (m *Manager) GetString(key string) (string, bool) {
	data, ok := m.Get(key)
	if !ok {
		return "", false
	}
	return string(data), true
}

// PutString is Put for text values.
func (m *Manager) PutString(key, value string) error {
	return m.Put(key, []byte(value))
}

// Stats returns a snapshot of the lookup counters.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Close persists the disk index.
func (m *Manager) Close() error {
	if m.l2 == nil {
		return nil
	}
	if err := m.l2.Close(); err != nil {
		return fmt.Errorf("failed to close disk cache: %w", err)
	}
	return nil
}

func (m *Manager) count(level Level, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !hit {
		m.stats.Misses++
		return
	}
	m.stats.Hits++
	switch level {
	case LevelMemory:
		m.stats.MemoryHits++
	case LevelDisk:
		m.stats.DiskHits++
		m.stats.Promotions++
	}
}

// Key derives a cache key for phonemizing text with a given backend.
// The namespace should identify the backend and its model so that
// switching models never serves stale phonemes.
func Key(namespace, text string) string {
	sum := sha256.Sum256([]byte(namespace + "\x00" + text))
	return hex.EncodeToString(sum[:16])
}
