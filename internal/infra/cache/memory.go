// Package cache provides the series cache backends.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Memory is an in-process cache backed by ristretto. Every entry costs 1,
// so maxItems bounds the number of cached series.
type Memory struct {
	cache *ristretto.Cache
}

// NewMemory creates an in-process cache holding up to maxItems entries.
func NewMemory(maxItems int64) (*Memory, error) {
	if maxItems <= 0 {
		maxItems = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
		// cost counts entries, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &Memory{cache: c}, nil
}

// Get returns the value stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	return b, ok, nil
}

// Set stores value under key for ttl. The write is visible to Get once Set returns.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if !m.cache.SetWithTTL(key, value, 1, ttl) {
		return fmt.Errorf("memory cache rejected key %q", key)
	}
	m.cache.Wait()
	return nil
}

// Close stops the cache's background goroutines.
func (m *Memory) Close() error {
	m.cache.Close()
	return nil
}
