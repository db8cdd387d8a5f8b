// Package cache provides the settings cache tiers: an in-process sharded
// cache (L1) and Redis (L2) with pub/sub invalidation between nodes.
package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/poyrazK/keypanel/internal/infrastructure/metrics"
)

// shardCount determines the number of internal shards to reduce lock contention.
const shardCount = 32

type entry struct {
	data      []byte
	expiresAt time.Time
}

type shard struct {
	mu    sync.RWMutex
	items map[string]entry
}

// MemoryCache is a sharded, thread-safe, in-memory TTL cache.
type MemoryCache struct {
	shards [shardCount]*shard
	stop   chan struct{}
	once   sync.Once
}

// NewMemoryCache initializes the shards and starts the background cleanup loop.
// Call Close to stop it.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{stop: make(chan struct{})}
	for i := 0; i < shardCount; i++ {
		c.shards[i] = &shard{items: make(map[string]entry)}
	}
	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

func (c *MemoryCache) getShard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key)) // #nosec G104
	return c.shards[h.Sum32()%shardCount]
}

// Get returns (nil, false) if the key is missing or expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	s := c.getShard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, found := s.items[key]
	if !found || time.Now().After(item.expiresAt) {
		metrics.SettingsCache.WithLabelValues("l1", "miss").Inc()
		return nil, false
	}
	metrics.SettingsCache.WithLabelValues("l1", "hit").Inc()
	return item.data, true
}

// Set stores data under key for ttl.
func (c *MemoryCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) {
	s := c.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = entry{data: data, expiresAt: time.Now().Add(ttl)}
}

// Delete removes key. It never fails.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	s := c.getShard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Flush removes all items from all shards.
func (c *MemoryCache) Flush() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.items = make(map[string]entry)
		s.mu.Unlock()
	}
}

// Cleanup deletes items that have passed their expiration time.
func (c *MemoryCache) Cleanup() {
	now := time.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if now.After(v.expiresAt) {
				delete(s.items, k)
			}
		}
		s.mu.Unlock()
	}
}

// Close stops the cleanup loop.
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}
