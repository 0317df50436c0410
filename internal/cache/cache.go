// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// DefaultCleanupInterval is how often Serve sweeps expired entries.
const DefaultCleanupInterval = 5 * time.Minute

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// inflight tracks one in-progress load.
type inflight[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Stats tracks cache performance.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Loads       int64
	TotalKeys   int64
	LastCleanup time.Time
}

// TTL is a thread-safe map with per-entry expiration.
type TTL[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]entry[V]
	loading  map[K]*inflight[V]
	ttl      time.Duration
	stats    Stats
	interval time.Duration
	now      func() time.Time
}

// NewTTL creates a cache whose entries expire after ttl by default.
func NewTTL[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		entries:  make(map[K]entry[V]),
		loading:  make(map[K]*inflight[V]),
		ttl:      ttl,
		interval: DefaultCleanupInterval,
		now:      time.Now,
	}
}

// Get returns the cached value for key if present and not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *TTL[K, V]) getLocked(key K) (V, bool) {
	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		c.stats.Evictions++
		return zero, false
	}
	c.stats.Hits++
	return e.value, true
}

// Set stores value with the default TTL.
func (c *TTL[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value with a custom TTL. A non-positive ttl is a no-op.
func (c *TTL[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
	c.stats.TotalKeys = int64(len(c.entries))
	c.mu.Unlock()
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.stats.Evictions++
		c.stats.TotalKeys = int64(len(c.entries))
	}
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	c.stats.Evictions += int64(len(c.entries))
	c.entries = make(map[K]entry[V])
	c.stats.TotalKeys = 0
	c.mu.Unlock()
}

// Len returns the number of stored entries, including not yet swept expired ones.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrLoad returns the cached value for key, or calls load once and caches
// its result for the TTL it returns (the default TTL when that is zero).
// Concurrent callers for the same key share a single load. Errors are not cached.
func (c *TTL[K, V]) GetOrLoad(ctx context.Context, key K, load func(context.Context) (V, time.Duration, error)) (V, error) {
	c.mu.Lock()
	if v, ok := c.getLocked(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	if f, ok := c.loading[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.value, f.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
	f := &inflight[V]{done: make(chan struct{})}
	c.loading[key] = f
	c.stats.Loads++
	c.mu.Unlock()

	v, ttl, err := load(ctx)
	if ttl == 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	delete(c.loading, key)
	if err == nil && ttl > 0 {
		c.entries[key] = entry[V]{value: v, expiresAt: c.now().Add(ttl)}
		c.stats.TotalKeys = int64(len(c.entries))
	}
	c.mu.Unlock()

	f.value, f.err = v, err
	close(f.done)
	return v, err
}

// GetStats returns a snapshot of the cache statistics.
func (c *TTL[K, V]) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// HitRate returns the hit percentage.
func (c *TTL[K, V]) HitRate() float64 {
	s := c.GetStats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Serve sweeps expired entries every cleanup interval until ctx is done.
func (c *TTL[K, V]) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// String identifies the cache in supervisor logs.
func (c *TTL[K, V]) String() string {
	return "ttl-cache"
}

func (c *TTL[K, V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			c.stats.Evictions++
		}
	}
	c.stats.TotalKeys = int64(len(c.entries))
	c.stats.LastCleanup = now
}

// GenerateKey derives a compact cache key from a prefix and parameters.
// Credential-bearing parameters never appear in the key in clear text.
func GenerateKey(prefix string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", prefix, params)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", prefix, hash[:16])
}
