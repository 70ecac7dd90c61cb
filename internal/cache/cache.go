// Package cache provides the process-local result cache used to memoize
// expensive graph queries. Entries are bounded by count, aggregate size, and
// TTL, with least-recently-accessed eviction.
package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"codegraph/internal/logging"
)

// maxSweepInterval caps the background expiry sweep period
const maxSweepInterval = time.Minute

// Options configure a Cache
type Options struct {
	MaxEntries   int
	MaxSizeBytes int64
	TTL          time.Duration
	Statistics   bool
}

// DefaultOptions returns the standard cache bounds
func DefaultOptions() Options {
	return Options{
		MaxEntries:   1000,
		MaxSizeBytes: 50 * 1024 * 1024,
		TTL:          5 * time.Minute,
		Statistics:   true,
	}
}

// Stats reports cache effectiveness counters
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
	SizeBytes int64  `json:"sizeBytes"`
}

type entry struct {
	value     []byte
	size      int64
	expiresAt time.Time
}

// Cache is a keyed result cache. All operations are in-memory and
// non-blocking; only the periodic expiry sweep runs on its own schedule.
type Cache struct {
	mu        sync.Mutex
	lru       *simplelru.LRU[string, *entry]
	opts      Options
	sizeBytes int64
	hits      uint64
	misses    uint64
	evictions uint64
	logger    *logging.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// New creates a cache and starts its background expiry sweep
func New(opts Options, logger *logging.Logger) (*Cache, error) {
	if opts.MaxEntries <= 0 {
		return nil, fmt.Errorf("cache max entries must be positive, got %d", opts.MaxEntries)
	}
	if opts.MaxSizeBytes <= 0 {
		return nil, fmt.Errorf("cache max size must be positive, got %d", opts.MaxSizeBytes)
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("cache TTL must be positive, got %v", opts.TTL)
	}

	c := &Cache{
		opts:   opts,
		logger: logger,
		stop:   make(chan struct{}),
	}

	lru, err := simplelru.NewLRU[string, *entry](opts.MaxEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU: %w", err)
	}
	c.lru = lru

	go c.sweepLoop()
	return c, nil
}

// onEvict runs under c.mu (all LRU mutations happen with the lock held).
// It only keeps the byte accounting honest; eviction counting happens at the
// capacity-eviction site so removals and expiry are not miscounted.
func (c *Cache) onEvict(key string, e *entry) {
	c.sizeBytes -= e.size
}

// Key derives a cache key from an operation name and its parameters. The
// parameter map is serialized with deterministically sorted keys, so
// logically identical calls collide regardless of parameter order.
func Key(operation string, params map[string]interface{}) string {
	data, err := json.Marshal(params) // encoding/json sorts map keys
	if err != nil {
		return operation
	}
	return operation + ":" + string(data)
}

// Get returns the cached value for key, treating expired entries as absent
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		if c.opts.Statistics {
			c.misses++
		}
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		// Lazy expiry counts as a miss, not an eviction
		c.lru.Remove(key)
		if c.opts.Statistics {
			c.misses++
		}
		return nil, false
	}

	if c.opts.Statistics {
		c.hits++
	}
	return e.value, true
}

// Set stores value under key. A value larger than a quarter of the aggregate
// size bound is never cached, so one huge result cannot dominate the cache.
func (c *Cache) Set(key string, value []byte) {
	size := int64(len(value))
	if size > c.opts.MaxSizeBytes/4 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Replace any existing entry first so its size is released
	c.lru.Remove(key)

	// Evict least-recently-accessed entries until the new entry fits or
	// utilization drops to half the entry bound, whichever comes first.
	for c.lru.Len() > 0 {
		fits := c.lru.Len()+1 <= c.opts.MaxEntries && c.sizeBytes+size <= c.opts.MaxSizeBytes
		if fits || c.lru.Len() <= c.opts.MaxEntries/2 {
			break
		}
		c.lru.RemoveOldest()
		if c.opts.Statistics {
			c.evictions++
		}
	}

	c.lru.Add(key, &entry{
		value:     value,
		size:      size,
		expiresAt: time.Now().Add(c.opts.TTL),
	})
	c.sizeBytes += size
}

// Invalidate removes the exact key
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// InvalidateByPattern removes every entry whose key contains pattern as a
// substring. Used to drop all cached traversals touching a symbol after its
// edges change. Returns the number of entries removed.
func (c *Cache) InvalidateByPattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		if strings.Contains(key, pattern) {
			if c.lru.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// Purge removes every entry
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
}

// Stats returns a snapshot of the cache counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   c.lru.Len(),
		SizeBytes: c.sizeBytes,
	}
}

// Close stops the background expiry sweep
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// sweepLoop periodically removes expired entries so write-and-never-read
// keys cannot accumulate until eviction pressure finds them.
func (c *Cache) sweepLoop() {
	interval := c.opts.TTL / 4
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *Cache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	swept := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if now.After(e.expiresAt) {
			c.lru.Remove(key)
			swept++
		}
	}

	if swept > 0 && c.logger != nil {
		c.logger.Debug("Swept expired cache entries", map[string]interface{}{
			"count": swept,
		})
	}
}
