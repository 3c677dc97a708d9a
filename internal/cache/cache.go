// Package cache memoizes evaluation results by code fingerprint.
//
// Entries are bounded by count (least recently used goes first) and by age.
// Age is checked lazily when an entry is read; nothing runs in the background.
// A nil *Cache is a valid, always-empty cache.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/SamoraDC/Tetrad/internal/models"
)

// Defaults used when the configuration does not say otherwise.
const (
	DefaultCapacity = 100
	DefaultTTL      = 5 * time.Minute
)

type entry struct {
	result     *models.EvaluationResult
	insertedAt time.Time
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Expired   uint64  `json:"expired"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is an LRU of EvaluationResults with a per-entry TTL.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, entry]
	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits, misses, evictions, expired uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache holding at most capacity entries, each valid for ttl.
// A ttl of zero disables expiry.
func New(capacity int, ttl time.Duration, opts ...Option) (*Cache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("cache capacity must be at least 1, got %d", capacity)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("cache ttl must not be negative, got %s", ttl)
	}

	lru, err := simplelru.NewLRU[string, entry](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	c := &Cache{lru: lru, capacity: capacity, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns a copy of the cached result for key. Reading refreshes the
// entry's recency but not its age. An expired entry is removed and reported
// as a miss.
func (c *Cache) Get(key string) (*models.EvaluationResult, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if c.expiredAt(e, c.now()) {
		c.lru.Remove(key)
		c.expired++
		c.misses++
		return nil, false
	}
	c.hits++
	return e.result.Clone(), true
}

// Put stores a copy of result under key, evicting the least recently used
// entry when full.
func (c *Cache) Put(key string, result *models.EvaluationResult) {
	if c == nil || result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru.Add(key, entry{result: result.Clone(), insertedAt: c.now()}) {
		c.evictions++
	}
}

// Invalidate drops key. It reports whether an entry was present.
func (c *Cache) Invalidate(key string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Clear drops every entry. Counters are kept.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len is the number of stored entries, including ones that have expired but
// not yet been read.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns current usage counters.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      c.lru.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache) expiredAt(e entry, now time.Time) bool {
	return c.ttl > 0 && !now.Before(e.insertedAt.Add(c.ttl))
}
