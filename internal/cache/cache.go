package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTTL is applied when an entry is stored without an explicit TTL.
const DefaultTTL = 10 * time.Minute

// DefaultSweepInterval is the recommended interval for the background sweep.
const DefaultSweepInterval = 5 * time.Minute

type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
}

// Stats is a point-in-time snapshot of cache occupancy. Taking a snapshot has
// no side effects: expired entries remain until a read or Cleanup evicts them.
type Stats struct {
	Total   int
	Valid   int
	Expired int
}

// Cache is an in-memory response memoization store with per-entry expiry.
// Expired entries are evicted lazily on read, and in bulk by Cleanup. A single
// Cache instance is shared by all domain accessors; keys are constructed with
// the helpers in keys.go so distinct logical resources can never collide.
//
// A stored nil value is indistinguishable from a miss. Callers must not cache
// a semantically meaningful nil.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithDefaultTTL overrides the TTL used by Set.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.defaultTTL = ttl
	}
}

// WithClock overrides the time source. Used by tests to pin expiry boundaries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]entry),
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the live value for key, or (nil, false) when the key is absent
// or expired. An expired entry is removed as a side effect of the read.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}

	// a stored nil reads as a miss; the entry ages out like any other
	if e.value == nil {
		return nil, false
	}

	return e.value, true
}

// Set stores value under key with the default TTL, overwriting any previous
// entry.
func (c *Cache) Set(key string, value any) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key, expiring ttl from now. A non-positive ttl
// falls back to the default.
func (c *Cache) SetTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	createdAt := c.now()
	c.entries[key] = entry{
		value:     value,
		createdAt: createdAt,
		expiresAt: createdAt.Add(ttl),
	}
}

// Has reports whether a live value exists for key. Equivalent to Get with the
// value discarded, including the lazy eviction side effect.
func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key regardless of expiry. Used by mutating accessors to
// invalidate reads made stale by a write.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear removes every entry. Called on logout so no authenticated data
// survives the credentials.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
}

// Cleanup evicts all expired entries and returns the number removed. It bounds
// growth from keys that are never read again; reads alone only evict the keys
// they touch.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}

	return evicted
}

// Stats returns a snapshot of entry counts without evicting anything.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := Stats{Total: len(c.entries)}
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			s.Valid++
		} else {
			s.Expired++
		}
	}

	return s
}

// Sweep runs Cleanup every interval until ctx is cancelled. Intended to be
// started once by a long-running host; one-shot callers can skip it as reads
// evict lazily.
func (c *Cache) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	for {
		select {
		case <-time.After(interval):
			if evicted := c.Cleanup(); evicted > 0 {
				log.Debug().Int("evicted", evicted).Msg("cache sweep complete")
			}
		case <-ctx.Done():
			log.Debug().Msg("cache sweep shutting down")
			return
		}
	}
}
