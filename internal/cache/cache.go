// Package cache stores weather snapshots keyed by location and date.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/activity-advisor-service/internal/models"
	"github.com/kjstillabower/activity-advisor-service/internal/observability"
)

// Cache defines the interface for snapshot caching implementations.
// Get returns only unexpired entries. GetStale also returns expired entries stored
// no more than maxAge ago, for serving when upstream is down.
type Cache interface {
	Get(ctx context.Context, key string) (models.WeatherSnapshot, bool, error)
	GetStale(ctx context.Context, key string, maxAge time.Duration) (Entry, bool, error)
	Set(ctx context.Context, key string, value models.WeatherSnapshot, ttl time.Duration) error
}

// Entry is a cached snapshot with its bookkeeping times. It is also the memcached wire format.
type Entry struct {
	Value     models.WeatherSnapshot `json:"value"`
	StoredAt  time.Time              `json:"stored_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// Age returns how long ago the entry was stored.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

func (e Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

const (
	// DefaultMaxEntries caps the map; keys are client-chosen coordinates and dates.
	DefaultMaxEntries = 10000
	// sweepInterval is the minimum time between full passes over the map on Set.
	sweepInterval = time.Minute
)

// InMemoryCache implements Cache using a mutex-guarded map. Expired entries are kept
// for staleRetention so GetStale can serve them. Entries past retention are dropped on
// access and by a periodic sweep from Set. At maxEntries, Set evicts the entry closest to expiry.
type InMemoryCache struct {
	mu             sync.Mutex
	data           map[string]Entry
	clock          clockwork.Clock
	staleRetention time.Duration
	maxEntries     int
	lastSweep      time.Time
}

// NewInMemoryCache creates an in-memory cache holding at most DefaultMaxEntries. A nil clock uses the real clock.
func NewInMemoryCache(clock clockwork.Clock, staleRetention time.Duration) *InMemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryCache{
		data:           make(map[string]Entry),
		clock:          clock,
		staleRetention: staleRetention,
		maxEntries:     DefaultMaxEntries,
		lastSweep:      clock.Now(),
	}
}

// WithMaxEntries sets the entry cap. n <= 0 keeps the current cap.
func (c *InMemoryCache) WithMaxEntries(n int) *InMemoryCache {
	if n > 0 {
		c.mu.Lock()
		c.maxEntries = n
		c.mu.Unlock()
	}
	return c
}

// Get returns (snapshot, true, nil) on a fresh hit and (zero, false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherSnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if !ok || entry.expired(c.clock.Now()) {
		return models.WeatherSnapshot{}, false, nil
	}
	return entry.Value, true, nil
}

// GetStale returns the entry for key if it was stored within maxAge, expired or not.
func (c *InMemoryCache) GetStale(ctx context.Context, key string, maxAge time.Duration) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if !ok || entry.Age(c.clock.Now()) > maxAge {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set stores value for ttl.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherSnapshot, ttl time.Duration) error {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.lastSweep) >= sweepInterval {
		c.sweep(now)
	}
	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxEntries {
		c.sweep(now)
		if len(c.data) >= c.maxEntries {
			c.evictSoonest()
		}
	}
	c.data[key] = Entry{Value: value, StoredAt: now, ExpiresAt: now.Add(ttl)}
	return nil
}

// Len returns the number of retained entries, stale ones included.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// lookup returns the entry for key, dropping it once it is past stale retention. Caller holds mu.
func (c *InMemoryCache) lookup(key string) (Entry, bool) {
	entry, ok := c.data[key]
	if !ok {
		return Entry{}, false
	}
	if c.clock.Now().After(entry.ExpiresAt.Add(c.staleRetention)) {
		delete(c.data, key)
		return Entry{}, false
	}
	return entry, true
}

// sweep drops every entry past stale retention. Caller holds mu.
func (c *InMemoryCache) sweep(now time.Time) {
	c.lastSweep = now
	for key, entry := range c.data {
		if now.After(entry.ExpiresAt.Add(c.staleRetention)) {
			delete(c.data, key)
		}
	}
	observability.CacheEntries.Set(float64(len(c.data)))
}

// evictSoonest removes the entry with the earliest expiry. Caller holds mu.
func (c *InMemoryCache) evictSoonest() {
	var (
		victim string
		oldest time.Time
		found  bool
	)
	for key, entry := range c.data {
		if !found || entry.ExpiresAt.Before(oldest) {
			victim, oldest, found = key, entry.ExpiresAt, true
		}
	}
	if found {
		delete(c.data, victim)
		observability.CacheEvictionsTotal.Inc()
	}
}
