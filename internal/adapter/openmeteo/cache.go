package openmeteo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/energitic/windfarm-etl/internal/dataset"
	"github.com/energitic/windfarm-etl/internal/observability"
)

// Fetcher retrieves hourly weather data for a coordinate.
type Fetcher interface {
	FetchHourly(ctx context.Context, lat, lon float64) (*dataset.Dataset, error)
}

// CachedClient wraps a Fetcher with an in-memory TTL cache so repeated runs
// within the TTL reuse the previous response instead of hitting the API.
type CachedClient struct {
	inner   Fetcher
	cache   *ttlCache
	metrics *observability.Metrics
}

// NewCachedClient creates a cache decorator around a fetcher.
func NewCachedClient(inner Fetcher, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedClient {
	return &CachedClient{
		inner:   inner,
		cache:   newTTLCache(maxEntries, ttl, clock),
		metrics: metrics,
	}
}

func (c *CachedClient) FetchHourly(ctx context.Context, lat, lon float64) (*dataset.Dataset, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if ds, ok := c.cache.get(key); ok {
		c.metrics.WeatherCache.WithLabelValues("hit").Inc()
		return ds, nil
	}
	c.metrics.WeatherCache.WithLabelValues("miss").Inc()
	ds, err := c.inner.FetchHourly(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, ds)
	return ds, nil
}

// ttlCache is a thread-safe map with per-entry expiry. Expired entries are
// evicted lazily on lookup; size overflow evicts the oldest entry. Stored
// datasets are cloned on both put and get so callers can mutate their copy.
type ttlCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]ttlEntry
}

type ttlEntry struct {
	value     *dataset.Dataset
	expiresAt time.Time
}

func newTTLCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *ttlCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ttlCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]ttlEntry),
	}
}

func (c *ttlCache) get(key string) (*dataset.Dataset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value.Clone(), true
}

func (c *ttlCache) put(key string, value *dataset.Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}

	c.entries[key] = ttlEntry{
		value:     value.Clone(),
		expiresAt: now.Add(c.ttl),
	}
}

// evictLocked drops expired entries, and when none have expired, the entry
// closest to expiry.
func (c *ttlCache) evictLocked(now time.Time) {
	var oldestKey string
	var oldestExpiry time.Time

	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = e.expiresAt
		}
	}

	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
