package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/city-weather/internal/models"
)

// Cache defines the interface for weather record caching implementations.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.WeatherRecord, bool, error)
	Set(ctx context.Context, key string, value models.WeatherRecord, ttl time.Duration) error
}

// Key builds the cache key for a city lookup in a unit system. City names are
// case-folded so "london" and "London" share an entry.
func Key(city, units string) string {
	return strings.ToLower(strings.TrimSpace(units)) + ":" + strings.ToLower(strings.TrimSpace(city))
}

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     models.WeatherRecord
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Get retrieves the cached record for key if present and not expired.
// Returns (record, true, nil) on hit, (zero, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.WeatherRecord{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.WeatherRecord{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores a record with the specified TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherRecord, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
