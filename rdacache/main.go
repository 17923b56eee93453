// Package rdacache adds a time-boxed read cache in front of a
// repository. Entries are JSON, keyed per collection, and expire after
// the repository's configured cache time.
package rdacache

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lemmego/rda"
)

// =====================================
// Cache Interface
// =====================================

// Cache is the byte-level store behind the cached repository. A miss
// is (nil, false, nil); errors are reserved for transport trouble.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Flush(ctx context.Context, pattern string) error
}

// =====================================
// Redis Cache
// =====================================

// RedisOptions configures the Redis-backed cache
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisCache implements Cache on a Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects a Redis client and verifies it with a ping
func NewRedisCache(options RedisOptions) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         options.Addr,
		Password:     options.Password,
		DB:           options.DB,
		PoolSize:     options.PoolSize,
		MinIdleConns: options.MinIdleConns,
		DialTimeout:  options.DialTimeout,
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, rda.NewDatabaseError("connecting to redis failed", err)
	}
	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an already-connected client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get fetches a cached entry, reporting a miss without an error
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores an entry. Redis enforces the TTL server-side; zero keeps
// the entry until invalidated.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes the given keys
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Flush removes every key matching the pattern using a SCAN walk, so
// large keyspaces are not blocked the way KEYS would.
func (c *RedisCache) Flush(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close releases the underlying client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// =====================================
// Memory Cache
// =====================================

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache implements Cache in process memory. Expiry is checked
// lazily on read against the injected clock.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   rda.Clock
}

// MemoryOption configures a MemoryCache
type MemoryOption func(*MemoryCache)

// WithMemoryClock overrides the wall clock, for tests
func WithMemoryClock(clock rda.Clock) MemoryOption {
	return func(c *MemoryCache) {
		c.clock = clock
	}
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cache := &MemoryCache{
		entries: make(map[string]memoryEntry),
		clock:   rda.SystemClock(),
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// Get fetches a cached entry, dropping it when it has expired
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.clock.Now().Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores an entry. TTL zero keeps it until invalidated.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.clock.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// Delete removes the given keys
func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil
}

// Flush removes every key matching the glob pattern
func (c *MemoryCache) Flush(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return err
		}
		if matched {
			delete(c.entries, key)
		}
	}
	return nil
}

// Len reports the number of live entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// =====================================
// Key Scheme
// =====================================

// idKey names the cache entry for a single record
func idKey(collection, id string) string {
	return collection + ":id:" + id
}

// listKey names the cache entry for a windowed list. The filter is
// normalized the same way the repository normalizes it, so equivalent
// filters share one entry.
func listKey(collection string, filter rda.Filter) string {
	page := filter.Page
	if page < 1 {
		page = rda.DefaultPage
	}
	limit := filter.Limit
	if limit < 1 {
		limit = rda.DefaultLimit
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = rda.DefaultIDColumn
	}
	sortOrder := rda.SortDesc
	if strings.EqualFold(filter.SortOrder, rda.SortAsc) {
		sortOrder = rda.SortAsc
	}
	return fmt.Sprintf("%s:list:p%d:l%d:%s:%s", collection, page, limit, sortBy, sortOrder)
}

// listPattern matches every list entry for a collection
func listPattern(collection string) string {
	return collection + ":list:*"
}
