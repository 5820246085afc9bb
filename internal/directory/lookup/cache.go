package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pollbank/internal/directory/models"
	"pollbank/pkg/platform/sentinel"
)

// Cache stores lookup answers. A nil result is a cached "not found".
// Get returns sentinel.ErrNotFound on a miss.
type Cache interface {
	Get(ctx context.Context, code string) (*models.LookupResult, error)
	Set(ctx context.Context, code string, result *models.LookupResult, ttl time.Duration) error
}

// cachedEntry is the serialized form. Found distinguishes a negative entry
// from a decoding accident.
type cachedEntry struct {
	Found  bool                 `json:"found"`
	Result *models.LookupResult `json:"result,omitempty"`
}

const redisKeyPrefix = "pollbank:routing:"

// RedisCache keeps lookup answers in Redis so they survive restarts and are
// shared between replicas.
type RedisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, code string) (*models.LookupResult, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("redis get routing code: %w", err)
	}
	var entry cachedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cached routing code: %w", err)
	}
	if !entry.Found {
		return nil, nil
	}
	return entry.Result, nil
}

func (c *RedisCache) Set(ctx context.Context, code string, result *models.LookupResult, ttl time.Duration) error {
	raw, err := json.Marshal(cachedEntry{Found: result != nil, Result: result})
	if err != nil {
		return fmt.Errorf("encode routing code: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+code, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set routing code: %w", err)
	}
	return nil
}

// DefaultMemoryCacheEntries bounds the process-local cache.
const DefaultMemoryCacheEntries = 10000

// MemoryCache is a process-local TTL cache used when Redis is not configured.
// Expired entries are dropped when read, and a full cache makes room by
// dropping expired entries first and then the one closest to expiry.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	result    *models.LookupResult
	expiresAt time.Time
}

// NewMemoryCache holds at most maxEntries answers. Non-positive values use
// DefaultMemoryCacheEntries.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryCacheEntries
	}
	return &MemoryCache{entries: make(map[string]memoryEntry), maxEntries: maxEntries, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, code string) (*models.LookupResult, error) {
	c.mu.Lock()
	e, ok := c.entries[code]
	if ok && !c.now().Before(e.expiresAt) {
		delete(c.entries, code)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if e.result == nil {
		return nil, nil
	}
	r := *e.result
	return &r, nil
}

func (c *MemoryCache) Set(_ context.Context, code string, result *models.LookupResult, ttl time.Duration) error {
	var stored *models.LookupResult
	if result != nil {
		r := *result
		stored = &r
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, ok := c.entries[code]; !ok && len(c.entries) >= c.maxEntries {
		if c.removeExpired(now) == 0 {
			c.evictSoonest()
		}
	}
	c.entries[code] = memoryEntry{result: stored, expiresAt: now.Add(ttl)}
	return nil
}

// Len returns the number of cached answers, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartCleanup removes expired entries every interval until ctx is cancelled.
func (c *MemoryCache) StartCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.RemoveExpiredAt(c.now())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RemoveExpiredAt drops entries expired at now and returns how many went.
func (c *MemoryCache) RemoveExpiredAt(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeExpired(now)
}

func (c *MemoryCache) removeExpired(now time.Time) int {
	removed := 0
	for code, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, code)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) evictSoonest() {
	var victim string
	var soonest time.Time
	for code, e := range c.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim, soonest = code, e.expiresAt
		}
	}
	delete(c.entries, victim)
}
