package lockout

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type entry struct {
	failures    int
	windowEnds  time.Time
	lockedUntil time.Time
}

// expired reports whether both the counting window and the lock are over.
func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.windowEnds) && !now.Before(e.lockedUntil)
}

// MemoryStore is a process-local Store. Expired entries are dropped when
// read and by StartCleanup.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry), now: time.Now}
}

func (m *MemoryStore) RecordFailure(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	if !now.Before(e.windowEnds) {
		e.failures = 0
		e.windowEnds = now.Add(window)
	}
	e.failures++
	return e.failures, nil
}

func (m *MemoryStore) Lock(_ context.Context, key string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.lockedUntil = until
	return nil
}

func (m *MemoryStore) LockedUntil(_ context.Context, key string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return time.Time{}, nil
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return time.Time{}, nil
	}
	return e.lockedUntil, nil
}

func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len returns the number of tracked keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// StartCleanup removes expired entries every interval until ctx is cancelled.
func (m *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.RemoveExpiredAt(m.now())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RemoveExpiredAt drops every entry whose window and lock are over at now and
// returns how many were removed.
func (m *MemoryStore) RemoveExpiredAt(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

const redisPrefix = "pollbank:lockout:"

// RedisStore shares counters and locks between instances. Counters use
// INCR with an expiry set on the first failure of a window.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	k := redisPrefix + "fail:" + key
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return 0, err
		}
	}
	return int(count), nil
}

func (r *RedisStore) Lock(ctx context.Context, key string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, redisPrefix+"lock:"+key, strconv.FormatInt(until.Unix(), 10), ttl).Err()
}

func (r *RedisStore) LockedUntil(ctx context.Context, key string) (time.Time, error) {
	raw, err := r.client.Get(ctx, redisPrefix+"lock:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(unix, 0), nil
}

func (r *RedisStore) Clear(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisPrefix+"fail:"+key, redisPrefix+"lock:"+key).Err()
}
