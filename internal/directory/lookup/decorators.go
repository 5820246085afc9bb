package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"pollbank/internal/directory/metrics"
	"pollbank/internal/directory/models"
	"pollbank/pkg/platform/circuit"
	"pollbank/pkg/platform/sentinel"
)

// Source is anything that answers routing-code lookups.
type Source interface {
	Lookup(ctx context.Context, code string) (*models.LookupResult, error)
}

// Cached answers from cache when possible and collapses concurrent lookups
// of the same code into one upstream call. Failures are never cached.
type Cached struct {
	source      Source
	cache       Cache
	ttl         time.Duration
	negativeTTL time.Duration
	group       singleflight.Group
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type CachedOption func(*Cached)

func WithCacheLogger(logger *slog.Logger) CachedOption {
	return func(c *Cached) {
		c.logger = logger
	}
}

func WithCacheMetrics(m *metrics.Metrics) CachedOption {
	return func(c *Cached) {
		c.metrics = m
	}
}

func NewCached(source Source, cache Cache, ttl, negativeTTL time.Duration, opts ...CachedOption) *Cached {
	c := &Cached{source: source, cache: cache, ttl: ttl, negativeTTL: negativeTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) Lookup(ctx context.Context, code string) (*models.LookupResult, error) {
	res, err := c.cache.Get(ctx, code)
	switch {
	case err == nil:
		if c.metrics != nil {
			c.metrics.IncrementCacheHit()
		}
		return res, nil
	case !errors.Is(err, sentinel.ErrNotFound) && c.logger != nil:
		c.logger.WarnContext(ctx, "routing lookup cache read failed", "routing_code", code, "error", err)
	}
	if c.metrics != nil {
		c.metrics.IncrementCacheMiss()
	}

	v, err, _ := c.group.Do(code, func() (any, error) {
		res, err := c.source.Lookup(ctx, code)
		if err != nil {
			return nil, err
		}
		ttl := c.ttl
		if res == nil {
			ttl = c.negativeTTL
		}
		if ttl > 0 {
			if err := c.cache.Set(ctx, code, res, ttl); err != nil && c.logger != nil {
				c.logger.WarnContext(ctx, "routing lookup cache write failed", "routing_code", code, "error", err)
			}
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	res, _ = v.(*models.LookupResult)
	return res, nil
}

// Breaking short-circuits to sentinel.ErrUnavailable while the breaker is
// open so a dead directory service does not stall every save.
type Breaking struct {
	source  Source
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewBreaking(source Source, breaker *circuit.Breaker, logger *slog.Logger, m *metrics.Metrics) *Breaking {
	return &Breaking{source: source, breaker: breaker, logger: logger, metrics: m}
}

func (b *Breaking) Lookup(ctx context.Context, code string) (*models.LookupResult, error) {
	if !b.breaker.Allow() {
		if b.metrics != nil {
			b.metrics.IncrementLookupOutcome("short_circuit")
		}
		return nil, fmt.Errorf("routing lookup %s: %w", b.breaker.Name(), sentinel.ErrUnavailable)
	}

	res, err := b.source.Lookup(ctx, code)
	if err != nil {
		if _, change := b.breaker.RecordFailure(); change.Opened {
			b.stateChanged(ctx, true)
		}
		return nil, err
	}
	if _, change := b.breaker.RecordSuccess(); change.Closed {
		b.stateChanged(ctx, false)
	}
	return res, nil
}

func (b *Breaking) stateChanged(ctx context.Context, open bool) {
	if b.metrics != nil {
		b.metrics.SetBreakerOpen(open)
	}
	if b.logger != nil {
		b.logger.WarnContext(ctx, "routing lookup circuit breaker state changed",
			"breaker", b.breaker.Name(),
			"open", open,
		)
	}
}
