package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/metrics"
)

// GenerateFunc produces the payload for a cache miss.
type GenerateFunc func(ctx context.Context) ([]ir.TestCase, error)

// Cache coalesces concurrent generations per key over a Tiered store.
type Cache struct {
	tiers   *Tiered
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Recorder

	group       singleflight.Group
	generations atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithRemote adds a shared remote tier behind the local one.
func WithRemote(t Tier) Option {
	return func(c *Cache) {
		c.tiers.remote = t
	}
}

// WithTTL sets the TTL stamped on new records. Zero means no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock sets the time source used for CreatedAt and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
		c.tiers.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = l
		c.tiers.logger = l
	}
}

// WithMetrics records lookups and generations.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a Cache over a local tier.
func New(local Tier, opts ...Option) *Cache {
	c := &Cache{
		tiers:  NewTiered(local, nil, time.Now, zap.NewNop()),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tiers.OnDegraded(func(error) { c.metrics.RemoteDegraded() })
	return c
}

// Tiers returns the composed tiers.
func (c *Cache) Tiers() *Tiered {
	return c.tiers
}

// Generations returns how many times a generator has run.
func (c *Cache) Generations() int64 {
	return c.generations.Load()
}

type lookup struct {
	rec    ir.CacheRecord
	source Source
}

// GetOrGenerate returns the record for key, running gen on a miss.
//
// At most one gen runs per key at a time: concurrent callers for the same key
// wait for the running call and share its result (Source coalesced). A failed
// generation is not cached; the next caller retries. Waiters return early
// with ctx.Err() when their own context ends.
func (c *Cache) GetOrGenerate(ctx context.Context, key ir.CacheKey, gen GenerateFunc) (ir.CacheRecord, Source, error) {
	k := key.String()
	if rec, src, ok := c.tiers.Resolve(ctx, k); ok {
		c.metrics.CacheLookup(string(src))
		return rec, src, nil
	}

	leader := false
	ch := c.group.DoChan(k, func() (any, error) {
		leader = true
		// Another flight may have stored the key since our lookup.
		if rec, src, ok := c.tiers.Resolve(ctx, k); ok {
			return lookup{rec: rec, source: src}, nil
		}

		start := time.Now()
		payload, err := gen(ctx)
		c.metrics.Generation(err == nil, time.Since(start))
		if err != nil {
			return nil, err
		}
		c.generations.Add(1)

		rec := ir.CacheRecord{
			Key:           k,
			Fingerprint:   key.Fingerprint,
			PolicyVersion: key.PolicyVersion,
			Payload:       payload,
			CreatedAt:     c.now().UTC(),
			TTL:           c.ttl,
		}
		c.tiers.Store(ctx, rec)
		c.logger.Debug("generated", zap.String("key", k), zap.Int("test_cases", len(payload)))
		return lookup{rec: rec, source: SourceGenerated}, nil
	})

	select {
	case <-ctx.Done():
		return ir.CacheRecord{}, "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ir.CacheRecord{}, "", res.Err
		}
		l := res.Val.(lookup)
		if !leader && l.source == SourceGenerated {
			l.source = SourceCoalesced
		}
		c.metrics.CacheLookup(string(l.source))
		return cloneRecord(l.rec), l.source, nil
	}
}
