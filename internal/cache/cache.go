package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/omnigw/internal/kvstore"
	"github.com/vyrodovalexey/omnigw/internal/observability"
)

const tracerName = "github.com/vyrodovalexey/omnigw/internal/cache"

// ErrEncode is returned by Set when the value cannot be marshalled.
var ErrEncode = errors.New("cache: value is not JSON encodable")

// Stats is a snapshot of cache counters.
type Stats struct {
	FastEntries   int   `json:"fast_entries"`
	FastHits      int64 `json:"fast_hits"`
	DurableHits   int64 `json:"durable_hits"`
	Misses        int64 `json:"misses"`
	DurableErrors int64 `json:"durable_errors"`
}

// HitRate returns the share of lookups answered by either tier.
func (s Stats) HitRate() float64 {
	total := s.FastHits + s.DurableHits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.FastHits+s.DurableHits) / float64(total)
}

// Tiered is a fast in-process tier in front of an optional durable store.
type Tiered struct {
	fast    *fastTier
	durable kvstore.Store
	policy  atomic.Pointer[Policy]
	logger  observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	fastHits      atomic.Int64
	durableHits   atomic.Int64
	misses        atomic.Int64
	durableErrors atomic.Int64
}

// Option configures a Tiered cache.
type Option func(*Tiered)

// WithLogger sets the cache logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Tiered) {
		c.logger = logger
	}
}

// WithMetrics records tier hits and misses.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Tiered) {
		c.metrics = metrics
	}
}

// WithMaxEntries caps the fast tier. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Tiered) {
		c.fast.maxEntries = n
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Tiered) {
		c.now = now
	}
}

// New creates a tiered cache. durable may be nil, in which case only the
// fast tier is used.
func New(durable kvstore.Store, policy Policy, opts ...Option) *Tiered {
	c := &Tiered{
		fast:    newFastTier(0),
		durable: durable,
		logger:  observability.NopLogger(),
		now:     time.Now,
	}
	c.SetPolicy(policy)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the TTL policy currently in force.
func (c *Tiered) Policy() Policy {
	return *c.policy.Load()
}

// SetPolicy replaces the TTL policy. Zero fields take the defaults.
func (c *Tiered) SetPolicy(p Policy) {
	p = p.withDefaults()
	c.policy.Store(&p)
}

// Get returns the cached JSON for key, or false if neither tier holds a live
// entry. A durable hit is copied into the fast tier with the default TTL.
func (c *Tiered) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	if value, ok := c.fast.get(key, c.now()); ok {
		c.fastHits.Add(1)
		c.metrics.RecordCacheOperation("fast", "hit")
		return value, true
	}
	c.metrics.RecordCacheOperation("fast", "miss")

	if c.durable == nil {
		c.misses.Add(1)
		return nil, false
	}

	value, ok := c.getDurable(ctx, key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.durableHits.Add(1)
	c.fast.set(key, value, c.Policy().Default, c.now())
	return value, true
}

func (c *Tiered) getDurable(ctx context.Context, key string) ([]byte, bool) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.durable.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	value, err := c.durable.Get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, kvstore.ErrNotFound):
		span.SetAttributes(attribute.Bool("cache.hit", false))
		c.metrics.RecordCacheOperation("durable", "miss")
		return nil, false
	default:
		c.durableErrors.Add(1)
		c.metrics.RecordCacheOperation("durable", "error")
		c.logger.WithContext(ctx).Warn("durable cache read failed",
			observability.String("key", key),
			observability.Error(err),
		)
		return nil, false
	}

	if !sonic.Valid(value) {
		c.durableErrors.Add(1)
		c.metrics.RecordCacheOperation("durable", "error")
		c.logger.WithContext(ctx).Warn("discarding undecodable durable cache entry",
			observability.String("key", key),
		)
		return nil, false
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	c.metrics.RecordCacheOperation("durable", "hit")
	return value, true
}

// GetInto decodes the cached value for key into dst.
func (c *Tiered) GetInto(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false, nil
	}
	if err := sonic.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %q: %w", key, err)
	}
	return true, nil
}

// Set stores value under key in both tiers. A non-positive ttl uses the
// default TTL. Only an encoding failure is returned.
func (c *Tiered) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrEncode, key, err)
	}

	if ttl <= 0 {
		ttl = c.Policy().Default
	}

	c.fast.set(key, data, ttl, c.now())

	if c.durable != nil {
		if err := c.durable.SetWithExpiry(ctx, key, data, ttl); err != nil {
			c.durableErrors.Add(1)
			c.logger.WithContext(ctx).Warn("durable cache write failed",
				observability.String("key", key),
				observability.Error(err),
			)
		}
	}
	return nil
}

func encode(value any) ([]byte, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !sonic.Valid(raw) {
			return nil, errors.New("invalid raw JSON")
		}
		return raw, nil
	}
	return sonic.Marshal(value)
}

// Delete removes key from both tiers.
func (c *Tiered) Delete(ctx context.Context, key string) {
	c.fast.delete(key)

	if c.durable != nil {
		if err := c.durable.Delete(ctx, key); err != nil {
			c.durableErrors.Add(1)
			c.logger.WithContext(ctx).Warn("durable cache delete failed",
				observability.String("key", key),
				observability.Error(err),
			)
		}
	}
}

// ClearExpired drops lapsed fast-tier entries in a single pass and returns
// how many were removed. The durable tier expires entries on its own.
func (c *Tiered) ClearExpired() int {
	return c.fast.clearExpired(c.now())
}

// Stats returns a snapshot of the cache counters.
func (c *Tiered) Stats() Stats {
	return Stats{
		FastEntries:   c.fast.len(),
		FastHits:      c.fastHits.Load(),
		DurableHits:   c.durableHits.Load(),
		Misses:        c.misses.Load(),
		DurableErrors: c.durableErrors.Load(),
	}
}

// Run calls ClearExpired every interval until ctx is done.
func (c *Tiered) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := c.ClearExpired(); removed > 0 {
				c.logger.Debug("cleared expired cache entries", observability.Int("removed", removed))
			}
		}
	}
}
