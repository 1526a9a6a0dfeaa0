package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/vyrodovalexey/omnigw/internal/observability"
)

const shardCount = 64

// Policy is an allowance of Requests per Window.
type Policy struct {
	Requests int
	Window   time.Duration
}

// Result describes the counter after a check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Status is a read-only view of a counter.
type Status struct {
	Count     int           `json:"count"`
	Remaining int           `json:"remaining"`
	ResetIn   time.Duration `json:"reset_in"`
}

// Stats summarises the counter table.
type Stats struct {
	Counters int `json:"counters"`
	Active   int `json:"active"`
	Limited  int `json:"limited"`
}

type counter struct {
	count       int
	windowStart time.Time
	window      time.Duration
	max         int
}

func (c *counter) lapsed(now time.Time) bool {
	return now.Sub(c.windowStart) > c.window
}

func (c *counter) resetIn(now time.Time) time.Duration {
	d := c.window - now.Sub(c.windowStart)
	if d < 0 {
		return 0
	}
	return d
}

type shard struct {
	mu       sync.RWMutex
	counters map[string]*counter
}

// Limiter is a table of fixed-window counters keyed by identifier.
type Limiter struct {
	shards [shardCount]*shard
	now    func() time.Time
	logger observability.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithLogger sets the limiter logger.
func WithLogger(logger observability.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates an empty limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		now:    time.Now,
		logger: observability.NopLogger(),
	}
	for i := range l.shards {
		l.shards[i] = &shard{counters: make(map[string]*counter)}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) shardFor(identifier string) *shard {
	return l.shards[xxhash.Sum64String(identifier)%shardCount]
}

// CheckAndConsume counts one request against identifier under policy.
// It returns an *ExceededError, which matches ErrRateLimitExceeded, when
// the allowance for the current window is used up.
func (l *Limiter) CheckAndConsume(identifier string, policy Policy) (*Result, error) {
	now := l.now()
	s := l.shardFor(identifier)

	s.mu.Lock()
	c, ok := s.counters[identifier]
	if !ok {
		c = &counter{windowStart: now}
		s.counters[identifier] = c
	}
	c.window = policy.Window
	c.max = policy.Requests
	if c.lapsed(now) {
		c.count = 0
		c.windowStart = now
	}

	allowed := c.count < c.max
	if allowed {
		c.count++
	}
	result := &Result{
		Allowed:    allowed,
		Limit:      c.max,
		Remaining:  max(c.max-c.count, 0),
		ResetAfter: c.resetIn(now),
	}
	s.mu.Unlock()

	if !allowed {
		return result, &ExceededError{
			Identifier: identifier,
			Limit:      policy.Requests,
			RetryAfter: result.ResetAfter,
		}
	}
	return result, nil
}

// Status reports the counter for identifier without consuming. It returns
// false when no counter exists or its window has lapsed.
func (l *Limiter) Status(identifier string) (Status, bool) {
	now := l.now()
	s := l.shardFor(identifier)

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.counters[identifier]
	if !ok || c.lapsed(now) {
		return Status{}, false
	}
	remaining := c.max - c.count
	if remaining < 0 {
		remaining = 0
	}
	return Status{Count: c.count, Remaining: remaining, ResetIn: c.resetIn(now)}, true
}

// Reset deletes the counter for identifier.
func (l *Limiter) Reset(identifier string) {
	s := l.shardFor(identifier)
	s.mu.Lock()
	delete(s.counters, identifier)
	s.mu.Unlock()
}

// CleanupExpired removes counters whose window has lapsed and returns how
// many were removed.
func (l *Limiter) CleanupExpired() int {
	now := l.now()
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for id, c := range s.counters {
			if c.lapsed(now) {
				delete(s.counters, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Stats counts tracked, live and exhausted counters.
func (l *Limiter) Stats() Stats {
	now := l.now()
	var st Stats
	for _, s := range l.shards {
		s.mu.RLock()
		for _, c := range s.counters {
			st.Counters++
			if c.lapsed(now) {
				continue
			}
			st.Active++
			if c.count >= c.max {
				st.Limited++
			}
		}
		s.mu.RUnlock()
	}
	return st
}

// Run calls CleanupExpired every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) error {
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
			if removed := l.CleanupExpired(); removed > 0 {
				l.logger.Debug("pruned lapsed rate limit counters", observability.Int("removed", removed))
			}
		}
	}
}
