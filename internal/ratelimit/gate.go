package ratelimit

import (
	"errors"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/omnigw/internal/config"
	"github.com/vyrodovalexey/omnigw/internal/observability"
)

// Rejection scopes.
const (
	ScopeEndpoint = "endpoint"
	ScopeSource   = "source"
)

// PolicyTable selects the policy for a request.
type PolicyTable struct {
	Default   Policy
	PerSource Policy
	Endpoints map[string]Policy
}

// DefaultPolicyTable returns the built-in policies.
func DefaultPolicyTable() PolicyTable {
	return PolicyTableFromConfig(config.DefaultConfig().RateLimit)
}

// PolicyTableFromConfig converts the rate limit configuration section.
func PolicyTableFromConfig(cfg config.RateLimitConfig) PolicyTable {
	t := PolicyTable{
		Default:   fromConfig(cfg.Default),
		PerSource: fromConfig(cfg.PerSource),
		Endpoints: make(map[string]Policy, len(cfg.Endpoints)),
	}
	for endpoint, p := range cfg.Endpoints {
		t.Endpoints[normalizeEndpoint(endpoint)] = fromConfig(p)
	}
	return t
}

func fromConfig(p config.RatePolicy) Policy {
	return Policy{Requests: p.Requests, Window: p.Window.Duration()}
}

func normalizeEndpoint(endpoint string) string {
	if len(endpoint) > 1 {
		endpoint = strings.TrimRight(endpoint, "/")
	}
	return endpoint
}

// ForEndpoint returns the override for endpoint or the default policy.
func (t PolicyTable) ForEndpoint(endpoint string) Policy {
	if p, ok := t.Endpoints[normalizeEndpoint(endpoint)]; ok {
		return p
	}
	return t.Default
}

// Gate applies the endpoint and per-source policies to each request.
type Gate struct {
	limiter *Limiter
	table   atomic.Pointer[PolicyTable]
	metrics *observability.Metrics
	logger  observability.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateMetrics records rejections by scope.
func WithGateMetrics(metrics *observability.Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = metrics
	}
}

// WithGateLogger sets the gate logger.
func WithGateLogger(logger observability.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a gate over limiter.
func NewGate(limiter *Limiter, table PolicyTable, opts ...GateOption) *Gate {
	g := &Gate{
		limiter: limiter,
		logger:  observability.NopLogger(),
	}
	g.SetTable(table)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetTable replaces the policy table. Existing counters adopt the new
// policy on their next check.
func (g *Gate) SetTable(t PolicyTable) {
	t.Endpoints = maps.Clone(t.Endpoints)
	g.table.Store(&t)
}

// Table returns the policy table in force.
func (g *Gate) Table() PolicyTable {
	return *g.table.Load()
}

// Limiter returns the underlying counter table.
func (g *Gate) Limiter() *Limiter {
	return g.limiter
}

// EndpointIdentifier is the counter key for subject calling endpoint.
func EndpointIdentifier(endpoint, subject string) string {
	return "endpoint:" + normalizeEndpoint(endpoint) + ":" + subject
}

// SourceIdentifier is the counter key for a source address.
func SourceIdentifier(addr string) string {
	return "source:" + addr
}

// Check consumes one request from the source counter and then from the
// endpoint counter. Both must allow the request; the endpoint counter is
// not touched when the source is already over its allowance.
func (g *Gate) Check(endpoint, subject, sourceAddr string) (*Result, error) {
	table := g.Table()

	if sourceAddr != "" && table.PerSource.Requests > 0 {
		if res, err := g.limiter.CheckAndConsume(SourceIdentifier(sourceAddr), table.PerSource); err != nil {
			return res, g.reject(ScopeSource, err)
		}
	}

	res, err := g.limiter.CheckAndConsume(EndpointIdentifier(endpoint, subject), table.ForEndpoint(endpoint))
	if err != nil {
		return res, g.reject(ScopeEndpoint, err)
	}
	return res, nil
}

func (g *Gate) reject(scope string, err error) error {
	var exceeded *ExceededError
	if errors.As(err, &exceeded) {
		exceeded.Scope = scope
		g.logger.Debug("rate limit exceeded",
			observability.String("scope", scope),
			observability.String("identifier", exceeded.Identifier),
			observability.Int("limit", exceeded.Limit),
		)
	}
	g.metrics.RecordRateLimitRejection(scope)
	return err
}

// EndpointStatus reports the endpoint counter for subject. A missing
// counter reports a full allowance.
func (g *Gate) EndpointStatus(endpoint, subject string) Status {
	if st, ok := g.limiter.Status(EndpointIdentifier(endpoint, subject)); ok {
		return st
	}
	p := g.Table().ForEndpoint(endpoint)
	return Status{Remaining: p.Requests, ResetIn: p.Window}
}

// Reset clears the endpoint counter for subject.
func (g *Gate) Reset(endpoint, subject string) {
	g.limiter.Reset(EndpointIdentifier(endpoint, subject))
}

// ResetSource clears the per-source counter.
func (g *Gate) ResetSource(addr string) {
	g.limiter.Reset(SourceIdentifier(addr))
}

// RetryAfter extracts the wait hint from a rejection.
func RetryAfter(err error) time.Duration {
	var exceeded *ExceededError
	if errors.As(err, &exceeded) {
		return exceeded.RetryAfter
	}
	return 0
}
