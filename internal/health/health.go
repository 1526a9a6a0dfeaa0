package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/omnigw/internal/observability"
)

// ServiceName is reported by the health payload.
const ServiceName = "omnigw"

// DefaultReadinessTimeout bounds one readiness evaluation.
const DefaultReadinessTimeout = 5 * time.Second

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the service is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates a non-critical dependency is failing.
	StatusDegraded Status = "degraded"
)

// HealthResponse is the fixed liveness payload.
type HealthResponse struct {
	Status  Status `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// ReadinessResponse aggregates the registered checks.
type ReadinessResponse struct {
	Status    Status                  `json:"status"`
	Checks    map[string]*CheckResult `json:"checks,omitempty"`
	Uptime    string                  `json:"uptime"`
	Timestamp time.Time               `json:"timestamp"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
	Critical bool   `json:"critical"`
}

// Checker provides health and readiness checking functionality.
type Checker struct {
	version   string
	startTime time.Time
	timeout   time.Duration
	logger    observability.Logger

	mu     sync.RWMutex
	checks map[string]*DependencyCheck
}

// Option configures a Checker.
type Option func(*Checker)

// WithCheck registers check.
func WithCheck(check *DependencyCheck) Option {
	return func(c *Checker) {
		c.checks[check.Name()] = check
	}
}

// WithTimeout bounds one readiness evaluation.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger for failing checks.
func WithLogger(logger observability.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// NewChecker creates a new health checker.
func NewChecker(version string, opts ...Option) *Checker {
	c := &Checker{
		version:   version,
		startTime: time.Now(),
		timeout:   DefaultReadinessTimeout,
		logger:    observability.NopLogger(),
		checks:    make(map[string]*DependencyCheck),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces a check.
func (c *Checker) Register(check *DependencyCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[check.Name()] = check
}

// Unregister removes a check by name.
func (c *Checker) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Checks returns the registered check names, sorted.
func (c *Checker) Checks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health returns the fixed liveness payload.
func (c *Checker) Health() HealthResponse {
	return HealthResponse{
		Status:  StatusHealthy,
		Service: ServiceName,
		Version: c.version,
	}
}

// Readiness runs every check concurrently. A failing critical check makes
// the service unhealthy; a failing non-critical one only degrades it.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.RLock()
	checks := make([]*DependencyCheck, 0, len(c.checks))
	for _, check := range c.checks {
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	resp := ReadinessResponse{
		Status:    StatusHealthy,
		Checks:    make(map[string]*CheckResult, len(checks)),
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range checks {
		wg.Add(1)
		go func(check *DependencyCheck) {
			defer wg.Done()

			start := time.Now()
			err := check.Check(ctx)
			duration := time.Since(start)

			result := &CheckResult{
				Status:   StatusHealthy,
				Duration: duration.String(),
				Critical: check.IsCritical(),
			}
			if err != nil {
				result.Status = StatusUnhealthy
				result.Error = err.Error()
				c.logger.Warn("readiness check failed",
					observability.String("check", check.Name()),
					observability.Error(err),
					observability.Duration("duration", duration),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			resp.Checks[check.Name()] = result
			switch {
			case err == nil:
			case check.IsCritical():
				resp.Status = StatusUnhealthy
			case resp.Status == StatusHealthy:
				resp.Status = StatusDegraded
			}
		}(check)
	}
	wg.Wait()

	return resp
}

// HealthHandler serves the liveness payload.
func (c *Checker) HealthHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, c.Health())
	}
}

// ReadinessHandler serves the readiness result, 503 when unhealthy.
func (c *Checker) ReadinessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		resp := c.Readiness(ctx.Request.Context())
		status := http.StatusOK
		if resp.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		ctx.JSON(status, resp)
	}
}
