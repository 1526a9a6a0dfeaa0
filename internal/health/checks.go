package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vyrodovalexey/omnigw/internal/kvstore"
)

// DependencyType represents the type of dependency.
type DependencyType string

const (
	// DependencyTypeStore is the durable key-value store.
	DependencyTypeStore DependencyType = "store"
	// DependencyTypeHTTP is an HTTP service dependency.
	DependencyTypeHTTP DependencyType = "http"
	// DependencyTypeCustom is a custom dependency.
	DependencyTypeCustom DependencyType = "custom"
)

// DependencyCheck is one readiness check.
type DependencyCheck struct {
	name     string
	depType  DependencyType
	checkFn  func(ctx context.Context) error
	critical bool
	cacheTTL time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastResult error
}

// DependencyCheckOption is a function that configures a DependencyCheck.
type DependencyCheckOption func(*DependencyCheck)

// WithCritical marks the dependency as critical. Checks are critical
// unless told otherwise.
func WithCritical(critical bool) DependencyCheckOption {
	return func(d *DependencyCheck) {
		d.critical = critical
	}
}

// WithCacheTTL reuses the last result for ttl.
func WithCacheTTL(ttl time.Duration) DependencyCheckOption {
	return func(d *DependencyCheck) {
		d.cacheTTL = ttl
	}
}

// NewDependencyCheck creates a new dependency check.
func NewDependencyCheck(
	name string,
	depType DependencyType,
	checkFn func(ctx context.Context) error,
	opts ...DependencyCheckOption,
) *DependencyCheck {
	d := &DependencyCheck{
		name:     name,
		depType:  depType,
		checkFn:  checkFn,
		critical: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the name of the dependency check.
func (d *DependencyCheck) Name() string {
	return d.name
}

// Type returns the dependency type.
func (d *DependencyCheck) Type() DependencyType {
	return d.depType
}

// IsCritical returns true if the dependency is critical.
func (d *DependencyCheck) IsCritical() bool {
	return d.critical
}

// Check performs the dependency health check.
func (d *DependencyCheck) Check(ctx context.Context) error {
	if d.cacheTTL <= 0 {
		return d.checkFn(ctx)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.lastCheck.IsZero() && time.Since(d.lastCheck) < d.cacheTTL {
		return d.lastResult
	}
	d.lastResult = d.checkFn(ctx)
	d.lastCheck = time.Now()
	return d.lastResult
}

// StoreCheck pings the durable key-value store.
func StoreCheck(store kvstore.Store, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck("store", DependencyTypeStore, func(ctx context.Context) error {
		if store == nil {
			return errors.New("store is not configured")
		}
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("store ping failed: %w", err)
		}
		return nil
	}, opts...)
}

// Prober is implemented by clients that can probe their backend.
type Prober interface {
	HealthCheck(ctx context.Context) error
}

// BackendCheck probes the upstream backend.
func BackendCheck(p Prober, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck("backend", DependencyTypeHTTP, func(ctx context.Context) error {
		if err := p.HealthCheck(ctx); err != nil {
			return fmt.Errorf("backend probe failed: %w", err)
		}
		return nil
	}, opts...)
}

// CustomCheck wraps fn.
func CustomCheck(name string, fn func(ctx context.Context) error, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeCustom, fn, opts...)
}
