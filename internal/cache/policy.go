package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/vyrodovalexey/omnigw/internal/config"
)

// Default TTLs.
const (
	DefaultTTL                = 300 * time.Second
	DefaultAPIResponseTTL     = 60 * time.Second
	DefaultExternalSessionTTL = 3600 * time.Second
	DefaultPermissionsTTL     = 1800 * time.Second
)

// Policy holds the TTL applied to each cache category.
type Policy struct {
	Default         time.Duration
	APIResponse     time.Duration
	ExternalSession time.Duration
	Permissions     time.Duration
}

// DefaultPolicy returns the built-in TTLs.
func DefaultPolicy() Policy {
	return Policy{
		Default:         DefaultTTL,
		APIResponse:     DefaultAPIResponseTTL,
		ExternalSession: DefaultExternalSessionTTL,
		Permissions:     DefaultPermissionsTTL,
	}
}

// PolicyFromConfig builds a Policy from the cache configuration section.
func PolicyFromConfig(cfg config.CacheConfig) Policy {
	return Policy{
		Default:         cfg.DefaultTTL.Duration(),
		APIResponse:     cfg.APIResponseTTL.Duration(),
		ExternalSession: cfg.ExternalSessionTTL.Duration(),
		Permissions:     cfg.PermissionsTTL.Duration(),
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Default <= 0 {
		p.Default = d.Default
	}
	if p.APIResponse <= 0 {
		p.APIResponse = d.APIResponse
	}
	if p.ExternalSession <= 0 {
		p.ExternalSession = d.ExternalSession
	}
	if p.Permissions <= 0 {
		p.Permissions = d.Permissions
	}
	return p
}

// APIResponseKey is the key of a cached backend response.
func APIResponseKey(method, endpoint string) string {
	return "api:" + strings.ToUpper(method) + ":" + endpoint
}

// ExternalSessionKey is the key of a cached third-party session.
func ExternalSessionKey(service, sessionID string) string {
	return "cache:session:" + service + ":" + sessionID
}

// PermissionsKey is the key of a user's cached permission set.
func PermissionsKey(userID string) string {
	return "user:permissions:" + userID
}

// SetAPIResponse caches a backend response for the API response TTL.
func (c *Tiered) SetAPIResponse(ctx context.Context, method, endpoint string, response json.RawMessage) error {
	return c.Set(ctx, APIResponseKey(method, endpoint), response, c.Policy().APIResponse)
}

// GetAPIResponse returns a cached backend response.
func (c *Tiered) GetAPIResponse(ctx context.Context, method, endpoint string) (json.RawMessage, bool) {
	return c.Get(ctx, APIResponseKey(method, endpoint))
}

// SetExternalSession caches session data issued by an external service.
func (c *Tiered) SetExternalSession(ctx context.Context, service, sessionID string, data any) error {
	return c.Set(ctx, ExternalSessionKey(service, sessionID), data, c.Policy().ExternalSession)
}

// GetExternalSession returns cached external session data.
func (c *Tiered) GetExternalSession(ctx context.Context, service, sessionID string) (json.RawMessage, bool) {
	return c.Get(ctx, ExternalSessionKey(service, sessionID))
}

// SetPermissions caches a user's permission set.
func (c *Tiered) SetPermissions(ctx context.Context, userID string, permissions []string) error {
	return c.Set(ctx, PermissionsKey(userID), permissions, c.Policy().Permissions)
}

// GetPermissions returns a user's cached permission set.
func (c *Tiered) GetPermissions(ctx context.Context, userID string) ([]string, bool) {
	var permissions []string
	ok, err := c.GetInto(ctx, PermissionsKey(userID), &permissions)
	if err != nil || !ok {
		return nil, false
	}
	return permissions, true
}

// InvalidatePermissions drops a user's cached permission set.
func (c *Tiered) InvalidatePermissions(ctx context.Context, userID string) {
	c.Delete(ctx, PermissionsKey(userID))
}
