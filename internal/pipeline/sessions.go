package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/vyrodovalexey/omnigw/internal/cache"
	"github.com/vyrodovalexey/omnigw/internal/config"
	"github.com/vyrodovalexey/omnigw/internal/observability"
)

// SessionCapture names an endpoint whose successful responses open a
// session on an external service. The response must be a JSON object with
// a string session_id.
type SessionCapture struct {
	Endpoint string
	Service  string
}

// DefaultSessionCaptures returns the built-in capture endpoints.
func DefaultSessionCaptures() []SessionCapture {
	return []SessionCapture{
		{Endpoint: config.EndpointNvidiaLaunch, Service: "nvidia"},
	}
}

type sessionCapture struct {
	cache    *cache.Tiered
	services map[string]string
}

func newSessionCapture(c *cache.Tiered, captures []SessionCapture) *sessionCapture {
	if c == nil || len(captures) == 0 {
		return nil
	}
	sc := &sessionCapture{cache: c, services: make(map[string]string, len(captures))}
	for _, cp := range captures {
		sc.services[trimEndpoint(cp.Endpoint)] = cp.Service
	}
	return sc
}

func trimEndpoint(endpoint string) string {
	if len(endpoint) > 1 {
		return strings.TrimRight(endpoint, "/")
	}
	return endpoint
}

// record is a no-op on a nil receiver.
func (sc *sessionCapture) record(ctx context.Context, logger observability.Logger, endpoint string, data json.RawMessage) {
	if sc == nil {
		return
	}
	service, ok := sc.services[trimEndpoint(endpoint)]
	if !ok {
		return
	}

	var opened struct {
		SessionID string `json:"session_id"`
	}
	if err := sonic.Unmarshal(data, &opened); err != nil || opened.SessionID == "" {
		logger.Debug("no session in response", observability.String("endpoint", endpoint))
		return
	}
	if err := sc.cache.SetExternalSession(ctx, service, opened.SessionID, data); err != nil {
		logger.Warn("external session not cached",
			observability.String("service", service),
			observability.Error(err),
		)
		return
	}
	logger.Debug("external session cached",
		observability.String("service", service),
		observability.String("session_id", opened.SessionID),
	)
}
