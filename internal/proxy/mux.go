package proxy

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// Handler serves an endpoint in process.
type Handler func(ctx context.Context, method string, payload json.RawMessage) (json.RawMessage, error)

// Mux is a Client that serves registered endpoints locally, forwards target
// endpoints with ForwardTo and sends everything else upstream.
type Mux struct {
	upstream Client

	mu      sync.RWMutex
	local   map[string]Handler
	targets map[string]Target
}

// NewMux returns a Mux falling back to upstream.
func NewMux(upstream Client) *Mux {
	return &Mux{
		upstream: upstream,
		local:    make(map[string]Handler),
		targets:  make(map[string]Target),
	}
}

func normalize(endpoint string) string {
	if len(endpoint) > 1 {
		return strings.TrimRight(endpoint, "/")
	}
	return endpoint
}

// Handle serves endpoint with h.
func (m *Mux) Handle(endpoint string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.local[normalize(endpoint)] = h
}

// HandleTarget routes the target's default endpoint through ForwardTo.
func (m *Mux) HandleTarget(t Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[normalize(t.DefaultEndpoint)] = t
}

// Forward implements Client.
func (m *Mux) Forward(ctx context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error) {
	key := normalize(endpoint)

	m.mu.RLock()
	h, local := m.local[key]
	t, isTarget := m.targets[key]
	m.mu.RUnlock()

	switch {
	case local:
		return h(ctx, method, payload)
	case isTarget:
		return ForwardTo(ctx, m.upstream, t, endpoint, method, payload)
	default:
		return m.upstream.Forward(ctx, endpoint, method, payload)
	}
}
