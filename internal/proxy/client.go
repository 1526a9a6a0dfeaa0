package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport indicates the backend could not be reached.
	ErrTransport = errors.New("backend unreachable")

	// ErrCircuitOpen indicates the breaker is refusing calls.
	ErrCircuitOpen = errors.New("backend circuit open")

	// ErrInvalidResponse indicates a success response that is not JSON.
	ErrInvalidResponse = errors.New("backend returned invalid JSON")
)

// Client forwards one request to the backend and returns its JSON body.
type Client interface {
	Forward(ctx context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error)

// Forward implements Client.
func (f ClientFunc) Forward(ctx context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error) {
	return f(ctx, endpoint, method, payload)
}

// UpstreamError is a non-2xx backend response.
type UpstreamError struct {
	// Target names the backend service, empty for the generic backend.
	Target     string
	StatusCode int
	Body       []byte
}

// Error implements error.
func (e *UpstreamError) Error() string {
	status := fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Target != "" {
		return fmt.Sprintf("%s API error: %s", e.Target, status)
	}
	return "Backend error: " + status
}

// Temporary reports whether the status is worth retrying.
func (e *UpstreamError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// Target describes a backend service reached through a fixed endpoint.
type Target struct {
	Name            string
	DefaultEndpoint string
}

// Targets served by the backend.
var (
	TargetNvidia = Target{Name: "NVIDIA", DefaultEndpoint: "/api/nvidia/process"}
	TargetGithub = Target{Name: "GitHub", DefaultEndpoint: "/api/github/process"}
	TargetVercel = Target{Name: "Vercel", DefaultEndpoint: "/api/vercel/process"}
)

// DefaultTargets returns the built-in backend services.
func DefaultTargets() []Target {
	return []Target{TargetNvidia, TargetGithub, TargetVercel}
}

// ForwardTo forwards payload to target. An empty endpoint selects the
// target's default endpoint and an empty method selects POST. Upstream
// errors are labelled with the target name.
func ForwardTo(ctx context.Context, c Client, target Target, endpoint, method string, payload json.RawMessage) (json.RawMessage, error) {
	if endpoint == "" {
		endpoint = target.DefaultEndpoint
	}
	if method == "" {
		method = http.MethodPost
	}

	resp, err := c.Forward(ctx, endpoint, method, payload)
	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream.Target == "" {
		labelled := *upstream
		labelled.Target = target.Name
		return nil, &labelled
	}
	return resp, err
}
