package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	endpoint string
	method   string
	payload  json.RawMessage
	err      error
}

func (c *recordingClient) Forward(_ context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error) {
	c.endpoint, c.method, c.payload = endpoint, method, payload
	if c.err != nil {
		return nil, c.err
	}
	return json.RawMessage(`{"upstream":true}`), nil
}

func TestMux_RoutesLocalAndUpstream(t *testing.T) {
	t.Parallel()

	upstream := &recordingClient{}
	m := NewMux(upstream)
	m.Handle("/api/auth/login", func(_ context.Context, method string, payload json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"local":"` + method + `"}`), nil
	})

	resp, err := m.Forward(context.Background(), "/api/auth/login", "POST", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"local":"POST"}`, string(resp))
	assert.Empty(t, upstream.endpoint)

	resp, err = m.Forward(context.Background(), "/api/auth/login/", "POST", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"local":"POST"}`, string(resp))
	assert.Empty(t, upstream.endpoint)

	resp, err = m.Forward(context.Background(), "/api/status", "GET", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"upstream":true}`, string(resp))
	assert.Equal(t, "/api/status", upstream.endpoint)
}

func TestMux_TargetLabelsUpstreamErrors(t *testing.T) {
	t.Parallel()

	upstream := &recordingClient{err: &UpstreamError{StatusCode: http.StatusBadGateway}}
	m := NewMux(upstream)
	for _, target := range DefaultTargets() {
		m.HandleTarget(target)
	}

	_, err := m.Forward(context.Background(), "/api/github/process", "POST", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, "GitHub API error: 502 Bad Gateway", err.Error())

	_, err = m.Forward(context.Background(), "/api/other", "GET", nil)
	assert.Equal(t, "Backend error: 502 Bad Gateway", err.Error())
}

func TestForwardTo(t *testing.T) {
	t.Parallel()

	upstream := &recordingClient{}
	resp, err := ForwardTo(context.Background(), upstream, TargetNvidia, "", "", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"upstream":true}`, string(resp))
	assert.Equal(t, "/api/nvidia/process", upstream.endpoint)
	assert.Equal(t, http.MethodPost, upstream.method)
	assert.JSONEq(t, `{"a":1}`, string(upstream.payload))

	transport := errors.New("dial failed")
	upstream.err = transport
	_, err = ForwardTo(context.Background(), upstream, TargetVercel, "/custom", "PUT", nil)
	assert.ErrorIs(t, err, transport)
	assert.Equal(t, "/custom", upstream.endpoint)
}

func TestClientFunc(t *testing.T) {
	t.Parallel()

	var c Client = ClientFunc(func(_ context.Context, endpoint, _ string, _ json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"` + endpoint + `"`), nil
	})
	resp, err := c.Forward(context.Background(), "/x", "GET", nil)
	require.NoError(t, err)
	assert.Equal(t, `"/x"`, string(resp))
}
