package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/omnigw/internal/cache"
	"github.com/vyrodovalexey/omnigw/internal/config"
	"github.com/vyrodovalexey/omnigw/internal/kvstore"
	"github.com/vyrodovalexey/omnigw/internal/observability"
	"github.com/vyrodovalexey/omnigw/internal/proxy"
)

func TestDispatch_SessionCapture(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	user, err := s.engine.CreateUser("alice", "alice@example.com", "password123")
	require.NoError(t, err)
	userToken, err := s.engine.IssueToken(user.ID, user.Permissions)
	require.NoError(t, err)

	launched := json.RawMessage(`{"session_id":"nv-42","status":"launched"}`)
	client := proxy.ClientFunc(func(context.Context, string, string, json.RawMessage) (json.RawMessage, error) {
		return launched, nil
	})
	c := cache.New(kvstore.NewMemoryStore(), cache.DefaultPolicy())
	d := New(client, s.stages(), WithSessionCapture(c, DefaultSessionCaptures()...))

	resp := d.Dispatch(context.Background(), &Request{
		Endpoint: config.EndpointNvidiaLaunch,
		Method:   "POST",
		Token:    userToken,
		Data:     json.RawMessage(`{"device_id":"d1","session_id":"s1","quality":"high"}`),
	})
	require.Equal(t, http.StatusOK, resp.Status, "error: %v", resp.Envelope.Error)

	got, ok := c.GetExternalSession(context.Background(), "nvidia", "nv-42")
	require.True(t, ok)
	assert.JSONEq(t, string(launched), string(got))
}

func TestSessionCapture_Record(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := observability.NopLogger()

	tests := []struct {
		name     string
		endpoint string
		data     string
		wantHit  bool
	}{
		{name: "captured", endpoint: "/api/nvidia/launch", data: `{"session_id":"a"}`, wantHit: true},
		{name: "trailing slash", endpoint: "/api/nvidia/launch/", data: `{"session_id":"a"}`, wantHit: true},
		{name: "other endpoint", endpoint: "/api/github/repos", data: `{"session_id":"a"}`},
		{name: "no session id", endpoint: "/api/nvidia/launch", data: `{"status":"queued"}`},
		{name: "not an object", endpoint: "/api/nvidia/launch", data: `["a"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cache.New(kvstore.NewMemoryStore(), cache.DefaultPolicy())
			sc := newSessionCapture(c, DefaultSessionCaptures())
			sc.record(ctx, logger, tt.endpoint, json.RawMessage(tt.data))

			_, ok := c.GetExternalSession(ctx, "nvidia", "a")
			assert.Equal(t, tt.wantHit, ok)
		})
	}
}

func TestSessionCapture_Disabled(t *testing.T) {
	t.Parallel()

	assert.Nil(t, newSessionCapture(nil, DefaultSessionCaptures()))
	assert.Nil(t, newSessionCapture(cache.New(kvstore.NewMemoryStore(), cache.DefaultPolicy()), nil))

	var sc *sessionCapture
	assert.NotPanics(t, func() {
		sc.record(context.Background(), observability.NopLogger(), config.EndpointNvidiaLaunch, json.RawMessage(`{"session_id":"a"}`))
	})
}
