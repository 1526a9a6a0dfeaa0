package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/omnigw/internal/config"
)

func TestPolicyTable_ForEndpoint(t *testing.T) {
	t.Parallel()

	table := DefaultPolicyTable()

	tests := []struct {
		endpoint string
		want     Policy
	}{
		{endpoint: "/x", want: Policy{Requests: 100, Window: time.Minute}},
		{endpoint: config.EndpointLogin, want: Policy{Requests: 5, Window: 5 * time.Minute}},
		{endpoint: config.EndpointLogin + "/", want: Policy{Requests: 5, Window: 5 * time.Minute}},
		{endpoint: config.EndpointNvidiaLaunch, want: Policy{Requests: 5, Window: time.Minute}},
		{endpoint: config.EndpointNvidiaStream, want: Policy{Requests: 10, Window: time.Minute}},
		{endpoint: config.EndpointGithubCreate, want: Policy{Requests: 10, Window: time.Hour}},
		{endpoint: config.EndpointVercelDeploy, want: Policy{Requests: 20, Window: time.Hour}},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, table.ForEndpoint(tt.endpoint))
		})
	}

	assert.Equal(t, Policy{Requests: 1000, Window: time.Hour}, table.PerSource)
}

func TestGate_EndpointOverride(t *testing.T) {
	t.Parallel()

	g := NewGate(New(), DefaultPolicyTable())

	for i := 0; i < 5; i++ {
		_, err := g.Check(config.EndpointLogin, "10.0.0.1", "10.0.0.1")
		require.NoError(t, err)
	}
	_, err := g.Check(config.EndpointLogin, "10.0.0.1", "10.0.0.1")

	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, ScopeEndpoint, exceeded.Scope)

	// other endpoints still use their own counter
	_, err = g.Check("/api/status", "10.0.0.1", "10.0.0.1")
	assert.NoError(t, err)
}

func TestGate_PerSourceIsIndependent(t *testing.T) {
	t.Parallel()

	table := PolicyTable{
		Default:   Policy{Requests: 100, Window: time.Minute},
		PerSource: Policy{Requests: 3, Window: time.Hour},
	}
	g := NewGate(New(), table)

	// distinct endpoints, one source
	for _, ep := range []string{"/a", "/b", "/c"} {
		_, err := g.Check(ep, "10.0.0.2", "10.0.0.2")
		require.NoError(t, err)
	}
	_, err := g.Check("/d", "10.0.0.2", "10.0.0.2")

	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, ScopeSource, exceeded.Scope)

	// endpoint counter for /d was never touched
	assert.Equal(t, Status{Remaining: 100, ResetIn: time.Minute}, g.EndpointStatus("/d", "10.0.0.2"))

	g.ResetSource("10.0.0.2")
	_, err = g.Check("/d", "10.0.0.2", "10.0.0.2")
	assert.NoError(t, err)
}

func TestGate_SetTable(t *testing.T) {
	t.Parallel()

	g := NewGate(New(), DefaultPolicyTable())
	_, err := g.Check("/x", "s", "")
	require.NoError(t, err)

	g.SetTable(PolicyTable{Default: Policy{Requests: 1, Window: time.Minute}})
	_, err = g.Check("/x", "s", "")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	g.Reset("/x", "s")
	_, err = g.Check("/x", "s", "")
	assert.NoError(t, err)
}

func TestPolicyTableFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig().RateLimit
	cfg.Endpoints = map[string]config.RatePolicy{
		"/api/custom/": {Requests: 2, Window: config.Duration(time.Second)},
	}

	table := PolicyTableFromConfig(cfg)
	assert.Equal(t, Policy{Requests: 2, Window: time.Second}, table.ForEndpoint("/api/custom"))
	assert.Equal(t, Policy{Requests: 100, Window: time.Minute}, table.ForEndpoint(config.EndpointLogin))
}
