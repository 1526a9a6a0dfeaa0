package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "omnigw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL.Duration())
	assert.Equal(t, time.Hour, cfg.Auth.SessionTTL.Duration())
	assert.Equal(t, 300*time.Second, cfg.Cache.DefaultTTL.Duration())
	assert.Equal(t, 60*time.Second, cfg.Cache.APIResponseTTL.Duration())
	assert.Equal(t, 3600*time.Second, cfg.Cache.ExternalSessionTTL.Duration())
	assert.Equal(t, 1800*time.Second, cfg.Cache.PermissionsTTL.Duration())
	assert.Equal(t, RatePolicy{Requests: 100, Window: Duration(time.Minute)}, cfg.RateLimit.Default)
	assert.Equal(t, RatePolicy{Requests: 1000, Window: Duration(time.Hour)}, cfg.RateLimit.PerSource)
	assert.Equal(t, RatePolicy{Requests: 5, Window: Duration(5 * time.Minute)}, cfg.RateLimit.Endpoints[EndpointLogin])
	assert.Equal(t, 10<<20, cfg.Security.MaxRequestSize)

	// secret is intentionally absent
	assert.Error(t, Validate(cfg))
	cfg.Auth.Secret = testSecret
	assert.NoError(t, Validate(cfg))
}

func TestLoad_YAMLWithSubstitution(t *testing.T) {
	t.Setenv("OMNIGW_TEST_BACKEND", "http://backend.internal:5000")

	path := writeConfig(t, `
server:
  port: 9000
auth:
  secret: "${OMNIGW_TEST_SECRET:-`+testSecret+`}"
backend:
  url: "${OMNIGW_TEST_BACKEND}"
  timeout: 5s
cache:
  apiResponseTTL: 2m
rateLimit:
  endpoints:
    /api/custom:
      requests: 3
      window: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, testSecret, cfg.Auth.Secret)
	assert.Equal(t, "http://backend.internal:5000", cfg.Backend.URL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout.Duration())
	assert.Equal(t, 2*time.Minute, cfg.Cache.APIResponseTTL.Duration())
	assert.Equal(t, 3, cfg.RateLimit.Endpoints["/api/custom"].Requests)
	// built-in overrides survive a partial endpoints section
	assert.Contains(t, cfg.RateLimit.Endpoints, EndpointLogin)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OMNIGW_AUTH_SECRET", testSecret)
	t.Setenv("OMNIGW_SERVER_PORT", "7070")
	t.Setenv("OMNIGW_CACHE_DEFAULT_TTL", "90s")
	t.Setenv("OMNIGW_RATE_LIMIT_DEFAULT_REQUESTS", "42")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL.Duration())
	assert.Equal(t, 42, cfg.RateLimit.Default.Requests)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "bad yaml", content: "server: [", want: "failed to parse YAML"},
		{name: "missing secret", content: "server:\n  port: 8081\n", want: "Secret"},
		{name: "bad port", content: "auth:\n  secret: " + testSecret + "\nserver:\n  port: 70000\n", want: "Port"},
		{name: "bad duration", content: "auth:\n  secret: " + testSecret + "\nbackend:\n  timeout: soon\n", want: "invalid duration"},
		{name: "bad policy", content: "auth:\n  secret: " + testSecret + "\nrateLimit:\n  endpoints:\n    /x:\n      requests: 0\n      window: 1s\n", want: "Requests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("OMNIGW_SUB_SET", "value")

	assert.Equal(t, "a value b", substituteEnvVars("a ${OMNIGW_SUB_SET} b"))
	assert.Equal(t, "fallback", substituteEnvVars("${OMNIGW_SUB_UNSET:-fallback}"))
	assert.Equal(t, "", substituteEnvVars("${OMNIGW_SUB_UNSET}"))
	assert.Equal(t, "${literal}", substituteEnvVars("$${literal}"))
}

func TestDuration(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, d.Decode("1m30s"))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`"2s"`), &d))
	assert.Equal(t, 2*time.Second, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.Zero(t, d)

	out, err := json.Marshal(Duration(time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `"1s"`, string(out))

	assert.Error(t, d.Decode("later"))
}

func TestParse(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("rateLimit:\n  default:\n    requests: 7\n    window: 1s\n"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RateLimit.Default.Requests)
	assert.Equal(t, time.Second, cfg.RateLimit.Default.Window.Duration())
}
