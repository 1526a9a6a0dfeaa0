package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/omnigw/internal/config"
)

func decode(t *testing.T, doc string) any {
	t.Helper()
	var v any
	require.NoError(t, sonic.UnmarshalString(doc, &v))
	return v
}

func TestValidator_Method(t *testing.T) {
	t.Parallel()

	v := New()
	for _, m := range []string{"GET", "POST", "PUT", "DELETE"} {
		assert.NoError(t, v.Method(m), m)
	}
	for _, m := range []string{"PATCH", "get", "", "TRACE"} {
		assert.ErrorIs(t, v.Method(m), ErrValidation, m)
	}
}

func TestValidator_Endpoint(t *testing.T) {
	t.Parallel()

	v := New()
	assert.NoError(t, v.Endpoint("/api/status"))
	err := v.Endpoint("api/status")
	require.Error(t, err)
	assert.Equal(t, "Endpoint must start with '/'", err.Error())
}

func TestValidator_Fields(t *testing.T) {
	t.Parallel()

	v := New()
	longKey := strings.Repeat("k", 501)

	tests := []struct {
		name     string
		doc      string
		wantMsg  string
		wantPath string
	}{
		{name: "null", doc: `null`},
		{name: "empty object", doc: `{}`},
		{name: "not an object", doc: `[1,2]`, wantMsg: "Input must be a JSON object"},
		{name: "valid fields", doc: `{"email":"a@b.io","url":"https://x.dev/a","api_key":"abcdefghijklmnop","username":"al_ice-1","password":"12345678","repo_name":"my.repo"}`},
		{name: "bad email", doc: `{"email":"nope"}`, wantMsg: "Invalid email format", wantPath: "data.email"},
		{name: "bad url", doc: `{"webhook_url":"ftp://x"}`, wantMsg: "Invalid URL format"},
		{name: "short key", doc: `{"token":"short"}`, wantMsg: "API key too short"},
		{name: "long key", doc: `{"access_token":"` + longKey + `"}`, wantMsg: "API key too long"},
		{name: "short username", doc: `{"username":"ab"}`, wantMsg: "Username must be between 3 and 50 characters"},
		{name: "username charset", doc: `{"username":"bad name"}`, wantMsg: "Username can only contain alphanumeric characters, underscores, and hyphens"},
		{name: "short password", doc: `{"password":"1234567"}`, wantMsg: "Password must be at least 8 characters long"},
		{name: "empty project", doc: `{"project_name":""}`, wantMsg: "Name must be between 1 and 100 characters"},
		{name: "project charset", doc: `{"project_name":"a/b"}`, wantMsg: "Name can only contain alphanumeric characters, underscores, hyphens, and dots"},
		{name: "non string known field", doc: `{"email":42}`},
		{name: "nested object", doc: `{"owner":{"email":"bad"}}`, wantMsg: "Invalid email format", wantPath: "data.owner.email"},
		{name: "nested array", doc: `{"members":[{"username":"okay"},{"username":"x"}]}`, wantMsg: "Username must be between 3 and 50 characters", wantPath: "data.members[1].username"},
		{name: "array of scalars ignored", doc: `{"tags":["x","y"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Fields(decode(t, tt.doc))
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.ErrorIs(t, err, ErrValidation)

			if tt.wantPath != "" {
				var fe *FieldError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, tt.wantPath, fe.Path)
			}
		})
	}
}

func TestValidator_Target(t *testing.T) {
	t.Parallel()

	v := New()

	tests := []struct {
		name     string
		endpoint string
		doc      string
		wantMsg  string
	}{
		{name: "untargeted endpoint", endpoint: "/api/status", doc: `null`},
		{name: "nvidia ok", endpoint: config.EndpointNvidiaLaunch, doc: `{"device_id":"d","session_id":"s","quality":"ultra"}`},
		{name: "nvidia missing", endpoint: config.EndpointNvidiaLaunch, doc: `{"device_id":"d"}`, wantMsg: "Missing required field: session_id"},
		{name: "nvidia quality", endpoint: config.EndpointNvidiaLaunch, doc: `{"device_id":"d","session_id":"s","quality":"8k"}`, wantMsg: "Invalid quality setting"},
		{name: "github ok", endpoint: config.EndpointGithubCreate, doc: `{"repo_name":"r","owner":"o","visibility":"private"}`},
		{name: "github visibility", endpoint: config.EndpointGithubCreate, doc: `{"repo_name":"r","owner":"o","visibility":"internal"}`, wantMsg: "Invalid repository visibility"},
		{name: "vercel null data", endpoint: config.EndpointVercelDeploy, doc: `null`, wantMsg: "Missing required field: project_name"},
		{name: "vercel framework", endpoint: config.EndpointVercelDeploy, doc: `{"project_name":"p","framework":"rails"}`, wantMsg: "Invalid framework selection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Target(tt.endpoint, decode(t, tt.doc))
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}

	rule, ok := v.TargetFor(config.EndpointGithubCreate)
	require.True(t, ok)
	assert.Equal(t, "github", rule.Name)
}

func TestValidator_RequestOrder(t *testing.T) {
	t.Parallel()

	v := New()

	err := v.Request("PATCH", "nope", decode(t, `{"email":"bad"}`))
	assert.Contains(t, err.Error(), "Unsupported method")

	err = v.Request("GET", "nope", decode(t, `{"email":"bad"}`))
	assert.Contains(t, err.Error(), "Endpoint must start")

	err = v.Request("POST", config.EndpointVercelDeploy, decode(t, `{"email":"bad"}`))
	assert.Equal(t, "Invalid email format", err.Error())

	err = v.Request("POST", config.EndpointVercelDeploy, decode(t, `{"email":"a@b.io"}`))
	assert.Equal(t, "Missing required field: project_name", err.Error())

	assert.NoError(t, v.Request("GET", "/x", nil))
}

func TestValidator_CustomRules(t *testing.T) {
	t.Parallel()

	v := New(
		WithFieldRules(FieldRule{
			Fields:   []string{"region"},
			Tag:      "oneof=eu us",
			Messages: map[string]string{"oneof": "Unknown region"},
		}),
		WithTargetRule("/api/custom", TargetRule{Name: "custom", Required: []string{"id"}}),
	)

	assert.EqualError(t, v.Fields(decode(t, `{"region":"mars"}`)), "Unknown region")
	assert.EqualError(t, v.Target("/api/custom", decode(t, `{}`)), "Missing required field: id")
}

func TestValidator_Struct(t *testing.T) {
	t.Parallel()

	v := New()

	assert.NoError(t, v.Struct(&LoginRequest{Username: "alice", Password: "password123"}))

	err := v.Struct(&RegisterRequest{Username: "a!", Email: "", Password: "short"})
	require.Error(t, err)

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.ErrorIs(t, err, ErrValidation)

	msg := err.Error()
	assert.Contains(t, msg, "Username must be between 3 and 50 characters")
	assert.Contains(t, msg, "email is required")
	assert.Contains(t, msg, "Password must be at least 8 characters long")
}
