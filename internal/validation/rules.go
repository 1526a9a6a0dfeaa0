package validation

import (
	"regexp"

	"github.com/vyrodovalexey/omnigw/internal/config"
)

// FieldRule validates every string stored under one of Fields.
type FieldRule struct {
	Fields []string
	// Tag is a go-playground/validator tag applied to the value.
	Tag string
	// Messages maps a failing tag name to the message returned.
	Messages map[string]string
}

// TargetRule lists what a proxied target requires in its payload.
type TargetRule struct {
	Name     string
	Required []string
	// OneOf restricts string fields to a fixed set of values.
	OneOf map[string][]string
	// Messages maps a OneOf field to the message returned.
	Messages map[string]string
}

// Custom validator tags.
const (
	tagUsername     = "username"
	tagResourceName = "resource_name"
)

var (
	usernamePattern     = regexp.MustCompile(`^[\p{L}\p{N}_-]+$`)
	resourceNamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.-]+$`)
)

// DefaultFieldRules returns the built-in field table.
func DefaultFieldRules() []FieldRule {
	return []FieldRule{
		{
			Fields:   []string{"email"},
			Tag:      "email",
			Messages: map[string]string{"email": "Invalid email format"},
		},
		{
			Fields:   []string{"url", "repository_url", "webhook_url"},
			Tag:      "http_url",
			Messages: map[string]string{"http_url": "Invalid URL format"},
		},
		{
			Fields: []string{"api_key", "token", "access_token"},
			Tag:    "min=16,max=500",
			Messages: map[string]string{
				"min": "API key too short",
				"max": "API key too long",
			},
		},
		{
			Fields: []string{"username"},
			Tag:    "min=3,max=50," + tagUsername,
			Messages: map[string]string{
				"min":       "Username must be between 3 and 50 characters",
				"max":       "Username must be between 3 and 50 characters",
				tagUsername: "Username can only contain alphanumeric characters, underscores, and hyphens",
			},
		},
		{
			Fields:   []string{"password"},
			Tag:      "min=8",
			Messages: map[string]string{"min": "Password must be at least 8 characters long"},
		},
		{
			Fields: []string{"repo_name", "project_name"},
			Tag:    "min=1,max=100," + tagResourceName,
			Messages: map[string]string{
				"min":           "Name must be between 1 and 100 characters",
				"max":           "Name must be between 1 and 100 characters",
				tagResourceName: "Name can only contain alphanumeric characters, underscores, hyphens, and dots",
			},
		},
	}
}

// DefaultTargetRules returns the built-in target table keyed by endpoint.
func DefaultTargetRules() map[string]TargetRule {
	return map[string]TargetRule{
		config.EndpointNvidiaLaunch: {
			Name:     "nvidia",
			Required: []string{"device_id", "session_id"},
			OneOf:    map[string][]string{"quality": {"low", "medium", "high", "ultra", "rtx_enabled"}},
			Messages: map[string]string{"quality": "Invalid quality setting"},
		},
		config.EndpointGithubCreate: {
			Name:     "github",
			Required: []string{"repo_name", "owner"},
			OneOf:    map[string][]string{"visibility": {"public", "private"}},
			Messages: map[string]string{"visibility": "Invalid repository visibility"},
		},
		config.EndpointVercelDeploy: {
			Name:     "vercel",
			Required: []string{"project_name"},
			OneOf: map[string][]string{
				"framework": {"nextjs", "react", "vue", "svelte", "nuxtjs", "gatsby", "static"},
			},
			Messages: map[string]string{"framework": "Invalid framework selection"},
		},
	}
}
