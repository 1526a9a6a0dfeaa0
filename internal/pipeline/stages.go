package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/vyrodovalexey/omnigw/internal/auth"
	"github.com/vyrodovalexey/omnigw/internal/ratelimit"
	"github.com/vyrodovalexey/omnigw/internal/security"
	"github.com/vyrodovalexey/omnigw/internal/validation"
)

// Stage names.
const (
	StageSecurity   = "security"
	StageRateLimit  = "ratelimit"
	StageValidation = "validation"
	StageAuth       = "auth"
	StageProxy      = "proxy"
)

// Stage is one gate. Run returns nil to continue or an error that ends
// the request.
type Stage interface {
	Name() string
	Run(ctx context.Context, req *Request) error
}

// SecurityStage scans the endpoint, method and payload.
type SecurityStage struct {
	Scanner *security.Scanner
}

// Name implements Stage.
func (s *SecurityStage) Name() string { return StageSecurity }

// Run implements Stage.
func (s *SecurityStage) Run(_ context.Context, req *Request) error {
	if err := s.Scanner.CheckEndpoint(req.Endpoint); err != nil {
		return err
	}
	if err := s.Scanner.CheckMethod(req.Method); err != nil {
		return err
	}
	if err := s.Scanner.CheckSize(len(req.Data)); err != nil {
		return err
	}
	payload, err := req.Payload()
	if err != nil {
		return Fail(StageSecurity, ClassBadRequest, "Security validation failed: malformed data", err)
	}
	return s.Scanner.Scan(payload)
}

// RateLimitStage consumes from the caller's endpoint and source counters.
type RateLimitStage struct {
	Gate *ratelimit.Gate
}

// Name implements Stage.
func (s *RateLimitStage) Name() string { return StageRateLimit }

// Run implements Stage.
func (s *RateLimitStage) Run(_ context.Context, req *Request) error {
	_, err := s.Gate.Check(req.Endpoint, req.ClientIP, req.ClientIP)
	return err
}

// ValidationStage checks method, endpoint and payload fields.
type ValidationStage struct {
	Validator *validation.Validator
}

// Name implements Stage.
func (s *ValidationStage) Name() string { return StageValidation }

// Run implements Stage.
func (s *ValidationStage) Run(_ context.Context, req *Request) error {
	payload, err := req.Payload()
	if err != nil {
		return Fail(StageValidation, ClassBadRequest, "Validation failed: Input must be a JSON object", err)
	}
	return s.Validator.Request(req.Method, req.Endpoint, payload)
}

// PermissionRule requires Permission for endpoints under Prefix.
type PermissionRule struct {
	Prefix     string
	Permission string
}

// DefaultPermissionRules protects the third-party service endpoints.
func DefaultPermissionRules() []PermissionRule {
	return []PermissionRule{
		{Prefix: "/api/nvidia/", Permission: auth.PermissionUser},
		{Prefix: "/api/github/", Permission: auth.PermissionUser},
		{Prefix: "/api/vercel/", Permission: auth.PermissionUser},
	}
}

// AuthStage verifies the bearer token and permission for protected
// endpoints. Endpoints matching no rule are public.
type AuthStage struct {
	Engine *auth.Engine
	Rules  []PermissionRule
}

// Name implements Stage.
func (s *AuthStage) Name() string { return StageAuth }

func (s *AuthStage) required(endpoint string) (string, bool) {
	var best PermissionRule
	for _, r := range s.Rules {
		if strings.HasPrefix(endpoint, r.Prefix) && len(r.Prefix) > len(best.Prefix) {
			best = r
		}
	}
	return best.Permission, best.Prefix != ""
}

// Run implements Stage.
func (s *AuthStage) Run(ctx context.Context, req *Request) error {
	permission, protected := s.required(req.Endpoint)
	if !protected {
		return nil
	}
	if req.Token == "" {
		return Fail(StageAuth, ClassUnauthorized, "Authentication required", nil)
	}

	claims, err := s.Engine.VerifyToken(req.Token)
	if err != nil {
		return err
	}

	ok, err := s.Engine.CheckPermission(ctx, claims.Subject, permission)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return Fail(StageAuth, ClassUnauthorized, "Invalid token", err)
	case err != nil:
		return err
	case !ok:
		return Fail(StageAuth, ClassForbidden, "Insufficient permissions", nil)
	}

	req.Claims = claims
	return nil
}

// DefaultStages returns the gates in their fixed order: security, rate
// limit, validation, auth.
func DefaultStages(
	scanner *security.Scanner,
	gate *ratelimit.Gate,
	validator *validation.Validator,
	engine *auth.Engine,
	rules []PermissionRule,
) []Stage {
	return []Stage{
		&SecurityStage{Scanner: scanner},
		&RateLimitStage{Gate: gate},
		&ValidationStage{Validator: validator},
		&AuthStage{Engine: engine, Rules: rules},
	}
}
