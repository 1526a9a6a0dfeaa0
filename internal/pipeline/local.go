package pipeline

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/vyrodovalexey/omnigw/internal/auth"
	"github.com/vyrodovalexey/omnigw/internal/proxy"
	"github.com/vyrodovalexey/omnigw/internal/validation"
)

// Local auth endpoints.
const (
	EndpointLogin    = "/api/auth/login"
	EndpointRegister = "/api/auth/register"
	EndpointLogout   = "/api/auth/logout"
	EndpointSession  = "/api/auth/session"
)

type sessionRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// RegisterAuthHandlers serves the auth endpoints from engine. They run
// after the same gates as every other endpoint.
func RegisterAuthHandlers(mux *proxy.Mux, engine *auth.Engine, v *validation.Validator) {
	mux.Handle(EndpointLogin, func(ctx context.Context, method string, payload json.RawMessage) (json.RawMessage, error) {
		var req validation.LoginRequest
		if err := decodeLocal(method, payload, &req, v); err != nil {
			return nil, err
		}
		result, err := engine.Login(ctx, req.Username, req.Password)
		if err != nil {
			return nil, err
		}
		return encodeLocal(result)
	})

	mux.Handle(EndpointRegister, func(ctx context.Context, method string, payload json.RawMessage) (json.RawMessage, error) {
		var req validation.RegisterRequest
		if err := decodeLocal(method, payload, &req, v); err != nil {
			return nil, err
		}
		user, err := engine.CreateUser(req.Username, req.Email, req.Password)
		if err != nil {
			return nil, err
		}
		return encodeLocal(user)
	})

	mux.Handle(EndpointLogout, func(ctx context.Context, method string, payload json.RawMessage) (json.RawMessage, error) {
		var req sessionRequest
		if err := decodeLocal(method, payload, &req, v); err != nil {
			return nil, err
		}
		if err := engine.Logout(ctx, req.SessionID); err != nil {
			return nil, err
		}
		return encodeLocal(map[string]bool{"logged_out": true})
	})

	mux.Handle(EndpointSession, func(ctx context.Context, method string, payload json.RawMessage) (json.RawMessage, error) {
		var req sessionRequest
		if err := decodeLocal(method, payload, &req, v); err != nil {
			return nil, err
		}
		user, err := engine.Session(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		return encodeLocal(user)
	})
}

func decodeLocal(method string, payload json.RawMessage, dst any, v *validation.Validator) error {
	if method != http.MethodPost {
		return Fail(StageProxy, ClassBadRequest, "Method not allowed: "+method, nil)
	}
	if len(payload) == 0 {
		return Fail(StageProxy, ClassBadRequest, "Validation failed: Request body is required", nil)
	}
	if err := sonic.Unmarshal(payload, dst); err != nil {
		return Fail(StageProxy, ClassBadRequest, "Validation failed: Input must be a JSON object", err)
	}
	if err := v.Struct(dst); err != nil {
		return Fail(StageProxy, ClassBadRequest, "Validation failed: "+err.Error(), err)
	}
	return nil
}

func encodeLocal(v any) (json.RawMessage, error) {
	b, err := sonic.Marshal(v)
	if err != nil {
		return nil, Fail(StageProxy, ClassInternal, "Internal error", err)
	}
	return b, nil
}
