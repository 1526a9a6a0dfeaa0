package pipeline

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vyrodovalexey/omnigw/internal/auth"
	"github.com/vyrodovalexey/omnigw/internal/proxy"
	"github.com/vyrodovalexey/omnigw/internal/ratelimit"
	"github.com/vyrodovalexey/omnigw/internal/security"
	"github.com/vyrodovalexey/omnigw/internal/validation"
)

// Class is the HTTP-equivalent status class of a failure.
type Class int

// Failure classes.
const (
	ClassInternal Class = iota
	ClassBadRequest
	ClassUnauthorized
	ClassForbidden
	ClassTooManyRequests
	ClassUpstream
)

// String returns the metric label for c.
func (c Class) String() string {
	switch c {
	case ClassBadRequest:
		return "bad_request"
	case ClassUnauthorized:
		return "unauthorized"
	case ClassForbidden:
		return "forbidden"
	case ClassTooManyRequests:
		return "too_many_requests"
	case ClassUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// HTTPStatus maps c to a response status.
func (c Class) HTTPStatus() int {
	switch c {
	case ClassBadRequest:
		return http.StatusBadRequest
	case ClassUnauthorized:
		return http.StatusUnauthorized
	case ClassForbidden:
		return http.StatusForbidden
	case ClassTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// StageError ends a request. Message is returned to the caller.
type StageError struct {
	Stage      string
	Class      Class
	Message    string
	RetryAfter time.Duration
	Err        error
}

// Error implements error.
func (e *StageError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Fail builds a StageError.
func Fail(stage string, class Class, message string, cause error) *StageError {
	return &StageError{Stage: stage, Class: class, Message: message, Err: cause}
}

// classify turns any error returned by a stage or the proxy into a
// StageError.
func classify(stage string, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		if se.Stage == "" {
			se.Stage = stage
		}
		return se
	}

	var upstream *proxy.UpstreamError
	switch {
	case errors.Is(err, security.ErrViolation):
		return Fail(stage, ClassBadRequest, "Security validation failed: "+err.Error(), err)
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		se := Fail(stage, ClassTooManyRequests, "Rate limit exceeded", err)
		se.RetryAfter = ratelimit.RetryAfter(err)
		return se
	case errors.Is(err, validation.ErrValidation):
		return Fail(stage, ClassBadRequest, "Validation failed: "+err.Error(), err)
	case errors.Is(err, auth.ErrTokenExpired):
		return Fail(stage, ClassUnauthorized, "Token expired", err)
	case errors.Is(err, auth.ErrTokenInvalid):
		return Fail(stage, ClassUnauthorized, "Invalid token", err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return Fail(stage, ClassUnauthorized, "Invalid credentials", err)
	case errors.Is(err, auth.ErrSessionNotFound), errors.Is(err, auth.ErrUserNotFound):
		return Fail(stage, ClassUnauthorized, "Invalid session", err)
	case errors.Is(err, auth.ErrDuplicateUser):
		return Fail(stage, ClassBadRequest, "User already exists", err)
	case errors.As(err, &upstream),
		errors.Is(err, proxy.ErrTransport),
		errors.Is(err, proxy.ErrCircuitOpen),
		errors.Is(err, proxy.ErrInvalidResponse),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return Fail(stage, ClassUpstream, "Proxy error: "+err.Error(), err)
	default:
		return Fail(stage, ClassInternal, "Internal error", err)
	}
}
