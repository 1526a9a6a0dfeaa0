package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/omnigw/internal/auth"
	"github.com/vyrodovalexey/omnigw/internal/proxy"
	"github.com/vyrodovalexey/omnigw/internal/ratelimit"
	"github.com/vyrodovalexey/omnigw/internal/security"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantClass Class
		wantMsg   string
	}{
		{
			name:      "security",
			err:       &security.ViolationError{Rule: "script-tag", Message: "XSS pattern detected"},
			wantClass: ClassBadRequest,
			wantMsg:   "Security validation failed: XSS pattern detected",
		},
		{
			name:      "rate limit",
			err:       &ratelimit.ExceededError{Identifier: "x", Limit: 1, RetryAfter: 3 * time.Second},
			wantClass: ClassTooManyRequests,
			wantMsg:   "Rate limit exceeded",
		},
		{name: "expired", err: auth.ErrTokenExpired, wantClass: ClassUnauthorized, wantMsg: "Token expired"},
		{name: "invalid", err: fmt.Errorf("wrap: %w", auth.ErrTokenInvalid), wantClass: ClassUnauthorized, wantMsg: "Invalid token"},
		{name: "credentials", err: auth.ErrInvalidCredentials, wantClass: ClassUnauthorized, wantMsg: "Invalid credentials"},
		{name: "session", err: auth.ErrSessionNotFound, wantClass: ClassUnauthorized, wantMsg: "Invalid session"},
		{name: "duplicate", err: auth.ErrDuplicateUser, wantClass: ClassBadRequest, wantMsg: "User already exists"},
		{name: "circuit", err: proxy.ErrCircuitOpen, wantClass: ClassUpstream, wantMsg: "Proxy error: backend circuit open"},
		{name: "deadline", err: context.DeadlineExceeded, wantClass: ClassUpstream, wantMsg: "Proxy error: context deadline exceeded"},
		{name: "other", err: errors.New("boom"), wantClass: ClassInternal, wantMsg: "Internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			se := classify(StageProxy, tt.err)
			assert.Equal(t, tt.wantClass, se.Class)
			assert.Equal(t, tt.wantMsg, se.Message)
			assert.Equal(t, StageProxy, se.Stage)
			assert.ErrorIs(t, se, tt.err)
		})
	}
}

func TestClassify_KeepsStageError(t *testing.T) {
	t.Parallel()

	orig := Fail("", ClassForbidden, "Insufficient permissions", nil)
	se := classify(StageAuth, orig)
	assert.Same(t, orig, se)
	assert.Equal(t, StageAuth, se.Stage)

	rl := classify(StageRateLimit, &ratelimit.ExceededError{RetryAfter: 7 * time.Second})
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
}

func TestClass_HTTPStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadRequest, ClassBadRequest.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, ClassUnauthorized.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, ClassForbidden.HTTPStatus())
	assert.Equal(t, http.StatusTooManyRequests, ClassTooManyRequests.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, ClassUpstream.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, ClassInternal.HTTPStatus())
	assert.Equal(t, "too_many_requests", ClassTooManyRequests.String())
}
