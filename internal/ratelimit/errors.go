package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimitExceeded is matched by every rejection.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ExceededError describes a rejection.
type ExceededError struct {
	Scope      string
	Identifier string
	Limit      int
	RetryAfter time.Duration
}

// Error implements error.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests allowed, retry in %s",
		e.Limit, e.RetryAfter.Round(time.Second))
}

// Is matches ErrRateLimitExceeded.
func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}
