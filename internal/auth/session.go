package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/omnigw/internal/kvstore"
	"github.com/vyrodovalexey/omnigw/internal/observability"
)

// DefaultSessionTTL is the lifetime of a stored session.
const DefaultSessionTTL = time.Hour

const sessionKeyPrefix = "auth:session:"

// SessionStore binds session ids to user ids in the durable store.
type SessionStore struct {
	store  kvstore.Store
	ttl    time.Duration
	logger observability.Logger
}

// SessionOption configures a SessionStore.
type SessionOption func(*SessionStore)

// WithSessionLogger sets the session store logger.
func WithSessionLogger(logger observability.Logger) SessionOption {
	return func(s *SessionStore) {
		s.logger = logger
	}
}

// NewSessionStore returns a SessionStore writing to store. A non-positive
// ttl selects DefaultSessionTTL.
func NewSessionStore(store kvstore.Store, ttl time.Duration, opts ...SessionOption) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &SessionStore{
		store:  store,
		ttl:    ttl,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// TTL returns the lifetime applied at write time.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Store binds sessionID to userID.
func (s *SessionStore) Store(ctx context.Context, sessionID, userID string) error {
	if err := s.store.SetWithExpiry(ctx, sessionKey(sessionID), []byte(userID), s.ttl); err != nil {
		s.logger.Warn("failed to store session",
			observability.String("session_id", sessionID),
			observability.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Get returns the user bound to sessionID.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (string, error) {
	value, err := s.store.Get(ctx, sessionKey(sessionID))
	switch {
	case err == nil:
		return string(value), nil
	case errors.Is(err, kvstore.ErrNotFound):
		return "", ErrSessionNotFound
	default:
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

// Delete removes sessionID. Deleting an unknown session is not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionKey(sessionID)); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}
