// Package kvstore provides the durable key-value store shared by the cache's
// durable tier and the session store.
package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key is absent or expired.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("kvstore: store closed")
)

// Store is a key-value store with per-key expiry. Get distinguishes an
// absent key (ErrNotFound) from a failure to reach the store (any other
// error).
type Store interface {
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
