package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/omnigw/internal/config"
	"github.com/vyrodovalexey/omnigw/internal/observability"
	"github.com/vyrodovalexey/omnigw/internal/retry"
)

const (
	tracerName       = "github.com/vyrodovalexey/omnigw/internal/kvstore"
	defaultKeyPrefix = "omnigw:"
	pingTimeout      = 5 * time.Second
)

// RedisStore implements Store on top of Redis.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	retry     *retry.Config
	logger    observability.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisLogger sets the store logger.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// WithKeyPrefix sets the prefix prepended to every key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithRetry sets the retry policy applied to transport errors.
func WithRetry(cfg *retry.Config) RedisOption {
	return func(s *RedisStore) {
		s.retry = cfg
	}
}

// NewRedisStore wraps an existing client. The client is closed by Close.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		retry:     retry.DefaultConfig(),
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open dials Redis as configured and verifies the connection.
func Open(ctx context.Context, cfg config.RedisConfig, logger observability.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout.Duration(),
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	retryCfg := cfg.Retry
	store := NewRedisStore(client,
		WithKeyPrefix(cfg.KeyPrefix),
		WithRetry(&retryCfg),
		WithRedisLogger(logger),
	)

	logger.Info("redis store connected",
		observability.String("address", cfg.Address),
		observability.String("keyPrefix", store.keyPrefix),
	)
	return store, nil
}

// isRetryable reports whether err is a transport failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, redis.Nil) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (s *RedisStore) key(key string) string {
	return s.keyPrefix + key
}

func (s *RedisStore) do(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "kvstore."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("kvstore.key", key),
		),
	)
	defer span.End()

	err := retry.Do(ctx, s.retry, func() error { return fn(ctx) }, &retry.Options{
		ShouldRetry: isRetryable,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			s.logger.Debug("retrying redis operation",
				observability.String("op", op),
				observability.String("key", key),
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err),
			)
		},
	})

	if err != nil && !errors.Is(err, redis.Nil) {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	return err
}

// SetWithExpiry implements Store.
func (s *RedisStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.do(ctx, "set", key, func(ctx context.Context) error {
		return s.client.Set(ctx, s.key(key), value, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.do(ctx, "get", key, func(ctx context.Context) error {
		v, getErr := s.client.Get(ctx, s.key(key)).Bytes()
		if getErr != nil {
			return getErr
		}
		value = v
		return nil
	})

	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	err := s.do(ctx, "delete", key, func(ctx context.Context) error {
		return s.client.Del(ctx, s.key(key)).Err()
	})
	if err != nil {
		return fmt.Errorf("redis delete %q: %w", key, err)
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
