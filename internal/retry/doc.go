// Package retry runs an operation with capped exponential backoff and jitter.
//
// It is used around durable store calls, where a transient connection error
// should not immediately surface as a failed request:
//
//	err := retry.Do(ctx, cfg, func() error {
//	    return client.Set(ctx, key, value, ttl).Err()
//	}, &retry.Options{ShouldRetry: isTransient})
package retry
