package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Default retry configuration constants.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 50 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
	DefaultJitterFactor   = 0.25
)

// Config contains retry configuration parameters. Zero values fall back to
// the package defaults; a negative MaxRetries disables retries.
type Config struct {
	MaxRetries     int           `yaml:"maxRetries" json:"maxRetries" envconfig:"MAX_RETRIES"`
	InitialBackoff time.Duration `yaml:"initialBackoff" json:"initialBackoff" envconfig:"INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"maxBackoff" json:"maxBackoff" envconfig:"MAX_BACKOFF"`
	JitterFactor   float64       `yaml:"jitterFactor" json:"jitterFactor" envconfig:"JITTER_FACTOR"`
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

func (c *Config) attempts() int {
	switch {
	case c == nil || c.MaxRetries == 0:
		return DefaultMaxRetries + 1
	case c.MaxRetries < 0:
		return 1
	default:
		return c.MaxRetries + 1
	}
}

func (c *Config) initial() time.Duration {
	if c == nil || c.InitialBackoff <= 0 {
		return DefaultInitialBackoff
	}
	return c.InitialBackoff
}

func (c *Config) ceiling() time.Duration {
	if c == nil || c.MaxBackoff <= 0 {
		return DefaultMaxBackoff
	}
	return c.MaxBackoff
}

func (c *Config) jitter() float64 {
	if c == nil || c.JitterFactor <= 0 {
		return DefaultJitterFactor
	}
	return math.Min(c.JitterFactor, 1)
}

// Options contains optional retry behavior.
type Options struct {
	// ShouldRetry reports whether err is transient. Nil retries every error.
	ShouldRetry func(err error) bool

	// OnRetry is called before sleeping ahead of attempt number attempt.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// budget is exhausted, or ctx is done.
func Do(ctx context.Context, cfg *Config, fn func() error, opts *Options) error {
	attempts := cfg.attempts()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if opts != nil && opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		backoff := Backoff(attempt, cfg.initial(), cfg.ceiling(), cfg.jitter())
		if opts != nil && opts.OnRetry != nil {
			opts.OnRetry(attempt+1, lastErr, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// Backoff returns the delay before retry number attempt (zero based).
func Backoff(attempt int, initial, ceiling time.Duration, jitterFactor float64) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt))
	//nolint:gosec // jitter for retry timing is not security-sensitive
	backoff += backoff * jitterFactor * rand.Float64()
	if backoff > float64(ceiling) {
		backoff = float64(ceiling)
	}
	return time.Duration(backoff)
}
