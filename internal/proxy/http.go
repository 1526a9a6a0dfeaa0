package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/omnigw/internal/config"
	"github.com/vyrodovalexey/omnigw/internal/observability"
	"github.com/vyrodovalexey/omnigw/internal/retry"
)

const (
	tracerName     = "github.com/vyrodovalexey/omnigw/internal/proxy"
	breakerName    = "backend"
	defaultTimeout = 30 * time.Second
	userAgent      = "omnigw/1.0"
)

// HTTPClient forwards requests to the backend over HTTP.
type HTTPClient struct {
	baseURL    string
	healthPath string
	resty      *resty.Client
	health     *retryablehttp.Client
	limiter    *rate.Limiter
	breaker    *breaker
	retry      *retry.Config
	logger     observability.Logger
	metrics    *observability.Metrics
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithLogger sets the client logger.
func WithLogger(logger observability.Logger) HTTPOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// WithMetrics records upstream calls.
func WithMetrics(metrics *observability.Metrics) HTTPOption {
	return func(c *HTTPClient) {
		c.metrics = metrics
	}
}

// WithRetryConfig replaces the backoff used for idempotent retries.
func WithRetryConfig(cfg *retry.Config) HTTPOption {
	return func(c *HTTPClient) {
		c.retry = cfg
	}
}

// NewHTTPClient builds a client for the backend described by cfg.
func NewHTTPClient(cfg config.BackendConfig, opts ...HTTPOption) *HTTPClient {
	timeout := defaultDuration(cfg.Timeout.Duration(), defaultTimeout)

	health := retryablehttp.NewClient()
	health.RetryMax = 2
	health.RetryWaitMin = 100 * time.Millisecond
	health.RetryWaitMax = time.Second
	health.HTTPClient.Timeout = timeout
	health.Logger = nil

	c := &HTTPClient{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		healthPath: cfg.HealthPath,
		health:     health,
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     observability.NopLogger(),
		retry: &retry.Config{
			MaxRetries:     cfg.Retries,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
	}
	if cfg.Retries == 0 {
		c.retry.MaxRetries = -1
	}
	if c.healthPath == "" {
		c.healthPath = "/health"
	}
	if cfg.RequestsPerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}

	for _, opt := range opts {
		opt(c)
	}

	c.resty = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		SetTransport(health.HTTPClient.Transport)
	c.breaker = newBreaker(breakerName, cfg.CircuitBreaker, c.logger, c.metrics)

	return c
}

// BaseURL returns the backend base URL.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// BreakerState returns the circuit breaker state name.
func (c *HTTPClient) BreakerState() string {
	return c.breaker.state()
}

// Forward implements Client. GET and DELETE are retried on transport
// errors and 5xx responses; POST and PUT are sent once. Only POST and PUT
// carry the payload.
func (c *HTTPClient) Forward(ctx context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error) {
	method = strings.ToUpper(method)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "proxy.Forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", endpoint),
		),
	)
	defer span.End()

	start := time.Now()
	body, err := c.forward(ctx, endpoint, method, payload)
	c.metrics.RecordUpstream(method, outcome(err), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.WithContext(ctx).Warn("backend call failed",
			observability.String("method", method),
			observability.String("endpoint", endpoint),
			observability.Error(err),
		)
		return nil, err
	}
	return body, nil
}

func (c *HTTPClient) forward(ctx context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	body, err := c.breaker.execute(func() ([]byte, error) {
		if !idempotent(method) {
			return c.send(ctx, endpoint, method, payload)
		}

		var out []byte
		err := retry.Do(ctx, c.retry, func() error {
			var sendErr error
			out, sendErr = c.send(ctx, endpoint, method, payload)
			return sendErr
		}, &retry.Options{
			ShouldRetry: retryable,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				c.logger.Debug("retrying backend call",
					observability.String("endpoint", endpoint),
					observability.Int("attempt", attempt),
					observability.Duration("backoff", backoff),
					observability.Error(err),
				)
			},
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}

	if len(body) == 0 {
		return json.RawMessage("null"), nil
	}
	if !sonic.Valid(body) {
		return nil, ErrInvalidResponse
	}
	return body, nil
}

func (c *HTTPClient) send(ctx context.Context, endpoint, method string, payload json.RawMessage) ([]byte, error) {
	req := c.resty.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")
	if (method == http.MethodPost || method == http.MethodPut) && len(payload) > 0 {
		req.SetBody([]byte(payload))
	}
	if id := observability.RequestIDFromContext(ctx); id != "" {
		req.SetHeader("X-Request-ID", id)
	}

	resp, err := req.Execute(method, endpoint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if !resp.IsSuccess() {
		return nil, &UpstreamError{StatusCode: resp.StatusCode(), Body: resp.Body()}
	}
	return resp.Body(), nil
}

func idempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodDelete
}

func retryable(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Temporary()
	}
	return errors.Is(err, ErrTransport)
}

func outcome(err error) string {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &upstream):
		return "upstream_error"
	default:
		return "transport_error"
	}
}

// HealthCheck probes the backend health endpoint. Transient failures are
// retried.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.health.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{StatusCode: resp.StatusCode}
	}
	return nil
}
