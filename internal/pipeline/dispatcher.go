package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/omnigw/internal/cache"
	"github.com/vyrodovalexey/omnigw/internal/observability"
	"github.com/vyrodovalexey/omnigw/internal/proxy"
)

const tracerName = "github.com/vyrodovalexey/omnigw/internal/pipeline"

// Dispatcher runs requests through the stages and the proxy client.
type Dispatcher struct {
	stages  []Stage
	client  proxy.Client
	cache   *cache.Tiered
	capture *sessionCapture
	logger  observability.Logger
	metrics *observability.Metrics
	newID   func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger observability.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics records request, stage and rejection metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// WithResponseCache serves repeated GET requests from c.
func WithResponseCache(c *cache.Tiered) Option {
	return func(d *Dispatcher) {
		d.cache = c
	}
}

// WithSessionCapture caches the sessions opened by successful calls to the
// capture endpoints in c's external-session category.
func WithSessionCapture(c *cache.Tiered, captures ...SessionCapture) Option {
	return func(d *Dispatcher) {
		d.capture = newSessionCapture(c, captures)
	}
}

// WithIDGenerator replaces the request id generator.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) {
		d.newID = fn
	}
}

// New returns a Dispatcher running stages in order before calling client.
func New(client proxy.Client, stages []Stage, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		stages: stages,
		client: client,
		logger: observability.NopLogger(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Stages returns the stage names in run order.
func (d *Dispatcher) Stages() []string {
	names := make([]string, len(d.stages))
	for i, s := range d.stages {
		names[i] = s.Name()
	}
	return names
}

// Dispatch runs req to completion. It always returns exactly one
// envelope. The request id is the one already on ctx, or a new one when
// ctx carries none; a caller-set req.RequestID is ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	req.RequestID = observability.RequestIDFromContext(ctx)
	if req.RequestID == "" {
		req.RequestID = d.newID()
		ctx = observability.ContextWithRequestID(ctx, req.RequestID)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.Dispatch",
		trace.WithAttributes(
			attribute.String("request.id", req.RequestID),
			attribute.String("gateway.endpoint", req.Endpoint),
			attribute.String("gateway.method", req.Method),
		),
	)
	defer span.End()

	logger := d.logger.WithContext(ctx)
	resp := d.dispatch(ctx, req, logger)

	span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	if !resp.Envelope.Success {
		span.SetStatus(codes.Error, *resp.Envelope.Error)
	}
	d.metrics.RecordRequest(req.Method, resp.Status)
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req *Request, logger observability.Logger) *Response {
	for _, stage := range d.stages {
		start := time.Now()
		err := stage.Run(ctx, req)
		d.metrics.ObserveStage(stage.Name(), time.Since(start))
		if err != nil {
			return d.reject(logger, req, classify(stage.Name(), err))
		}
	}

	if d.cacheable(req) {
		if data, ok := d.cache.GetAPIResponse(ctx, req.Method, req.Endpoint); ok {
			logger.Debug("served from response cache", observability.String("endpoint", req.Endpoint))
			return &Response{Status: http.StatusOK, Envelope: Success(req.RequestID, data)}
		}
	}

	start := time.Now()
	data, err := d.client.Forward(ctx, req.Endpoint, req.Method, req.Data)
	d.metrics.ObserveStage(StageProxy, time.Since(start))
	if err != nil {
		return d.reject(logger, req, classify(StageProxy, err))
	}

	if d.cacheable(req) {
		if err := d.cache.SetAPIResponse(ctx, req.Method, req.Endpoint, data); err != nil {
			logger.Debug("response not cached", observability.Error(err))
		}
	}
	d.capture.record(ctx, logger, req.Endpoint, data)

	logger.Info("request processed",
		observability.String("endpoint", req.Endpoint),
		observability.String("method", req.Method),
	)
	return &Response{Status: http.StatusOK, Envelope: Success(req.RequestID, data)}
}

func (d *Dispatcher) cacheable(req *Request) bool {
	return d.cache != nil && req.Method == http.MethodGet && req.Token == ""
}

func (d *Dispatcher) reject(logger observability.Logger, req *Request, se *StageError) *Response {
	d.metrics.RecordRejection(se.Stage, se.Class.String())

	fields := []observability.Field{
		observability.String("stage", se.Stage),
		observability.String("class", se.Class.String()),
		observability.String("endpoint", req.Endpoint),
		observability.String("error", se.Message),
	}
	if se.Err != nil {
		fields = append(fields, observability.Error(se.Err))
	}
	if se.Class == ClassInternal || se.Class == ClassUpstream {
		logger.Error("request failed", fields...)
	} else {
		logger.Warn("request rejected", fields...)
	}

	return &Response{
		Status:     se.Class.HTTPStatus(),
		Envelope:   Failure(req.RequestID, se.Message),
		RetryAfter: se.RetryAfter,
	}
}
