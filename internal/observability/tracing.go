package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultOTLPTimeout bounds each export to the collector.
	DefaultOTLPTimeout = 10 * time.Second

	// TracerName is the instrumentation scope used by gateway components.
	TracerName = "github.com/vyrodovalexey/omnigw"
)

// TracerConfig enables span export over OTLP/gRPC.
type TracerConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled" envconfig:"ENABLED"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName" envconfig:"SERVICE_NAME"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint" envconfig:"OTLP_ENDPOINT"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate" envconfig:"SAMPLING_RATE" validate:"gte=0,lte=1"`
}

// Tracer owns the SDK provider installed by NewTracer.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer creates a tracer. A disabled config yields a tracer over the
// global provider, which is a no-op unless something else installed one.
func NewTracer(ctx context.Context, cfg TracerConfig, logger Logger) (*Tracer, error) {
	if logger != nil {
		otel.SetLogger(LogrFor(logger))
	}

	if !cfg.Enabled {
		return &Tracer{tracer: otel.Tracer(TracerName)}, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "omnigw"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(createSampler(cfg.SamplingRate))),
	}

	if cfg.OTLPEndpoint != "" {
		exporter, expErr := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithTimeout(DefaultOTLPTimeout),
		)
		if expErr != nil {
			return nil, expErr
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

func createSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartSpan starts a span on the gateway tracer. Loggers derived with
// WithContext from the returned context carry its IDs.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return otel.Tracer(TracerName).Start(ctx, name, opts...)
	}
	return t.tracer.Start(ctx, name, opts...)
}
