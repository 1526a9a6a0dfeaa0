// Package observability provides logging, metrics, and tracing for the
// omnigw gateway.
//
// # Logging
//
// The Logger interface wraps zap and is passed to every component:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request dispatched",
//	    observability.String("endpoint", "/api/status"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
// Metrics owns a dedicated Prometheus registry covering pipeline stages,
// rate limit rejections, cache tiers and upstream calls:
//
//	metrics := observability.NewMetrics("omnigw")
//	http.Handle("/metrics", metrics.Handler())
//
// # Tracing
//
// Tracer wraps an OpenTelemetry provider exporting over OTLP/gRPC. When
// disabled, spans are created against the global no-op provider.
package observability
