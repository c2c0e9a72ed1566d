package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TracingConfig configures the otlp trace exporter, tracing is disabled when HttpEndpoint
// is empty (the global tracer provider stays a no-op).
type TracingConfig struct {
	HttpEndpoint string            `json:"http_endpoint"`
	Headers      map[string]string `json:"headers"`
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

// SetupTracing installs a global tracer provider exporting to the configured otlp
// endpoint, the returned function flushes and shuts it down.
func SetupTracing(ctx context.Context, serviceName string, cfg TracingConfig) (func(context.Context) error, error) {
	if cfg.HttpEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	r, err := newResource(serviceName)
	if err != nil {
		return nil, err
	}

	exportCtx, cancel := context.WithTimeout(ctx, time.Second*3)
	defer cancel()

	exporter, err := otlptracehttp.New(
		exportCtx,
		otlptracehttp.WithEndpointURL(cfg.HttpEndpoint),
		otlptracehttp.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return nil, err
	}
	slog.Info(
		"tracer export initialized",
		"type", "http",
		"endpoint", cfg.HttpEndpoint,
		"headers", len(cfg.Headers) > 0,
	)

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
