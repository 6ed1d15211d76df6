package tracing

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Init installs the global tracer provider. With an empty endpoint nothing
// is installed and the default no-op provider stays in place, so span
// creation throughout the codebase costs almost nothing. The returned
// shutdown func flushes buffered spans.
func Init(ctx context.Context, endpoint, version string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if endpoint == "" {
		return noop, nil
	}

	exp, err := newExporter(ctx, endpoint)
	if err != nil {
		return noop, fmt.Errorf("creating otlp exporter: %w", err)
	}

	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName("clawbox"),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("building trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// newExporter picks the OTLP transport from the endpoint scheme:
// grpc:// dials gRPC, http:// and https:// use the HTTP exporter.
func newExporter(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
	switch {
	case strings.HasPrefix(endpoint, "grpc://"):
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(strings.TrimPrefix(endpoint, "grpc://")),
			otlptracegrpc.WithInsecure(),
		)
	case strings.HasPrefix(endpoint, "https://"):
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(strings.TrimPrefix(endpoint, "https://")),
		)
	case strings.HasPrefix(endpoint, "http://"):
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(strings.TrimPrefix(endpoint, "http://")),
			otlptracehttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp endpoint scheme: %s", endpoint)
	}
}
