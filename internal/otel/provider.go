// Package otel exports crew spans over OTLP/HTTP.
package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/teslashibe/go-ev3way/internal/httpc"
)

// Shutdown flushes buffered spans.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs the global tracer provider. An empty endpoint leaves the
// default no-op provider in place.
func Setup(ctx context.Context, service, endpoint string) (Shutdown, error) {
	if endpoint == "" {
		return noop, nil
	}

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
		otlptracehttp.WithHTTPClient(httpc.New(httpc.DefaultTimeout)),
	)
	if err != nil {
		return noop, fmt.Errorf("otel exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(service)))
	if err != nil {
		// Conflicting schema URLs; fall back to ours alone.
		res = resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(service))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
