package otel_test

import (
	"context"
	"testing"

	gotel "go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/teslashibe/go-ev3way/internal/otel"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), "ev3way-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetup_InstallsProviderWhenEndpointSet(t *testing.T) {
	prev := gotel.GetTracerProvider()
	t.Cleanup(func() { gotel.SetTracerProvider(prev) })

	// Non-routable address; nothing is exported before shutdown.
	shutdown, err := otel.Setup(context.Background(), "ev3way-test", "http://192.0.2.1:4318")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := gotel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("global provider = %T, want *sdktrace.TracerProvider", gotel.GetTracerProvider())
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
