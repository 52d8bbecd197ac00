// Package obs wires OpenTelemetry tracing and Prometheus metrics for the
// dispatch path (C7/C8), following hector's observability.Manager shape:
// a single construct-at-startup object the rest of the host reads from.
package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerConfig controls whether and how spans are emitted.
type TracerConfig struct {
	Enabled      bool
	ServiceName  string
	SamplingRate float64
}

// InitGlobalTracer installs a TracerProvider and returns it so the caller
// can Shutdown it. Disabled configs install a no-op provider.
func InitGlobalTracer(ctx context.Context, cfg TracerConfig) (trace.TracerProvider, func(context.Context) error, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("obs: create stdout trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("obs: build resource: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
