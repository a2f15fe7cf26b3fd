// Package tracing exports OpenTelemetry spans for API requests and
// background jobs.
package tracing

import (
	"context"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/xerrors"
)

// TracerName is the default tracer for spans created by the control plane.
const TracerName = "runwayd"

// TracerOpts specifies which telemetry exporters should be configured.
type TracerOpts struct {
	// Default exports to a backend configured by the standard OTEL_*
	// environment variables.
	Default bool
	// Endpoint overrides the collector address of the default exporter.
	Endpoint string
}

// TracerProvider creates a grpc otlp exporter and configures a trace
// provider. Caller is responsible for calling the returned closer to ensure
// all data is flushed.
func TracerProvider(ctx context.Context, service string, opts TracerOpts) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(service),
	)
	tracerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	var closers []func(context.Context) error
	if opts.Default {
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if opts.Endpoint != "" {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithEndpoint(opts.Endpoint))
		}
		exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(grpcOpts...))
		if err != nil {
			return nil, nil, xerrors.Errorf("create otlp exporter: %w", err)
		}
		closers = append(closers, exporter.Shutdown)
		tracerOpts = append(tracerOpts, sdktrace.WithBatcher(exporter))
	}

	tracerProvider := sdktrace.NewTracerProvider(tracerOpts...)
	otel.SetTracerProvider(tracerProvider)
	// Ignore otel errors, they are very noisy on collector restarts.
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(error) {}))
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)
	otel.SetLogger(logr.Discard())

	return tracerProvider, func(ctx context.Context) error {
		err := tracerProvider.ForceFlush(ctx)
		if err != nil {
			return xerrors.Errorf("force flush: %w", err)
		}
		for _, closer := range closers {
			err = closer(ctx)
			if err != nil {
				return xerrors.Errorf("close exporter: %w", err)
			}
		}
		err = tracerProvider.Shutdown(ctx)
		if err != nil {
			return xerrors.Errorf("shutdown provider: %w", err)
		}
		return nil
	}, nil
}
