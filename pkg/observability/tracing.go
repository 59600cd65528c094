// Package observability wires OpenTelemetry tracing for the ingestion core.
// Spans cover fan-out retrievals and per-source attempts; the exporter
// writes to stdout, which is enough for local correlation with the logs.
package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "newscore"

var (
	tracer   trace.Tracer = noop.NewTracerProvider().Tracer(serviceName)
	provider *sdktrace.TracerProvider
	initOnce sync.Once
)

// Init installs the global tracer provider. With enabled false the package
// keeps its no-op tracer and spans cost nothing.
func Init(version string, enabled bool) error {
	if !enabled {
		return nil
	}

	var initErr error
	initOnce.Do(func() {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			initErr = fmt.Errorf("create stdout exporter: %w", err)
			return
		}

		res, err := resource.New(context.Background(),
			resource.WithAttributes(
				semconv.ServiceNameKey.String(serviceName),
				semconv.ServiceVersionKey.String(version),
			),
		)
		if err != nil {
			initErr = fmt.Errorf("create resource: %w", err)
			return
		}

		provider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exporter),
		)
		otel.SetTracerProvider(provider)
		tracer = provider.Tracer(serviceName)
	})
	return initErr
}

// StartSpan opens a span for one core operation
func StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, operation)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndSpan closes a span, recording the error state
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// SourceAttrs builds the standard span attributes for a source operation
func SourceAttrs(source, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("news.source", source),
		attribute.String("news.operation", operation),
	}
}

// Shutdown flushes buffered spans. Safe to call when tracing was never
// enabled.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}
