package log

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type contextKey struct{}

// SetContextLogger stores lg in ctx. When ctx carries a valid span, lg is wrapped
// in a SpanLogger recording on that span. A nil lg stores a NoopLogger.
func SetContextLogger(ctx context.Context, lg Logger) context.Context {
	if lg == nil {
		lg = NewNoopLogger()
	}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		lg = NewSpanLogger(lg, NewOtelSpanEventRecorder(span))
	}
	return context.WithValue(ctx, contextKey{}, lg)
}

// FromContext returns the logger stored by SetContextLogger, or a NoopLogger.
func FromContext(ctx context.Context) Logger {
	if lg, ok := ctx.Value(contextKey{}).(Logger); ok {
		return lg
	}
	return NewNoopLogger()
}

// StartSpan starts a span named name on the global tracer provider, annotates it
// with keysAndValues and re-attaches lg so that it records on the new span.
func StartSpan(ctx context.Context, tracer, name string, lg Logger, keysAndValues ...any) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracer).Start(ctx, name, trace.WithAttributes(Attributes(keysAndValues...)...))
	return SetContextLogger(ctx, lg), span
}
