package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName scopes every span this module emits.
const tracerName = "github.com/AntoineDubuc/wingman-ai-sub005"

// Tracer returns the tracer shared by all wingman packages. It resolves
// through the global provider, so whatever [InitProvider] installed is what
// callers get.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a child span of whatever span ctx carries. Callers end the
// span themselves.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID reports the active trace ID, which doubles as the
// per-request correlation key in logs and error payloads. Empty when ctx
// carries no span.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger derives a request-scoped logger carrying trace_id and span_id when
// ctx holds an active span. Without one it falls back to [slog.Default]
// unchanged.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
