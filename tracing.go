package simcore

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/oriumgames/simcore"

// defaultTracer uses the global provider, a no-op until the process installs one.
func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func (r *Registry) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("simcore.session", r.session.String()),
	))
}
