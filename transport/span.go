package transport

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the OTel tracer used to emit the span attributes named in §6
// Observability hooks. A nil Tracer (the default) makes span emission a
// no-op so the core has no mandatory tracing dependency at the call site.
type Tracer = trace.Tracer

// startSpan opens a span named "<product> <method>" and records the
// start-of-request attributes from §6: http.request.method, server.address,
// server.port, url.full, user_agent.original, plus product name/version and
// the transport's own version.
func startSpan(ctx context.Context, tracer Tracer, endpoint Endpoint, cfg *BoundConfiguration, product ProductRegistration, transportVersion string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	name := endpoint.Method
	if product != nil {
		name = product.Name() + " " + endpoint.Method
	}
	ctx, span := tracer.Start(ctx, name)
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", endpoint.Method),
		attribute.String("url.full", endpoint.URI()),
		attribute.String("transport.version", transportVersion),
	}
	if cfg.UserAgent != "" {
		attrs = append(attrs, attribute.String("user_agent.original", cfg.UserAgent))
	}
	if endpoint.Node != nil {
		attrs = append(attrs,
			attribute.String("server.address", endpoint.Node.URI().Hostname()),
			attribute.String("server.port", endpoint.Node.URI().Port()),
		)
	}
	if product != nil {
		attrs = append(attrs,
			attribute.String("db.system.name", product.Name()),
			attribute.String("db.system.version", product.Version()),
		)
	}
	span.SetAttributes(attrs...)
	return ctx, span
}

// endSpan records the terminal attributes from §6: http.response.status_code,
// the attempted-nodes count, and whether the final status classified as
// successful.
func endSpan(span trace.Span, details *ApiCallDetails, attemptedNodes int) {
	if span == nil || !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.Int("http.response.status_code", details.HTTPStatusCode),
		attribute.Int("transport.attempted_nodes", attemptedNodes),
		attribute.Bool("transport.success", details.HasSuccessfulStatusCode),
	)
	if details.OriginalException != nil {
		span.RecordError(details.OriginalException)
	}
	span.End()
}
