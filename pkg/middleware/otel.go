package middleware

import (
	"context"
	"fmt"

	"github.com/jibbrjabbr/jj/pkg/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for JibbrJabbr hosts.
const defaultTracerName = "jj"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "jj").
	TracerName string

	// IncludeRemoteAddr includes the client address in traces.
	// Disabled by default.
	IncludeRemoteAddr bool

	// Filter determines which executions to trace.
	// Return true to trace, false to skip. If nil, everything is traced.
	Filter func(ctx *server.Context) bool

	// AttributeExtractor extracts custom attributes from the context.
	AttributeExtractor func(ctx *server.Context) []attribute.KeyValue

	// TracerProvider overrides the global provider.
	TracerProvider trace.TracerProvider

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludeRemoteAddr enables including the client address in traces.
func WithIncludeRemoteAddr(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeRemoteAddr = include
	}
}

// WithEventFilter sets a filter function for executions.
func WithEventFilter(filter func(ctx *server.Context) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(ctx *server.Context) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
	}
}

// OpenTelemetry creates middleware that opens a span around every handler
// execution. The span carries the host, connection and event, records the
// handler error and becomes the parent of spans started from
// ctx.StdContext().
//
// The tracer comes from the global provider unless WithTracerProvider is
// given. Configure the provider in main() before starting the server:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) server.Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.TracerProvider != nil {
		config.tracer = config.TracerProvider.Tracer(config.TracerName)
	} else {
		config.tracer = otel.Tracer(config.TracerName)
	}

	return server.MiddlewareFunc(func(ctx *server.Context, next func() error) error {
		if config.Filter != nil && !config.Filter(ctx) {
			return next()
		}

		attrs := []attribute.KeyValue{
			attribute.String("jj.host", ctx.Host().Name()),
		}
		if conn := ctx.Connection(); conn != nil {
			attrs = append(attrs, attribute.String("jj.connection_id", conn.ID()))
			if config.IncludeRemoteAddr {
				attrs = append(attrs, attribute.String("jj.remote_addr", conn.RemoteAddr()))
			}
		}
		if ev := ctx.Event(); ev != nil {
			attrs = append(attrs,
				attribute.String("jj.event_type", ev.Type),
				attribute.String("jj.event_key", ev.Key()),
			)
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(ctx)...)
		}

		spanCtx, span := config.tracer.Start(
			ctx.StdContext(),
			spanName(ctx),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		ctx.SetValue(spanContextKey{}, spanCtx)
		ctx.SetStdContext(spanCtx)

		err := next()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	})
}

type spanContextKey struct{}

// SpanFromContext returns the span opened for the execution, or nil.
//
//	if span := middleware.SpanFromContext(ctx); span != nil {
//	    span.SetAttributes(attribute.Int("chat.members", n))
//	}
func SpanFromContext(ctx *server.Context) trace.Span {
	if spanCtx, ok := ctx.Value(spanContextKey{}).(context.Context); ok {
		return trace.SpanFromContext(spanCtx)
	}
	return nil
}

// TraceContext returns the context carrying the execution's span, for
// propagation to external services.
func TraceContext(ctx *server.Context) context.Context {
	if spanCtx, ok := ctx.Value(spanContextKey{}).(context.Context); ok {
		return spanCtx
	}
	return ctx.StdContext()
}

func spanName(ctx *server.Context) string {
	if ev := ctx.Event(); ev != nil {
		return fmt.Sprintf("jj.%s", ev.Type)
	}
	return fmt.Sprintf("jj.%s", executionKind(ctx))
}

// executionKind labels executions that were not triggered by an event.
func executionKind(ctx *server.Context) string {
	switch {
	case ctx.Event() != nil:
		return ctx.Event().Type
	case ctx.Connection() != nil:
		return "lifecycle"
	default:
		return "execute"
	}
}
