// Package tracing configures OpenTelemetry for the server and names the two
// span families it emits: one per tool invocation ("mcp.tool.<name>") and
// one per remote call ("cbeta.api.<path>").
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "cbeta-mcp-server"

// Config holds tracing configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
	OTLPEndpoint   string // If set, uses OTLP exporter; otherwise stdout
	SampleRate     float64

	// Writer receives stdout-exporter output. Nil means stderr; stdout is
	// reserved for the stdio MCP transport.
	Writer io.Writer
}

// DefaultConfig reads OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT and
// OTEL_ENVIRONMENT. Setting an endpoint enables tracing on its own.
func DefaultConfig() Config {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	env := os.Getenv("OTEL_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	return Config{
		ServiceName:    tracerName,
		ServiceVersion: "1.0.0",
		Environment:    env,
		Enabled:        os.Getenv("OTEL_ENABLED") == "true" || endpoint != "",
		OTLPEndpoint:   endpoint,
		SampleRate:     1.0,
	}
}

func (c Config) writer() io.Writer {
	if c.Writer != nil {
		return c.Writer
	}
	return os.Stderr
}

// Setup installs a global tracer provider and returns its shutdown function.
// When tracing is disabled the returned function does nothing.
func Setup(ctx context.Context, config Config) (func(context.Context) error, error) {
	if !config.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	// Schemaless attributes merge with whatever schema the SDK detector uses
	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironmentName(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	if config.OTLPEndpoint != "" {
		exporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(config.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
	} else {
		exporter, err = stdouttrace.New(
			stdouttrace.WithWriter(config.writer()),
			stdouttrace.WithPrettyPrint(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(config.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// StartToolSpan opens the span for one tool invocation.
func StartToolSpan(ctx context.Context, tool, unit, invocationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "mcp.tool."+tool,
		trace.WithAttributes(
			attribute.String("mcp.tool.name", tool),
			attribute.String("mcp.tool.unit", unit),
			attribute.String("mcp.invocation_id", invocationID),
		))
}

// RemoteSpanName maps an API path to its span name: "/search/kwic" becomes
// "cbeta.api.search.kwic".
func RemoteSpanName(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "cbeta.api"
	}
	return "cbeta.api." + strings.ReplaceAll(trimmed, "/", ".")
}

// StartRemoteSpan opens a client span for one call to the remote service.
func StartRemoteSpan(ctx context.Context, path string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, RemoteSpanName(path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cbeta.api.path", path)),
	)
}

// SetResponseStatus records the HTTP status of a remote call. Zero means no
// response arrived and records nothing; a non-2xx status marks the span
// failed.
func SetResponseStatus(span trace.Span, statusCode int) {
	if statusCode <= 0 {
		return
	}
	span.SetAttributes(attribute.Int("http.response.status_code", statusCode))
	if statusCode < 200 || statusCode > 299 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
	}
}

// Fail records err on the span and marks it failed. A nil err is ignored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
