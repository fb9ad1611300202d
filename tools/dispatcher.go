package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/olgasafonova/cbeta-mcp-server/internal/envelope"
	"github.com/olgasafonova/cbeta-mcp-server/metrics"
	"github.com/olgasafonova/cbeta-mcp-server/tracing"
)

// UnknownToolMessage is the error text for a name that is not registered.
const UnknownToolMessage = "unknown tool"

// Dispatcher invokes registered tools by name. Every outcome, including
// panics, is returned as an envelope.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher seals reg and returns a dispatcher over it.
func NewDispatcher(reg *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	reg.Seal()
	return &Dispatcher{registry: reg, logger: logger}
}

// Registry returns the sealed registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Invoke validates raw against the tool's schema and runs its handler.
func (d *Dispatcher) Invoke(ctx context.Context, name string, raw map[string]any) (env envelope.Envelope) {
	desc, ok := d.registry.Lookup(name)
	if !ok {
		metrics.UnknownTools.Inc()
		d.logger.Warn("Unknown tool requested", "tool", name)
		return envelope.Error(UnknownToolMessage)
	}

	invocationID := uuid.NewString()

	ctx, span := tracing.StartToolSpan(ctx, name, desc.Unit, invocationID)
	defer span.End()
	span.SetAttributes(attribute.Bool("mcp.tool.readonly", desc.ReadOnly))

	// Track in-flight requests
	metrics.RequestInFlight.WithLabelValues(name).Inc()
	defer metrics.RequestInFlight.WithLabelValues(name).Dec()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			metrics.PanicsRecovered.WithLabelValues(name).Inc()
			d.logger.Error("Panic recovered",
				"tool", name,
				"invocation_id", invocationID,
				"panic", rec,
				"stack", string(debug.Stack()))
			env = envelope.Error(fmt.Sprintf("%s failed: panic: %v", name, rec))
		}
		d.finish(span, desc, invocationID, time.Since(start), env)
	}()

	in, err := desc.Schema.Validate(raw)
	if err != nil {
		metrics.ValidationFailures.WithLabelValues(name).Inc()
		return envelope.Error(err.Error())
	}

	result, err := desc.Handler(ctx, in)
	if err != nil {
		span.RecordError(err)
		return envelope.Error(fmt.Sprintf("%s failed: %v", name, err))
	}
	if e, ok := envelope.From(result); ok {
		return e
	}
	return envelope.Success(result)
}

// InvokeJSON decodes raw JSON arguments and invokes the tool. Empty input
// means no arguments; anything but a JSON object is rejected.
func (d *Dispatcher) InvokeJSON(ctx context.Context, name string, raw json.RawMessage) envelope.Envelope {
	if _, ok := d.registry.Lookup(name); !ok {
		return d.Invoke(ctx, name, nil)
	}
	args, err := DecodeArguments(raw)
	if err != nil {
		return envelope.Error("invalid arguments: " + err.Error())
	}
	return d.Invoke(ctx, name, args)
}

// DecodeArguments parses a JSON object. Numbers are kept as json.Number so
// large integers survive intact.
func DecodeArguments(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}

	args, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %s", jsonKind(v))
	}
	return args, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return "null"
	}
}

func (d *Dispatcher) finish(span trace.Span, desc Descriptor, invocationID string, elapsed time.Duration, env envelope.Envelope) {
	duration := elapsed.Seconds()
	span.SetAttributes(attribute.Float64("mcp.tool.duration_seconds", duration))

	attrs := []any{
		"tool", desc.Name,
		"unit", desc.Unit,
		"invocation_id", invocationID,
		"status", env.Status,
		"duration_ms", elapsed.Milliseconds(),
	}

	if env.IsError() {
		span.SetStatus(codes.Error, env.Message)
		metrics.RecordRequest(desc.Name, duration, false)
		attrs = append(attrs, "message", env.Message)
	} else {
		span.SetStatus(codes.Ok, "")
		metrics.RecordRequest(desc.Name, duration, true)
	}

	d.logger.Info("Tool executed", attrs...)
}
