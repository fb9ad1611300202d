// Package metrics provides Prometheus metrics for the CBETA MCP server.
// It tracks tool calls, registry loading, remote API calls and HTTP traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const (
	Namespace = "cbeta_mcp"
)

var (
	// RequestsTotal counts total tool invocations by tool name and status
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "requests_total",
		Help:      "Total number of tool invocations",
	}, []string{"tool", "status"})

	// RequestDuration measures invocation latency distribution
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "request_duration_seconds",
		Help:      "Invocation latency distribution by tool",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
	}, []string{"tool"})

	// RequestInFlight tracks currently executing invocations
	RequestInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "requests_in_flight",
		Help:      "Number of invocations currently being processed",
	}, []string{"tool"})

	// ValidationFailures counts invocations rejected by schema validation
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "validation_failures_total",
		Help:      "Invocations rejected before the handler ran",
	}, []string{"tool"})

	// UnknownTools counts invocations naming an unregistered tool
	UnknownTools = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "unknown_tool_requests_total",
		Help:      "Invocations naming a tool that is not registered",
	})

	// PanicsRecovered counts recovered panics
	PanicsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "panics_recovered_total",
		Help:      "Number of panics recovered in tool handlers",
	}, []string{"tool"})

	// ToolRegistrations counts registration attempts by outcome
	// (registered, duplicate, invalid, disabled)
	ToolRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "tool_registrations_total",
		Help:      "Tool registration attempts by outcome",
	}, []string{"outcome"})

	// UnitLoads counts tool unit loads by outcome (loaded, failed, skipped)
	UnitLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "unit_loads_total",
		Help:      "Tool unit loads by outcome",
	}, []string{"outcome"})

	// RegisteredTools tracks the number of tools in the sealed registry
	RegisteredTools = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "registered_tools",
		Help:      "Number of tools currently registered",
	})

	// RemoteAPILatency measures remote API call latency by endpoint path
	RemoteAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "remote_api_latency_seconds",
		Help:      "Remote search API call latency by path",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path"})

	// RemoteAPIRequestsTotal counts remote API requests
	RemoteAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "remote_api_requests_total",
		Help:      "Total remote search API requests by path and status",
	}, []string{"path", "status"})

	// RemoteAPIErrors counts remote API errors by error code
	RemoteAPIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "remote_api_errors_total",
		Help:      "Remote search API errors by path and error code",
	}, []string{"path", "error_code"})

	// HTTPRequestsTotal counts HTTP transport requests
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method and status",
	}, []string{"method", "status"})

	// HTTPRequestDuration measures HTTP request latency
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency distribution",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// RecordRequest records a completed invocation with its duration and status
func RecordRequest(tool string, duration float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	RequestsTotal.WithLabelValues(tool, status).Inc()
	RequestDuration.WithLabelValues(tool).Observe(duration)
}

// RecordAPICall records a remote API call. errorCode is empty on success;
// otherwise an HTTP status code, "timeout", "transport" or "decode".
func RecordAPICall(path string, duration float64, success bool, errorCode string) {
	status := "success"
	if !success {
		status = "error"
	}
	RemoteAPIRequestsTotal.WithLabelValues(path, status).Inc()
	RemoteAPILatency.WithLabelValues(path).Observe(duration)
	if errorCode != "" {
		RemoteAPIErrors.WithLabelValues(path, errorCode).Inc()
	}
}

// RecordRegistration records the outcome of one registration attempt
func RecordRegistration(outcome string) {
	ToolRegistrations.WithLabelValues(outcome).Inc()
}

// RecordUnitLoad records the outcome of loading one tool unit
func RecordUnitLoad(outcome string) {
	UnitLoads.WithLabelValues(outcome).Inc()
}
