package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/olgasafonova/cbeta-mcp-server/internal/dependency"
	"github.com/olgasafonova/cbeta-mcp-server/internal/envelope"
	"github.com/olgasafonova/cbeta-mcp-server/metrics"
	"github.com/olgasafonova/cbeta-mcp-server/tools"
)

const (
	// DefaultMaxBodySize caps request bodies on the HTTP transport
	DefaultMaxBodySize = 1 << 20

	shutdownTimeout = 10 * time.Second
)

// SecurityConfig configures the HTTP security middleware
type SecurityConfig struct {
	MaxBodySize int64
}

// SecurityMiddleware sets defensive response headers, limits request bodies
// and turns handler panics into 500 responses.
type SecurityMiddleware struct {
	next   http.Handler
	logger *slog.Logger
	config SecurityConfig
}

// NewSecurityMiddleware wraps next
func NewSecurityMiddleware(next http.Handler, logger *slog.Logger, config SecurityConfig) *SecurityMiddleware {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	return &SecurityMiddleware{next: next, logger: logger, config: config}
}

func (s *SecurityMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("Panic recovered", "operation", "http "+r.Method+" "+r.URL.Path, "panic", rec)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}()

	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Cache-Control", "no-store")

	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)
	}
	s.next.ServeHTTP(w, r)
}

// newHTTPHandler mounts the MCP endpoint, the plain JSON tool endpoints,
// metrics and health checks.
func newHTTPHandler(c *dependency.Container, logger *slog.Logger) http.Handler {
	server := c.MCPServer()
	dispatcher := c.Dispatcher()

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil))
	mux.HandleFunc("GET /tools", listToolsHandler(dispatcher.Registry()))
	mux.HandleFunc("POST /tools/{name}", invokeToolHandler(dispatcher, logger))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": dependency.ServerVersion,
			"tools":   dispatcher.Registry().Len(),
		})
	})

	return NewSecurityMiddleware(instrument(mux), logger, SecurityConfig{MaxBodySize: DefaultMaxBodySize})
}

// toolInfo is the discovery view of one descriptor
type toolInfo struct {
	Name        string             `json:"name"`
	Title       string             `json:"title,omitempty"`
	Unit        string             `json:"unit"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

func listToolsHandler(reg *tools.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		descs := reg.List()
		out := make([]toolInfo, 0, len(descs))
		for _, d := range descs {
			out = append(out, toolInfo{
				Name:        d.Name,
				Title:       d.Title,
				Unit:        d.Unit,
				Description: d.Description,
				InputSchema: d.Schema.JSONSchema(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// invokeToolHandler answers every invocation with HTTP 200 and an envelope.
// Only transport-level problems, such as an oversized body, use other codes.
func invokeToolHandler(dispatcher *tools.Dispatcher, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, envelope.Error("request body too large"))
				return
			}
			logger.Warn("Failed to read request body", "error", err)
			writeJSON(w, http.StatusBadRequest, envelope.Error("failed to read request body"))
			return
		}

		env := dispatcher.InvokeJSON(r.Context(), r.PathValue("name"), body)
		writeJSON(w, http.StatusOK, env)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusOK
		data, _ = json.Marshal(envelope.Error("result is not JSON-serializable: " + err.Error()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the wrapper
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument records HTTP request counts and latency by route pattern
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// runHTTP serves handler on addr until ctx is canceled, then shuts down
// gracefully.
func runHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer recoverPanic(logger, "http server")
		logger.Info("HTTP transport listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP transport")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
