// Package cbeta provides the CBETA Online client and the tool units that
// proxy its search, catalog and reading endpoints.
package cbeta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/olgasafonova/cbeta-mcp-server/internal/errors"
	"github.com/olgasafonova/cbeta-mcp-server/metrics"
	"github.com/olgasafonova/cbeta-mcp-server/tracing"
)

const (
	// DefaultTimeout for API requests when neither the client nor the call sets one
	DefaultTimeout = 10 * time.Second

	// maxBodyBytes caps how much of a response is read
	maxBodyBytes = 32 << 20

	// maxErrorBody caps the response text carried in a RemoteError
	maxErrorBody = 200
)

// Client performs single-attempt GET requests against the remote search
// service. It never retries and never caches.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	logger     *slog.Logger
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = l
	}
}

// WithUserAgent sets the User-Agent header sent with every request
func WithUserAgent(ua string) ClientOption {
	return func(client *Client) {
		client.userAgent = ua
	}
}

// WithTimeout sets the default per-call timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		if d > 0 {
			client.timeout = d
		}
	}
}

// NewClient creates a client for the service rooted at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(),
		userAgent:  "cbeta-mcp-server/1.0",
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the service root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one outbound call
type Request struct {
	Path    string
	Query   url.Values
	Timeout time.Duration // zero uses the client default
}

// Response is a completed call
type Response struct {
	StatusCode int
	FinalURL   string // after redirects
	Body       []byte
}

// Get performs the request and decodes the JSON body into generic data
func (c *Client) Get(ctx context.Context, req Request) (any, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var data any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		metrics.RemoteAPIErrors.WithLabelValues(req.Path, "decode").Inc()
		return nil, fmt.Errorf("decode response from %s: %w", req.Path, err)
	}
	return data, nil
}

// Resolve performs the request and returns the URL the service finally
// answered from. The body is not decoded.
func (c *Client) Resolve(ctx context.Context, req Request) (string, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.FinalURL, nil
}

// Do performs a single GET. Non-2xx responses become *RemoteError; connection
// faults and timeouts become *TransportError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := tracing.StartRemoteSpan(ctx, req.Path)
	defer span.End()

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportFailure(span, req.Path, start, err)
	}

	body, err := readAndClose(resp)
	if err != nil {
		return nil, c.transportFailure(span, req.Path, start, err)
	}

	duration := time.Since(start)
	tracing.SetResponseStatus(span, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := &apierrors.RemoteError{
			Path:       req.Path,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), maxErrorBody),
		}
		metrics.RecordAPICall(req.Path, duration.Seconds(), false, strconv.Itoa(resp.StatusCode))
		c.logger.Warn("Remote API returned error status",
			"path", req.Path,
			"status", resp.StatusCode,
			"duration_ms", duration.Milliseconds())
		return nil, rerr
	}

	metrics.RecordAPICall(req.Path, duration.Seconds(), true, "")
	c.logger.Debug("Remote API call",
		"path", req.Path,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds())

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{StatusCode: resp.StatusCode, FinalURL: finalURL, Body: body}, nil
}

func (c *Client) transportFailure(span trace.Span, path string, start time.Time, err error) error {
	terr := &apierrors.TransportError{Path: path, Timeout: isTimeout(err), Err: unwrapURLError(err)}
	code := "transport"
	if terr.Timeout {
		code = "timeout"
	}
	metrics.RecordAPICall(path, time.Since(start).Seconds(), false, code)
	tracing.Fail(span, terr)
	c.logger.Warn("Remote API request failed",
		"path", path,
		"timeout", terr.Timeout,
		"error", err)
	return terr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// unwrapURLError drops the *url.Error wrapper, whose message repeats the
// full request URL.
func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

// readAndClose reads the response body and closes it
func readAndClose(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
	return body, err
}

// truncate shortens a string to maxLen, adding "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// newHTTPClient creates an HTTP client whose connections are not reused.
// Deadlines come from the per-call context.
func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DisableKeepAlives:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &http.Client{
		Transport: transport,
	}
}
