package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rpggio/hubwatch/internal/credential"
	"github.com/rpggio/hubwatch/internal/telemetry"
)

// ErrRequestFailed is matched by every error the gateway returns for a call
// that did not produce a decoded 2xx response.
var ErrRequestFailed = errors.New("request failed")

const maxResponseBytes = 1 << 20

// RequestError describes a failed call. StatusCode is zero when no response arrived.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is reports ErrRequestFailed for every RequestError and ErrUnauthorized for 401/403 responses.
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrRequestFailed:
		return true
	case ErrUnauthorized:
		return isAuthStatus(e.StatusCode)
	}
	return false
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// RejectedFunc is invoked when a call that carried token was refused by the server.
type RejectedFunc func(ctx context.Context, token string)

// Gateway sends every outbound call to the order service. It attaches the
// stored token as a bearer credential when one is present, for every
// endpoint alike; which routes are protected is decided by the server.
type Gateway struct {
	baseURL *url.URL
	client  *http.Client
	store   credential.Store
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu         sync.RWMutex
	onRejected RejectedFunc
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *Gateway) { g.client = client }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = logger }
}

// WithMetrics records request counters.
func WithMetrics(metrics *telemetry.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = metrics }
}

// NewGateway creates a gateway rooted at baseURL.
func NewGateway(baseURL string, store credential.Store, opts ...GatewayOption) (*Gateway, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	g := &Gateway{
		baseURL: u,
		client:  &http.Client{Timeout: 10 * time.Second},
		store:   store,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g, nil
}

// OnRejected registers the callback run when the server refuses a token the
// gateway sent. It runs on its own goroutine so callers may tear down
// components that are themselves waiting on the gateway.
func (g *Gateway) OnRejected(fn RejectedFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onRejected = fn
}

// Send issues a call with an optional JSON body and decodes a JSON response into out.
func (g *Gateway) Send(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Method: method, Path: path, Err: fmt.Errorf("encode body: %w", err)}
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return g.do(ctx, method, path, contentType, reader, out, true)
}

// PostForm issues a form-encoded POST and decodes a JSON response into out.
// Form posts carry their own credentials, so a refusal never runs the
// rejection callback.
func (g *Gateway) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	return g.do(ctx, http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), out, false)
}

func (g *Gateway) do(ctx context.Context, method, path, contentType string, body io.Reader, out any, reportRejection bool) error {
	token, _, err := g.store.Get(ctx)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: fmt.Errorf("read credential: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL.JoinPath(path).String(), body)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	SetBearer(req, token)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.metrics.ObserveRequest(method, path, 0, time.Since(start))
		g.logger.Debug("request failed", "method", method, "path", path, "error", err)
		return &RequestError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	g.metrics.ObserveRequest(method, path, resp.StatusCode, time.Since(start))
	g.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	limited := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(limited, 512))
		if reportRejection && isAuthStatus(resp.StatusCode) && token != "" {
			g.rejected(ctx, token)
		}
		return &RequestError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(detail))),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, limited)
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (g *Gateway) rejected(ctx context.Context, token string) {
	g.mu.RLock()
	fn := g.onRejected
	g.mu.RUnlock()
	if fn == nil {
		return
	}
	go fn(context.WithoutCancel(ctx), token)
}
