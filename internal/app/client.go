// Package app owns the client session: it builds the gateway, session,
// sync loop and order tracker, and keeps the loop running exactly while the
// session is authenticated.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rpggio/hubwatch/internal/credential"
	"github.com/rpggio/hubwatch/internal/domain/dashboard"
	"github.com/rpggio/hubwatch/internal/domain/order"
	"github.com/rpggio/hubwatch/internal/domain/session"
	"github.com/rpggio/hubwatch/internal/telemetry"
	"github.com/rpggio/hubwatch/internal/transport"
)

var (
	// ErrNotAuthenticated is returned for operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotRunning is returned by Refresh when the session is
	// authenticated but the sync loop has not been started or was closed.
	ErrNotRunning = errors.New("sync loop not running")
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	PollInterval   time.Duration
	NudgeDelay     time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
	Metrics        *telemetry.Metrics
}

// Client is the single owner of one session's components.
type Client struct {
	session *session.Service
	loop    *dashboard.Loop
	orders  *order.Service
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu      sync.Mutex
	baseCtx context.Context
	handle  *dashboard.Handle
	started bool
	closed  bool
}

// New builds a client around store. The initial session state follows
// whether store already holds a token; nothing runs until Start.
func New(ctx context.Context, store credential.Store, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	gw, err := transport.NewGateway(opts.BaseURL, store,
		transport.WithHTTPClient(httpClient),
		transport.WithLogger(logger.With("component", "gateway")),
		transport.WithMetrics(opts.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway: %w", err)
	}

	sess, err := session.NewService(ctx, store, gw, logger.With("component", "session"))
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	loop := dashboard.NewLoop(gw, dashboard.Options{
		Interval: opts.PollInterval,
		Logger:   logger.With("component", "sync"),
		Metrics:  opts.Metrics,
	})
	orders := order.NewService(gw, loop, order.Options{
		NudgeDelay: opts.NudgeDelay,
		Logger:     logger.With("component", "orders"),
		Metrics:    opts.Metrics,
	})

	c := &Client{
		session: sess,
		loop:    loop,
		orders:  orders,
		logger:  logger,
		metrics: opts.Metrics,
	}

	if !sess.Authenticated() {
		orders.Reset()
	}
	gw.OnRejected(func(ctx context.Context, token string) {
		sess.Expire(ctx, token)
	})
	sess.Watch(c.onTransition)
	c.metrics.SetAuthenticated(sess.Authenticated())
	return c, nil
}

// Start begins synchronizing if the session is authenticated. Later logins
// start the loop under ctx as well.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.baseCtx = ctx
	c.mu.Unlock()

	if c.session.Authenticated() {
		c.startLoop()
	}
}

// Close stops the loop and waits for it. The stored token is kept so the
// next client on the same store resumes the session.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	h := c.handle
	c.handle = nil
	c.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

// Login authenticates and, on success, starts synchronizing.
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.session.Login(ctx, username, password)
}

// Logout ends the session locally. It never contacts the server.
func (c *Client) Logout(ctx context.Context) {
	c.session.Logout(ctx)
}

// SubmitOrder submits an order for customerName while authenticated.
func (c *Client) SubmitOrder(ctx context.Context, customerName string) (order.TrackedOrder, error) {
	if !c.session.Authenticated() {
		return order.TrackedOrder{}, ErrNotAuthenticated
	}
	tracked, err := c.orders.Submit(ctx, customerName)
	if errors.Is(err, order.ErrSessionEnded) {
		return order.TrackedOrder{}, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	return tracked, err
}

// Refresh runs one reconciliation pass on the running loop and waits for it.
// A pass cut short by logout or expiry reports ErrNotAuthenticated and
// publishes nothing.
func (c *Client) Refresh(ctx context.Context) error {
	if !c.session.Authenticated() {
		return ErrNotAuthenticated
	}
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	if h == nil {
		return c.notRunning()
	}
	if err := h.RunNow(ctx); err != nil {
		if errors.Is(err, dashboard.ErrStopped) {
			return c.notRunning()
		}
		return err
	}
	return nil
}

func (c *Client) notRunning() error {
	if !c.session.Authenticated() {
		return ErrNotAuthenticated
	}
	return ErrNotRunning
}

// Orders returns the tracked orders, most recent first.
func (c *Client) Orders() []order.TrackedOrder {
	return c.orders.Orders()
}

// Snapshot returns the current health and metrics view.
func (c *Client) Snapshot() dashboard.Snapshot {
	return c.loop.Snapshot()
}

// Subscribe streams snapshots; call the returned func to stop.
func (c *Client) Subscribe() (<-chan dashboard.Snapshot, func()) {
	return c.loop.Subscribe()
}

// State returns the session state.
func (c *Client) State() session.State {
	return c.session.State()
}

// Reason returns why the session last became anonymous.
func (c *Client) Reason() session.Reason {
	return c.session.Reason()
}

// Running reports whether the sync loop is active.
func (c *Client) Running() bool {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	if h == nil {
		return false
	}
	select {
	case <-h.Done():
		return false
	default:
		return true
	}
}

func (c *Client) onTransition(t session.Transition) {
	c.metrics.SetAuthenticated(t.To == session.StateAuthenticated)
	c.logger.Info("session transition", "from", t.From, "to", t.To, "reason", t.Reason)

	switch t.To {
	case session.StateAuthenticated:
		c.orders.Activate()
		c.startLoop()
	case session.StateAnonymous:
		c.stopLoop()
		c.orders.Reset()
		c.loop.Reset()
	}
}

func (c *Client) startLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.closed {
		return
	}
	if c.handle != nil {
		select {
		case <-c.handle.Done():
		default:
			return
		}
	}
	c.handle = c.loop.Start(c.baseCtx)
}

func (c *Client) stopLoop() {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}
