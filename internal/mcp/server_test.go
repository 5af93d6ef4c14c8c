package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/hubwatch/internal/app"
	"github.com/rpggio/hubwatch/internal/domain/dashboard"
	"github.com/rpggio/hubwatch/internal/domain/order"
	"github.com/rpggio/hubwatch/internal/domain/session"
)

type consoleStub struct {
	loginFn  func(context.Context, string, string) error
	submitFn func(context.Context, string) (order.TrackedOrder, error)
	refresh  func(context.Context) error

	state      session.State
	reason     session.Reason
	orders     []order.TrackedOrder
	snapshot   dashboard.Snapshot
	logoutHits int
}

func (c *consoleStub) Login(ctx context.Context, username, password string) error {
	if err := c.loginFn(ctx, username, password); err != nil {
		return err
	}
	c.state = session.StateAuthenticated
	c.reason = session.ReasonNone
	return nil
}

func (c *consoleStub) Logout(context.Context) {
	c.logoutHits++
	c.state = session.StateAnonymous
	c.reason = session.ReasonLogout
}

func (c *consoleStub) SubmitOrder(ctx context.Context, customerName string) (order.TrackedOrder, error) {
	return c.submitFn(ctx, customerName)
}

func (c *consoleStub) Refresh(ctx context.Context) error {
	if c.refresh == nil {
		return nil
	}
	return c.refresh(ctx)
}

func (c *consoleStub) Orders() []order.TrackedOrder { return c.orders }
func (c *consoleStub) Snapshot() dashboard.Snapshot { return c.snapshot }
func (c *consoleStub) State() session.State         { return c.state }
func (c *consoleStub) Reason() session.Reason       { return c.reason }

func connect(t *testing.T, console Console) *sdkmcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	server := NewServer(Config{Console: console, Logger: slog.New(slog.DiscardHandler)})
	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		clientSession.Close()
		serverSession.Close()
		cancel()
	})
	return clientSession
}

func callTool(t *testing.T, cs *sdkmcp.ClientSession, name string, args map[string]any) (*sdkmcp.CallToolResult, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if args == nil {
		args = map[string]any{}
	}
	result, err := cs.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err, "CallTool %s failed", name)
	for _, content := range result.Content {
		if text, ok := content.(*sdkmcp.TextContent); ok {
			return result, text.Text
		}
	}
	t.Fatalf("tool %s returned no text content", name)
	return nil, ""
}

func TestServer_ListsTools(t *testing.T) {
	cs := connect(t, &consoleStub{state: session.StateAnonymous})

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, []string{"login", "logout", "get_status", "list_orders", "submit_order", "refresh"}, names)
}

func TestServer_LoginAndStatus(t *testing.T) {
	console := &consoleStub{
		state: session.StateAnonymous,
		loginFn: func(_ context.Context, username, password string) error {
			if username == "admin" && password == "admin123" {
				return nil
			}
			return fmt.Errorf("%w: status 401", session.ErrInvalidCredentials)
		},
		snapshot: dashboard.Snapshot{
			Health:       dashboard.HealthOnline,
			MetricsKnown: true,
			Metrics:      dashboard.Metrics{TotalSales: 300, TotalOrders: 3},
			LastSync:     time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		},
	}
	cs := connect(t, console)

	result, text := callTool(t, cs, "login", map[string]any{"username": "admin", "password": "nope"})
	require.True(t, result.IsError)
	require.Contains(t, text, "INVALID_CREDENTIALS")

	result, text = callTool(t, cs, "login", map[string]any{"username": "admin", "password": "admin123"})
	require.False(t, result.IsError)
	require.JSONEq(t, `{"state":"AUTHENTICATED"}`, text)

	_, text = callTool(t, cs, "get_status", nil)
	var status StatusResponse
	require.NoError(t, json.Unmarshal([]byte(text), &status))
	require.Equal(t, "ONLINE", status.Health)
	require.Equal(t, 300.0, status.TotalSales)
	require.Equal(t, int64(3), status.TotalOrders)
	require.Equal(t, "2025-01-01T10:00:00Z", status.LastSync)
}

func TestServer_SubmitAndListOrders(t *testing.T) {
	submitted := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	console := &consoleStub{state: session.StateAuthenticated}
	console.submitFn = func(_ context.Context, name string) (order.TrackedOrder, error) {
		if name == "" {
			return order.TrackedOrder{}, fmt.Errorf("%w: customer name is required", order.ErrInvalidInput)
		}
		tracked := order.TrackedOrder{
			CorrelationID:    "2f1c1b0e-8d6a-4b8e-9a57-0d3c1f1b2a11",
			CustomerName:     name,
			TotalAmount:      100,
			PredictedOutcome: order.PredictOutcome(name),
			ServerStatus:     "PENDING",
			SubmittedAt:      submitted,
		}
		console.orders = append([]order.TrackedOrder{tracked}, console.orders...)
		return tracked, nil
	}
	cs := connect(t, console)

	result, text := callTool(t, cs, "submit_order", map[string]any{"customer_name": "Bob ERROR"})
	require.False(t, result.IsError)
	var created OrderResponse
	require.NoError(t, json.Unmarshal([]byte(text), &created))
	require.Equal(t, "FAILED", created.PredictedOutcome)
	require.Equal(t, "2025-01-01T10:00:00Z", created.SubmittedAt)

	result, text = callTool(t, cs, "submit_order", map[string]any{"customer_name": ""})
	require.True(t, result.IsError)
	require.Contains(t, text, "INVALID_INPUT")

	_, text = callTool(t, cs, "list_orders", nil)
	var list ListOrdersResponse
	require.NoError(t, json.Unmarshal([]byte(text), &list))
	require.Len(t, list.Orders, 1)
	require.Equal(t, "Bob ERROR", list.Orders[0].CustomerName)
}

func TestServer_RequiresSession(t *testing.T) {
	console := &consoleStub{
		state:  session.StateAnonymous,
		reason: session.ReasonExpired,
		submitFn: func(context.Context, string) (order.TrackedOrder, error) {
			return order.TrackedOrder{}, app.ErrNotAuthenticated
		},
		refresh: func(context.Context) error { return app.ErrNotAuthenticated },
	}
	cs := connect(t, console)

	result, text := callTool(t, cs, "submit_order", map[string]any{"customer_name": "Alice"})
	require.True(t, result.IsError)
	require.Contains(t, text, "NOT_AUTHENTICATED")

	result, text = callTool(t, cs, "refresh", nil)
	require.True(t, result.IsError)
	require.Contains(t, text, "NOT_AUTHENTICATED")

	_, text = callTool(t, cs, "get_status", nil)
	var status StatusResponse
	require.NoError(t, json.Unmarshal([]byte(text), &status))
	require.Equal(t, "ANONYMOUS", status.State)
	require.Equal(t, "expired", status.Reason)
	require.False(t, status.MetricsKnown)
}

func TestServer_Logout(t *testing.T) {
	console := &consoleStub{state: session.StateAuthenticated}
	cs := connect(t, console)

	_, text := callTool(t, cs, "logout", nil)
	require.JSONEq(t, `{"state":"ANONYMOUS","reason":"logout"}`, text)
	require.Equal(t, 1, console.logoutHits)
}

func TestMapError(t *testing.T) {
	require.Nil(t, MapError(nil))
	require.Nil(t, MapError(fmt.Errorf("boom")))

	apiErr := MapError(fmt.Errorf("%w: upstream 500", order.ErrSubmitFailed))
	require.Equal(t, "SUBMIT_FAILED", apiErr.Code)
	require.ErrorIs(t, apiErr, order.ErrSubmitFailed)

	require.Equal(t, "NOT_RUNNING", MapError(app.ErrNotRunning).Code)
	ended := fmt.Errorf("%w: %w", app.ErrNotAuthenticated, order.ErrSessionEnded)
	require.Equal(t, "NOT_AUTHENTICATED", MapError(ended).Code)
}
