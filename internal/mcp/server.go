// Package mcp exposes the client session as MCP tools so an agent or an MCP
// inspector can drive it over stdio.
package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/hubwatch/internal/domain/dashboard"
	"github.com/rpggio/hubwatch/internal/domain/order"
	"github.com/rpggio/hubwatch/internal/domain/session"
)

// Console is the client surface driven by the tools.
type Console interface {
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context)
	SubmitOrder(ctx context.Context, customerName string) (order.TrackedOrder, error)
	Refresh(ctx context.Context) error
	Orders() []order.TrackedOrder
	Snapshot() dashboard.Snapshot
	State() session.State
	Reason() session.Reason
}

// Config contains server configuration.
type Config struct {
	Console Console
	Version string
	Logger  *slog.Logger
}

// NewServer creates an MCP server with every console tool registered.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "hubwatch",
		Version: cfg.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Console)

	return server
}
