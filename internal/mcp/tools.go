package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerTools(server *sdkmcp.Server, console Console) {
	t := &tools{console: console}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "login",
		Description: "Exchange username and password for a bearer token and start synchronizing",
	}, t.login)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "logout",
		Description: "Discard the stored token locally and stop synchronizing",
	}, t.logout)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_status",
		Description: "Session state, API health and aggregate metrics from the latest sync",
	}, t.status)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_orders",
		Description: "Orders submitted in this session, most recent first",
	}, t.listOrders)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "submit_order",
		Description: "Submit a demo order (one demo-prod at 100) for a customer",
	}, t.submitOrder)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "refresh",
		Description: "Run one reconciliation pass now and return the resulting status",
	}, t.refresh)
}

type tools struct {
	console Console
}

func (t *tools) login(ctx context.Context, _ *sdkmcp.CallToolRequest, in LoginParams) (*sdkmcp.CallToolResult, SessionResponse, error) {
	if err := t.console.Login(ctx, in.Username, in.Password); err != nil {
		return nil, SessionResponse{}, toolError(err)
	}
	return nil, t.session(), nil
}

func (t *tools) logout(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, SessionResponse, error) {
	t.console.Logout(ctx)
	return nil, t.session(), nil
}

func (t *tools) status(_ context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, StatusResponse, error) {
	return nil, toStatusResponse(t.session(), t.console.Snapshot()), nil
}

func (t *tools) listOrders(_ context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, ListOrdersResponse, error) {
	orders := t.console.Orders()
	resp := ListOrdersResponse{Orders: make([]OrderResponse, 0, len(orders))}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(o))
	}
	return nil, resp, nil
}

func (t *tools) submitOrder(ctx context.Context, _ *sdkmcp.CallToolRequest, in SubmitOrderParams) (*sdkmcp.CallToolResult, OrderResponse, error) {
	tracked, err := t.console.SubmitOrder(ctx, in.CustomerName)
	if err != nil {
		return nil, OrderResponse{}, toolError(err)
	}
	return nil, toOrderResponse(tracked), nil
}

func (t *tools) refresh(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, StatusResponse, error) {
	if err := t.console.Refresh(ctx); err != nil {
		return nil, StatusResponse{}, toolError(err)
	}
	return nil, toStatusResponse(t.session(), t.console.Snapshot()), nil
}

func (t *tools) session() SessionResponse {
	return SessionResponse{
		State:  string(t.console.State()),
		Reason: string(t.console.Reason()),
	}
}
