package mcp

import (
	"time"

	"github.com/rpggio/hubwatch/internal/domain/dashboard"
	"github.com/rpggio/hubwatch/internal/domain/order"
)

type LoginParams struct {
	Username string `json:"username" jsonschema:"account name"`
	Password string `json:"password" jsonschema:"account password"`
}

type SubmitOrderParams struct {
	CustomerName string `json:"customer_name" jsonschema:"customer the demo order is placed for; a name containing ERROR is predicted to fail"`
}

type EmptyParams struct{}

type SessionResponse struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

type StatusResponse struct {
	State        string  `json:"state"`
	Reason       string  `json:"reason,omitempty"`
	Health       string  `json:"health"`
	MetricsKnown bool    `json:"metrics_known"`
	TotalSales   float64 `json:"total_sales"`
	TotalOrders  int64   `json:"total_orders"`
	LastSync     string  `json:"last_sync,omitempty"`
	LastError    string  `json:"last_error,omitempty"`
}

type OrderResponse struct {
	CorrelationID    string  `json:"correlation_id"`
	CustomerName     string  `json:"customer_name"`
	TotalAmount      float64 `json:"total_amount"`
	PredictedOutcome string  `json:"predicted_outcome"`
	ServerStatus     string  `json:"server_status,omitempty"`
	SubmittedAt      string  `json:"submitted_at"`
}

type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
}

func toOrderResponse(o order.TrackedOrder) OrderResponse {
	return OrderResponse{
		CorrelationID:    o.CorrelationID,
		CustomerName:     o.CustomerName,
		TotalAmount:      o.TotalAmount,
		PredictedOutcome: string(o.PredictedOutcome),
		ServerStatus:     o.ServerStatus,
		SubmittedAt:      o.SubmittedAt.UTC().Format(time.RFC3339),
	}
}

func toStatusResponse(sess SessionResponse, snap dashboard.Snapshot) StatusResponse {
	resp := StatusResponse{
		State:        sess.State,
		Reason:       sess.Reason,
		Health:       string(snap.Health),
		MetricsKnown: snap.MetricsKnown,
		LastError:    snap.LastError,
	}
	if snap.MetricsKnown {
		resp.TotalSales = snap.Metrics.TotalSales
		resp.TotalOrders = snap.Metrics.TotalOrders
	}
	if !snap.LastSync.IsZero() {
		resp.LastSync = snap.LastSync.UTC().Format(time.RFC3339)
	}
	return resp
}
