package order

import (
	"context"
	"time"
)

// OrdersPath is the creation endpoint.
const OrdersPath = "/orders"

// Fixed line item sent with every submission.
const (
	DemoProductID = "demo-prod"
	DemoQuantity  = 1
	DemoUnitPrice = 100.0
)

// Outcome is a predicted processing result. It is never reported by the
// server; see PredictOutcome.
type Outcome string

const (
	// OutcomeQueued predicts the order was accepted into the processing queue.
	OutcomeQueued Outcome = "QUEUED"
	// OutcomeFailed predicts the order was routed to the dead-letter path.
	OutcomeFailed Outcome = "FAILED"
)

// TrackedOrder is an optimistic, immutable record of an accepted submission.
type TrackedOrder struct {
	CorrelationID    string    `json:"correlation_id"`
	CustomerName     string    `json:"customer_name"`
	TotalAmount      float64   `json:"total_amount"`
	PredictedOutcome Outcome   `json:"predicted_outcome"`
	ServerStatus     string    `json:"server_status,omitempty"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// Item is one line of a creation request.
type Item struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// CreateRequest is the creation request body.
type CreateRequest struct {
	CustomerName string `json:"customer_name"`
	Items        []Item `json:"items"`
}

// CreateResponse is the subset of the creation response the client reads.
// ServerStatus is the status stored at creation time (e.g. "PENDING") and
// says nothing about downstream processing.
type CreateResponse struct {
	OrderUUID    string   `json:"order_uuid"`
	CustomerName string   `json:"customer_name"`
	TotalAmount  *float64 `json:"total_amount"`
	Status       string   `json:"status"`
}

// Requester issues JSON calls through the authenticated gateway.
type Requester interface {
	Send(ctx context.Context, method, path string, body, out any) error
}

// Nudger schedules one extra reconciliation pass.
type Nudger interface {
	Nudge(delay time.Duration)
}
