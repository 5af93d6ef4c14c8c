package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Remote read endpoints reconciled by every pass.
const (
	HealthPath  = "/health"
	MetricsPath = "/analytics/dashboard"
)

// Health is the displayed API status.
type Health string

const (
	HealthUnknown Health = "Unknown"
	HealthOnline  Health = "ONLINE"
	HealthDown    Health = "DOWN"
)

// HealthResponse is the body of the health probe.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthFromStatus maps the probe's status string. Only "healthy" is ONLINE.
func HealthFromStatus(status string) Health {
	if status == "healthy" {
		return HealthOnline
	}
	return HealthDown
}

// Metrics are the aggregate totals. Raw keeps the whole document so that
// renderers can show fields the client does not interpret.
type Metrics struct {
	TotalSales  float64         `json:"total_sales"`
	TotalOrders int64           `json:"total_orders"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// ParseMetrics reads the two interpreted fields from an analytics document.
// Missing totals read as zero.
func ParseMetrics(raw []byte) (Metrics, error) {
	if !gjson.ValidBytes(raw) {
		return Metrics{}, fmt.Errorf("invalid metrics document")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Metrics{}, fmt.Errorf("metrics document is %s, not an object", doc.Type)
	}
	return Metrics{
		TotalSales:  doc.Get("total_sales").Float(),
		TotalOrders: doc.Get("total_orders").Int(),
		Raw:         append(json.RawMessage(nil), raw...),
	}, nil
}

// Snapshot is the view state republished after every applied update.
type Snapshot struct {
	Health       Health    `json:"health"`
	Metrics      Metrics   `json:"metrics"`
	MetricsKnown bool      `json:"metrics_known"`
	LastSync     time.Time `json:"last_sync,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

func initialSnapshot() Snapshot {
	return Snapshot{Health: HealthUnknown}
}

// Requester issues JSON calls through the authenticated gateway.
type Requester interface {
	Send(ctx context.Context, method, path string, body, out any) error
}
