// Package telemetry exposes client-side Prometheus collectors.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one client. All methods are safe on a nil receiver.
type Metrics struct {
	Registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	syncPasses      *prometheus.CounterVec
	syncSkipped     prometheus.Counter
	orders          *prometheus.CounterVec
	sessionState    prometheus.Gauge
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hubwatch",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total number of outbound requests by path and status.",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hubwatch",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Duration of outbound requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "path"},
		),
		syncPasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hubwatch",
				Subsystem: "sync",
				Name:      "fetches_total",
				Help:      "Total number of reconciliation fetches by target and outcome.",
			},
			[]string{"target", "success"},
		),
		syncSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hubwatch",
				Subsystem: "sync",
				Name:      "skipped_ticks_total",
				Help:      "Ticks skipped because the previous pass was still running.",
			},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hubwatch",
				Subsystem: "orders",
				Name:      "submitted_total",
				Help:      "Order submissions by predicted outcome.",
			},
			[]string{"prediction"},
		),
		sessionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "hubwatch",
				Subsystem: "session",
				Name:      "authenticated",
				Help:      "1 while the client holds a session, 0 otherwise.",
			},
		),
	}

	m.Registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.syncPasses,
		m.syncSkipped,
		m.orders,
		m.sessionState,
	)
	return m
}

// Handler returns an HTTP handler exposing the registered collectors.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one outbound call. Status 0 means no response arrived.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(method, path, label).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObserveFetch records a reconciliation fetch for "health" or "metrics".
func (m *Metrics) ObserveFetch(target string, success bool) {
	if m == nil {
		return
	}
	m.syncPasses.WithLabelValues(target, strconv.FormatBool(success)).Inc()
}

// SkippedTick records a tick dropped by the overlap guard.
func (m *Metrics) SkippedTick() {
	if m == nil {
		return
	}
	m.syncSkipped.Inc()
}

// OrderSubmitted records an accepted submission by its predicted outcome.
func (m *Metrics) OrderSubmitted(prediction string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(prediction).Inc()
}

// SetAuthenticated mirrors the session state.
func (m *Metrics) SetAuthenticated(authenticated bool) {
	if m == nil {
		return
	}
	if authenticated {
		m.sessionState.Set(1)
		return
	}
	m.sessionState.Set(0)
}
