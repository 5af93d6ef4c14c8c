package order

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpggio/hubwatch/internal/telemetry"
)

// DefaultNudgeDelay is how long after a submission the extra pass runs.
const DefaultNudgeDelay = time.Second

// Options configures a Service.
type Options struct {
	NudgeDelay time.Duration
	Logger     *slog.Logger
	Metrics    *telemetry.Metrics
}

// Service submits orders and keeps the session's tracked orders, most
// recent first.
type Service struct {
	gateway    Requester
	nudger     Nudger
	nudgeDelay time.Duration
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time

	mu     sync.Mutex
	orders []TrackedOrder
	// active is false between Reset and Activate. gen counts resets so a
	// submission that straddles one is dropped.
	active bool
	gen    uint64
}

// NewService creates an order service. nudger may be nil.
func NewService(gateway Requester, nudger Nudger, opts Options) *Service {
	if opts.NudgeDelay <= 0 {
		opts.NudgeDelay = DefaultNudgeDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		gateway:    gateway,
		nudger:     nudger,
		nudgeDelay: opts.NudgeDelay,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        time.Now,
		active:     true,
	}
}

// Submit sends a creation request for customerName. On success the order is
// prepended to the tracked list and one follow-up reconciliation pass is
// scheduled. On failure nothing is recorded.
func (s *Service) Submit(ctx context.Context, customerName string) (TrackedOrder, error) {
	if strings.TrimSpace(customerName) == "" {
		return TrackedOrder{}, fmt.Errorf("%w: customer name is required", ErrInvalidInput)
	}

	s.mu.Lock()
	gen, active := s.gen, s.active
	s.mu.Unlock()
	if !active {
		return TrackedOrder{}, ErrSessionEnded
	}

	var resp CreateResponse
	if err := s.gateway.Send(ctx, http.MethodPost, OrdersPath, NewCreateRequest(customerName), &resp); err != nil {
		s.logger.Warn("order submission failed", "customer", customerName, "error", err)
		return TrackedOrder{}, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	if _, err := uuid.Parse(resp.OrderUUID); err != nil {
		return TrackedOrder{}, fmt.Errorf("%w: correlation id %q: %w", ErrInvalidResponse, resp.OrderUUID, err)
	}
	if resp.TotalAmount == nil {
		return TrackedOrder{}, fmt.Errorf("%w: missing total_amount", ErrInvalidResponse)
	}

	tracked := TrackedOrder{
		CorrelationID:    resp.OrderUUID,
		CustomerName:     customerName,
		TotalAmount:      *resp.TotalAmount,
		PredictedOutcome: PredictOutcome(customerName),
		ServerStatus:     resp.Status,
		SubmittedAt:      s.now(),
	}

	s.mu.Lock()
	if !s.active || s.gen != gen {
		s.mu.Unlock()
		s.logger.Info("order accepted after session ended; not tracked", "correlation_id", tracked.CorrelationID)
		return TrackedOrder{}, ErrSessionEnded
	}
	s.orders = append([]TrackedOrder{tracked}, s.orders...)
	s.mu.Unlock()

	s.metrics.OrderSubmitted(string(tracked.PredictedOutcome))
	s.logger.Info("order submitted",
		"correlation_id", tracked.CorrelationID,
		"customer", customerName,
		"predicted", tracked.PredictedOutcome,
	)

	if s.nudger != nil {
		s.nudger.Nudge(s.nudgeDelay)
	}
	return tracked, nil
}

// Orders returns a copy of the tracked orders, most recent first.
func (s *Service) Orders() []TrackedOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrackedOrder, len(s.orders))
	copy(out, s.orders)
	return out
}

// Reset forgets every tracked order and refuses submissions until Activate.
// Called when the session ends.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = nil
	s.active = false
	s.gen++
}

// Activate accepts submissions again. Called when a session begins.
func (s *Service) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
}
