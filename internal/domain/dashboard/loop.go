package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/rpggio/hubwatch/internal/telemetry"
)

// DefaultInterval is the fixed polling cadence. There is no backoff or
// jitter: under sustained failure the loop polls at the steady-state rate.
const DefaultInterval = 5 * time.Second

// Options configures a Loop.
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *telemetry.Metrics
}

// Loop reconciles health and aggregate metrics with the order service and
// republishes the result to subscribers.
type Loop struct {
	gateway  Requester
	interval time.Duration
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	mu      sync.Mutex
	snap    Snapshot
	subs    map[int]chan Snapshot
	nextSub int
	current *Handle
}

// NewLoop creates a loop that is not yet running.
func NewLoop(gateway Requester, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loop{
		gateway:  gateway,
		interval: opts.Interval,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		snap:     initialSnapshot(),
		subs:     make(map[int]chan Snapshot),
	}
}

// Snapshot returns the current view state.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}

// Subscribe returns a channel receiving every published snapshot, starting
// with the current one. A slow reader only misses intermediate values.
func (l *Loop) Subscribe() (<-chan Snapshot, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- l.snap
	l.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
}

// Reset restores the pre-session view (health Unknown, no metrics).
func (l *Loop) Reset() {
	l.update(func(s *Snapshot) { *s = initialSnapshot() })
}

// Start runs one pass immediately and then one per interval until the
// returned handle is stopped or ctx is cancelled.
func (l *Loop) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	cronLog := cronLogger{logger: l.logger}
	h := &Handle{
		loop:   l,
		ctx:    ctx,
		cancel: cancel,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		timers: make(map[int]*time.Timer),
	}

	l.mu.Lock()
	l.current = h
	l.mu.Unlock()

	h.cron.Schedule(every(l.interval), cron.FuncJob(h.tick))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runQueued()
	}()
	h.cron.Start()

	go func() {
		<-ctx.Done()
		h.Stop()
	}()

	l.logger.Info("sync loop started", "interval", l.interval)
	return h
}

// Nudge schedules one extra pass on the running loop after delay. It is a
// no-op when the loop is not running.
func (l *Loop) Nudge(delay time.Duration) {
	l.mu.Lock()
	h := l.current
	l.mu.Unlock()
	if h != nil {
		h.Nudge(delay)
	}
}

// RunNow runs one pass on the running loop and waits for it. It returns
// ErrStopped when the loop is not running.
func (l *Loop) RunNow(ctx context.Context) error {
	l.mu.Lock()
	h := l.current
	l.mu.Unlock()
	if h == nil {
		return ErrStopped
	}
	return h.RunNow(ctx)
}

// RunPass performs one reconciliation pass synchronously, outside any
// running handle.
func (l *Loop) RunPass(ctx context.Context) {
	l.pass(ctx)
}

func (l *Loop) pass(ctx context.Context) {
	var (
		g          errgroup.Group
		metricsErr error
		healthErr  error
	)
	// Each fetch applies its own field as soon as it resolves; neither
	// outcome affects the other.
	g.Go(func() error {
		metricsErr = l.syncMetrics(ctx)
		return nil
	})
	g.Go(func() error {
		healthErr = l.syncHealth(ctx)
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		return
	}
	err := errors.Join(metricsErr, healthErr)
	l.update(func(s *Snapshot) {
		s.LastSync = time.Now()
		if err == nil {
			s.LastError = ""
		} else {
			s.LastError = err.Error()
		}
	})
}

func (l *Loop) syncMetrics(ctx context.Context) error {
	var raw json.RawMessage
	err := l.gateway.Send(ctx, http.MethodGet, MetricsPath, nil, &raw)
	var m Metrics
	if err == nil {
		m, err = ParseMetrics(raw)
	}
	if ctx.Err() != nil {
		return nil
	}
	l.metrics.ObserveFetch("metrics", err == nil)
	if err != nil {
		l.logger.Warn("metrics refresh failed", "error", err)
		return err
	}
	l.update(func(s *Snapshot) {
		s.Metrics = m
		s.MetricsKnown = true
	})
	return nil
}

func (l *Loop) syncHealth(ctx context.Context) error {
	var resp HealthResponse
	err := l.gateway.Send(ctx, http.MethodGet, HealthPath, nil, &resp)
	if ctx.Err() != nil {
		return nil
	}
	l.metrics.ObserveFetch("health", err == nil)
	if err != nil {
		l.logger.Warn("health check failed", "error", err)
		return err
	}
	health := HealthFromStatus(resp.Status)
	l.update(func(s *Snapshot) { s.Health = health })
	return nil
}

func (l *Loop) update(fn func(*Snapshot)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.snap)
	for _, ch := range l.subs {
		publish(ch, l.snap)
	}
}

func publish(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	// Replace the unread value with the newer one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func (l *Loop) release(h *Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == h {
		l.current = nil
	}
}

// every is a constant-delay schedule. Unlike cron.Every it keeps
// sub-second precision.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}
