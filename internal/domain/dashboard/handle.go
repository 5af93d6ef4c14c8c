package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrStopped is returned when a pass is requested from a stopped loop.
var ErrStopped = errors.New("sync loop stopped")

// Handle controls one running loop.
type Handle struct {
	loop   *Loop
	ctx    context.Context
	cancel context.CancelFunc
	cron   *cron.Cron

	// passMu admits one pass at a time. Ticks that find it held are
	// skipped; nudges and the initial pass wait for it.
	passMu sync.Mutex
	wg     sync.WaitGroup

	mu        sync.Mutex
	stopped   bool
	timers    map[int]*time.Timer
	nextTimer int
	stopOnce  sync.Once
}

// Stop cancels in-flight calls, prevents further ticks and nudges, and
// returns once every pass started by this handle has returned.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()

		h.mu.Lock()
		h.stopped = true
		for id, t := range h.timers {
			if t.Stop() {
				h.wg.Done()
			}
			delete(h.timers, id)
		}
		h.mu.Unlock()

		<-h.cron.Stop().Done()
		h.wg.Wait()
		h.loop.release(h)
		h.loop.logger.Info("sync loop stopped")
	})
}

// Done is closed when the handle's context ends.
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Nudge schedules exactly one extra pass after delay. It is dropped silently
// if the handle stops first.
func (h *Handle) Nudge(delay time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}

	id := h.nextTimer
	h.nextTimer++
	h.wg.Add(1)
	h.timers[id] = time.AfterFunc(delay, func() {
		defer h.wg.Done()
		h.mu.Lock()
		delete(h.timers, id)
		h.mu.Unlock()
		h.runQueued()
	})
}

// RunNow runs one pass and waits for it, queueing behind a pass already in
// progress. The pass is cancelled when either ctx or the handle ends, and
// Stop waits for it like any other pass.
func (h *Handle) RunNow(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return ErrStopped
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	h.passMu.Lock()
	defer h.passMu.Unlock()
	if h.ctx.Err() != nil {
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	h.loop.pass(ctx)
	if h.ctx.Err() != nil {
		return ErrStopped
	}
	return ctx.Err()
}

func (h *Handle) tick() {
	if !h.passMu.TryLock() {
		h.loop.metrics.SkippedTick()
		h.loop.logger.Debug("skipping tick, previous pass still running")
		return
	}
	defer h.passMu.Unlock()
	if h.ctx.Err() != nil {
		return
	}
	h.loop.pass(h.ctx)
}

func (h *Handle) runQueued() {
	h.passMu.Lock()
	defer h.passMu.Unlock()
	if h.ctx.Err() != nil {
		return
	}
	h.loop.pass(h.ctx)
}
