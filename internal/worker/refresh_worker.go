// Package worker runs the periodic portfolio valuation refresh.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/portfolio-tracker/internal/logging"
)

// Refresher is the valuation sweep the worker drives
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// RefreshWorker re-prices every portfolio on a fixed interval. A tick
// that fires while the previous sweep is still running is skipped, so
// slow sweeps never pile up.
type RefreshWorker struct {
	refresher Refresher
	interval  time.Duration
	running   bool
	sweeping  bool
	mu        sync.Mutex
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewRefreshWorker creates a new refresh worker
func NewRefreshWorker(refresher Refresher, interval time.Duration) *RefreshWorker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &RefreshWorker{
		refresher: refresher,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the refresh loop
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("refresh worker is already running")
	}
	w.running = true
	w.mu.Unlock()

	logging.FromContext(ctx).WithField("interval", w.interval.String()).Info("Starting valuation refresh worker")

	go w.loop(ctx)
	return nil
}

// Stop gracefully stops the refresh loop, waiting for an in-flight
// sweep to finish or the context to expire.
func (w *RefreshWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("refresh worker is not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
		logging.FromContext(ctx).Info("Valuation refresh worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *RefreshWorker) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// One sweep at startup so valuations are fresh before the first tick
	w.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep runs one refresh pass unless one is already in flight
func (w *RefreshWorker) sweep(ctx context.Context) {
	w.mu.Lock()
	if w.sweeping {
		w.mu.Unlock()
		logging.FromContext(ctx).Warn("Previous valuation sweep still running, skipping tick")
		return
	}
	w.sweeping = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.sweeping = false
		w.mu.Unlock()
	}()

	start := time.Now()
	if err := w.refresher.RefreshAll(ctx); err != nil {
		logging.FromContext(ctx).WithError(err).Error("Valuation sweep failed")
		return
	}
	logging.FromContext(ctx).WithField("duration", time.Since(start).String()).Debug("Valuation sweep complete")
}
