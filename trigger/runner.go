package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CycleFunc runs one projection cycle.
type CycleFunc func(ctx context.Context) error

// Runner owns the single long-lived goroutine in the process: it runs a
// cycle on every bus kick and on a backstop ticker, so projection makes
// progress even if every advisory kick is lost.
type Runner struct {
	bus      Bus
	interval time.Duration
	run      CycleFunc
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner. interval is the backstop ticker period.
func NewRunner(bus Bus, interval time.Duration, run CycleFunc, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		bus:      bus,
		interval: interval,
		run:      run,
		logger:   logger,
	}
}

// Start begins the kick/ticker loop.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx)
	}()
}

// Stop cancels the loop and waits for an in-flight cycle to complete.
func (r *Runner) Stop(_ context.Context) {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.bus.Kicks():
		case <-ticker.C:
		}

		if err := r.run(ctx); err != nil {
			// Cycle failures are logged, not fatal: every operation
			// in a cycle is idempotent, so the next kick or tick
			// retries from scratch.
			r.logger.ErrorContext(ctx, "projector cycle failed", "error", err)
		}
	}
}
