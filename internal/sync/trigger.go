package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// CycleRunner starts sync cycles. *Orchestrator is the real
// implementation; tests use fakes to observe trigger behavior.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Trigger converges the three cycle sources onto the orchestrator's
// single-flight guard: a periodic timer, debounced filesystem
// notifications, and manual kicks. It performs no sync work itself.
type Trigger struct {
	runner   CycleRunner
	interval time.Duration
	debounce time.Duration
	logger   *slog.Logger

	// Both channels have capacity 1; a pending signal already covers any
	// burst behind it.
	kicks  chan struct{}
	notify chan struct{}
}

// NewTrigger creates a Trigger. interval is the periodic cadence;
// debounce is the quiet window applied to filesystem notifications.
func NewTrigger(runner CycleRunner, interval, debounce time.Duration, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}

	return &Trigger{
		runner:   runner,
		interval: interval,
		debounce: debounce,
		logger:   logger,
		kicks:    make(chan struct{}, 1),
		notify:   make(chan struct{}, 1),
	}
}

// Kick requests an immediate cycle. Non-blocking; coalesces with any
// pending kick.
func (t *Trigger) Kick() {
	select {
	case t.kicks <- struct{}{}:
	default:
	}
}

// Notify reports a filesystem change. The cycle starts once the debounce
// window passes with no further notifications.
func (t *Trigger) Notify() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Run drives the trigger loop until the context is canceled. An initial
// cycle runs immediately so a freshly started daemon converges without
// waiting for the first tick.
func (t *Trigger) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	// Debounce timer starts idle; reset on every notification.
	debounce := time.NewTimer(t.debounce)
	debounce.Stop()
	defer debounce.Stop()

	debounceActive := false

	t.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			t.runCycle(ctx)

		case <-t.kicks:
			t.runCycle(ctx)

		case <-t.notify:
			// New event arrived: reset the quiet-window timer.
			if !debounce.Stop() && debounceActive {
				<-debounce.C
			}

			debounce.Reset(t.debounce)
			debounceActive = true

		case <-debounce.C:
			debounceActive = false

			t.runCycle(ctx)
		}
	}
}

// runCycle starts one cycle, swallowing the single-flight rejection. The
// running cycle's own execution re-fires the watcher; the debounce plus
// the guard collapse that cascade into at most one follow-up.
func (t *Trigger) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	err := t.runner.RunCycle(ctx)
	if err == nil || errors.Is(err, ErrSyncInProgress) {
		return
	}

	t.logger.Warn("cycle failed", slog.String("error", err.Error()))
}
