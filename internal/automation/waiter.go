package automation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
)

// DefaultPollInterval is the pause between condition checks
const DefaultPollInterval = 100 * time.Millisecond

// Wait outcomes reported to a WaitObserver
const (
	WaitSatisfied = "satisfied"
	WaitTimedOut  = "timeout"
	WaitFailed    = "error"
)

// Probe is what the wait engine needs from the page. One probe call is
// made per tick.
type Probe interface {
	QuerySelectorAll(ctx context.Context, selector string) ([]int64, error)
	ElementVisible(ctx context.Context, selector string) (bool, error)
	ElementClickable(ctx context.Context, selector string) (bool, error)
	TextPresent(ctx context.Context, text string) (bool, error)
	CurrentURL(ctx context.Context) (string, error)
	ReadyState(ctx context.Context) (string, error)
}

// WaitObserver receives the outcome of every Await
type WaitObserver interface {
	ObserveWait(condition string, outcome string, duration time.Duration)
}

// Waiter polls a condition until it holds or the deadline passes
type Waiter struct {
	probe    Probe
	interval time.Duration
	observer WaitObserver
	logger   *slog.Logger
}

// NewWaiter creates a wait engine. A non-positive interval uses
// DefaultPollInterval.
func NewWaiter(probe Probe, interval time.Duration, observer WaitObserver, logger *slog.Logger) *Waiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Waiter{probe: probe, interval: interval, observer: observer, logger: logger}
}

// Await blocks until cond holds, returning nil immediately on the first
// satisfied tick. If deadline elapses first it returns a *cdp.TimeoutError
// carrying the deadline. Errors from individual checks mean "not yet",
// except a dead connection, which ends the wait. Canceling ctx ends the
// wait with ctx.Err().
func (w *Waiter) Await(ctx context.Context, cond Condition, deadline time.Duration) error {
	started := time.Now()
	err := w.await(ctx, cond, deadline)

	outcome := WaitSatisfied
	var timeoutErr *cdp.TimeoutError
	switch {
	case errors.As(err, &timeoutErr):
		outcome = WaitTimedOut
	case err != nil:
		outcome = WaitFailed
	}
	if w.observer != nil {
		w.observer.ObserveWait(string(cond.Kind()), outcome, time.Since(started))
	}

	w.logger.Debug("wait finished", "condition", cond.String(), "outcome", outcome, "elapsed", time.Since(started))
	return err
}

func (w *Waiter) await(ctx context.Context, cond Condition, deadline time.Duration) error {
	if deadline <= 0 {
		return errors.New("wait deadline must be positive")
	}
	if cond.Kind() == "" {
		return errors.New("empty wait condition")
	}
	timedOut := &cdp.TimeoutError{Method: "wait " + cond.String(), Timeout: deadline}

	if cond.Kind() == KindNetworkIdle {
		if cond.Quiet() > deadline {
			if err := sleepCtx(ctx, deadline); err != nil {
				return err
			}
			return timedOut
		}
		return sleepCtx(ctx, cond.Quiet())
	}

	deadlineAt := time.Now().Add(deadline)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadlineAt)
		if remaining <= 0 {
			return timedOut
		}

		ok, err := w.tick(ctx, cond, remaining)
		if ok {
			return nil
		}
		if err != nil {
			if cdp.IsConnectionError(err) {
				return err
			}
			w.logger.Debug("wait check failed, retrying", "condition", cond.String(), "error", err)
		}

		remaining = time.Until(deadlineAt)
		if remaining <= 0 {
			return timedOut
		}
		if err := sleepCtx(ctx, min(w.interval, remaining)); err != nil {
			return err
		}
	}
}

// tick runs one check bounded by the time left before the deadline
func (w *Waiter) tick(ctx context.Context, cond Condition, remaining time.Duration) (bool, error) {
	tickCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()
	return w.check(tickCtx, cond)
}

// check evaluates cond once
func (w *Waiter) check(ctx context.Context, cond Condition) (bool, error) {
	switch cond.Kind() {
	case KindElementPresent:
		ids, err := w.probe.QuerySelectorAll(ctx, cond.Arg())
		return err == nil && len(ids) > 0, err
	case KindElementVisible:
		return w.probe.ElementVisible(ctx, cond.Arg())
	case KindElementClickable:
		return w.probe.ElementClickable(ctx, cond.Arg())
	case KindTextPresent:
		return w.probe.TextPresent(ctx, cond.Arg())
	case KindURLContains:
		url, err := w.probe.CurrentURL(ctx)
		return err == nil && strings.Contains(url, cond.Arg()), err
	case KindPageLoad:
		state, err := w.probe.ReadyState(ctx)
		return err == nil && state == "complete", err
	default:
		return false, errors.New("unsupported wait condition " + string(cond.Kind()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
