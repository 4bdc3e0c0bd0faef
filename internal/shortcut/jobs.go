package shortcut

import (
	"context"
	"log/slog"
	"time"

	"dictakey/internal/input"
	"dictakey/internal/workerutil"
)

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// countdownJob fires sig once the threshold has elapsed.
func (e *Engine) countdownJob(t *Task, sig *signal) workerutil.Job {
	return func(ctx context.Context) {
		if sleepCtx(ctx, t.binding.Threshold) {
			sig.fire()
		}
	}
}

// manageJob drives one click-mode press. If no session was open it opens
// one at once. A release inside the click window finishes a session that
// was already open before this press; holding past the window cancels the
// session this press opened, as long as it is still the current one.
func (e *Engine) manageJob(t *Task, sig *signal) workerutil.Job {
	return func(ctx context.Context) {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		wasOpen := t.recording
		var opened uint64
		if !wasOpen {
			if !t.launchLocked(time.Now()) {
				t.mu.Unlock()
				return
			}
			opened = t.generation
		}
		t.mu.Unlock()

		window := time.Duration(float64(t.binding.Threshold) * clickWindowRatio)
		timer := time.NewTimer(window)
		defer timer.Stop()

		resolved := false
		select {
		case <-ctx.Done():
			return
		case <-sig.done():
			resolved = true
		case <-timer.C:
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed {
			return
		}
		switch {
		case resolved && wasOpen && t.recording:
			t.finishLocked(time.Now())
		case !resolved && !wasOpen && t.recording && t.generation == opened:
			slog.Debug("[shortcut] click held past window, cancelling", "key", string(t.binding.Key), "window", window)
			t.cancelLocked(time.Now())
		}
	}
}

// resendJob synthesizes one press and release of the binding's key after
// the settle delay. The guard is marked first so the echo passes through;
// a failed injection clears the mark because no echo will arrive.
func (e *Engine) resendJob(reason string, b Binding) workerutil.Job {
	return func(ctx context.Context) {
		if !sleepCtx(ctx, e.settleDelay) {
			return
		}
		key := string(b.Key)
		h, err := e.source.Handle(b.Class, b.Key)
		if err != nil {
			slog.Warn("[shortcut] cannot resolve key for "+reason, "key", key, "error", err)
			return
		}

		e.guard.Mark(b.Key)
		for _, kind := range []input.Kind{input.Press, input.Release} {
			if err := e.source.Inject(kind, h); err != nil {
				e.guard.Consume(b.Key)
				slog.Warn("[shortcut] "+reason+" injection failed", "key", key, "kind", kind.String(), "error", err)
				return
			}
		}
		slog.Info("[shortcut] "+reason+" sent", "key", key)
	}
}
