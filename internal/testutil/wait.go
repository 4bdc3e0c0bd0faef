package testutil

import (
	"testing"
	"time"
)

// WaitFor polls fn every 5ms until it returns true or timeout elapses.
// It reports whether the condition was met.
func WaitFor(t *testing.T, timeout time.Duration, fn func() bool) bool {
	t.Helper()
	if fn() {
		return true
	}
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ticker.C:
			if fn() {
				return true
			}
		case <-deadline.C:
			return fn()
		}
	}
}
