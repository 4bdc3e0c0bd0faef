package shortcut

import (
	"fmt"
	"time"

	"dictakey/internal/keymap"
)

// DefaultThreshold separates a tap from a deliberate hold.
const DefaultThreshold = 300 * time.Millisecond

// Binding configures one shortcut. It is immutable once the engine starts.
type Binding struct {
	Key   keymap.ID
	Class keymap.Class
	// HoldMode records while the key is held. When false the key toggles
	// recording with quick clicks.
	HoldMode bool
	// Suppress hides the key from other applications. A short hold-mode tap
	// is replayed so the key still works normally.
	Suppress bool
	// Restore re-sends a lock key after a completed hold so its lock state
	// ends where it started.
	Restore   bool
	Threshold time.Duration
}

// Mode names the activation style.
func (b Binding) Mode() string {
	if b.HoldMode {
		return "hold"
	}
	return "click"
}

func (b Binding) String() string {
	return fmt.Sprintf("%s %s (%s)", b.Class, b.Key, b.Mode())
}

// observeOnly adapts b to a source whose events always reach the OS: there
// is no swallowed tap to replay, and a lock key needs its restore.
func (b Binding) observeOnly() Binding {
	b.Suppress = false
	b.Restore = keymap.IsToggle(b.Key)
	return b
}

func (b Binding) withDefaults() Binding {
	if b.Threshold <= 0 {
		b.Threshold = DefaultThreshold
	}
	return b
}

// Session is the recording pipeline driven by a task. Implementations must
// return quickly and be safe to call from any goroutine.
type Session interface {
	// Launch begins a recording.
	Launch()
	// Cancel discards the current recording.
	Cancel()
	// Finish ends the current recording and submits it.
	Finish()
}

// SessionFactory creates the session for a binding when the engine is built.
type SessionFactory func(Binding) Session
