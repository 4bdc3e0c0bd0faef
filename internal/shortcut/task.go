package shortcut

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"dictakey/internal/keymap"
)

// signal is a one-shot wake-up for a click-mode wait. Each press creates a
// new one, so a release belonging to an earlier click cannot resolve a later
// wait.
type signal struct {
	once sync.Once
	ch   chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) fire() {
	s.once.Do(func() { close(s.ch) })
}

func (s *signal) done() <-chan struct{} { return s.ch }

// Task is the runtime state of one binding. All fields below mu are guarded
// by it, and every Session call is made while holding it, so a task never
// has more than one open session.
type Task struct {
	binding Binding
	session Session

	mu        sync.Mutex
	recording bool
	startedAt time.Time
	// generation increments on every launch so delayed jobs can tell whether
	// the session they opened is still the current one.
	generation uint64
	// pressed is the click-mode latch; released is its complement.
	pressed bool
	signal  *signal
	closed  bool
}

func newTask(b Binding, s Session) *Task {
	return &Task{binding: b, session: s}
}

// Binding returns the task's configuration.
func (t *Task) Binding() Binding { return t.binding }

// TaskState is a point-in-time view of a task.
type TaskState struct {
	Key       string        `json:"key"`
	Class     string        `json:"class"`
	Mode      string        `json:"mode"`
	Suppress  bool          `json:"suppress"`
	Restore   bool          `json:"restore"`
	Threshold time.Duration `json:"threshold"`
	Recording bool          `json:"recording"`
	Pressed   bool          `json:"pressed"`
	Since     time.Time     `json:"since,omitzero"`
}

func (t *Task) state() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := TaskState{
		Key:       string(t.binding.Key),
		Class:     t.binding.Class.String(),
		Mode:      t.binding.Mode(),
		Suppress:  t.binding.Suppress,
		Restore:   t.binding.Restore,
		Threshold: t.binding.Threshold,
		Recording: t.recording,
		Pressed:   t.pressed,
	}
	if t.recording {
		st.Since = t.startedAt
	}
	return st
}

// launchLocked opens a session started at now. It reports false when the
// collaborator panicked.
func (t *Task) launchLocked(now time.Time) bool {
	if !t.call("launch", t.session.Launch) {
		return false
	}
	t.recording = true
	t.startedAt = now
	t.generation++
	slog.Info("[shortcut] session launched", "key", string(t.binding.Key), "mode", t.binding.Mode())
	return true
}

func (t *Task) cancelLocked(now time.Time) {
	elapsed := now.Sub(t.startedAt)
	t.recording = false
	t.startedAt = time.Time{}
	if t.call("cancel", t.session.Cancel) {
		slog.Info("[shortcut] session cancelled", "key", string(t.binding.Key), "elapsed", elapsed)
	}
}

func (t *Task) finishLocked(now time.Time) {
	elapsed := now.Sub(t.startedAt)
	t.recording = false
	t.startedAt = time.Time{}
	if t.call("finish", t.session.Finish) {
		slog.Info("[shortcut] session finished", "key", string(t.binding.Key), "elapsed", elapsed)
	}
}

// call runs a collaborator method. A panic is logged and leaves the task
// idle rather than unwinding into the hook callback or a worker.
func (t *Task) call(op string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[DEBUG-PANIC] session collaborator panicked",
				"key", string(t.binding.Key),
				"op", op,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			t.recording = false
			t.startedAt = time.Time{}
			t.pressed = false
			ok = false
		}
	}()
	fn()
	return true
}

// Registry maps canonical ids to tasks. It is built once and only read
// afterwards.
type Registry struct {
	byKey map[registryKey]*Task
	order []*Task
}

type registryKey struct {
	class keymap.Class
	key   keymap.ID
}

func newRegistry(tasks []*Task) *Registry {
	r := &Registry{byKey: make(map[registryKey]*Task, len(tasks)), order: tasks}
	for _, t := range tasks {
		r.byKey[registryKey{t.binding.Class, t.binding.Key}] = t
	}
	return r
}

// Lookup returns the task bound to key for class.
func (r *Registry) Lookup(class keymap.Class, key keymap.ID) (*Task, bool) {
	t, ok := r.byKey[registryKey{class, key}]
	return t, ok
}

// Tasks returns tasks in binding order.
func (r *Registry) Tasks() []*Task { return r.order }
