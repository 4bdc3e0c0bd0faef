package logsink

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries the daemon keeps.
const DefaultCapacity = 100

// Entry is one teed log record.
type Entry struct {
	Seq     uint64            `json:"seq"`
	Time    time.Time         `json:"ts"`
	Level   string            `json:"level"`
	Message string            `json:"msg"`
	Source  string            `json:"source,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Ring is a fixed-capacity circular buffer of entries. When full, the oldest
// entry is overwritten. Safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	buf   []Entry
	head  int // index of the oldest entry
	count int
	seq   uint64
}

// NewRing allocates a ring. Capacity values below 1 are clamped to 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Entry, capacity)}
}

// Add stores e and returns the sequence number assigned to it.
func (r *Ring) Add(e Entry) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e.Seq = r.seq
	bufCap := len(r.buf)
	if r.count < bufCap {
		r.buf[(r.head+r.count)%bufCap] = e
		r.count++
	} else {
		r.buf[r.head] = e
		r.head = (r.head + 1) % bufCap
	}
	return e.Seq
}

// Snapshot returns the stored entries oldest first. The slice is independent
// of the ring's storage.
func (r *Ring) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tail(r.count)
}

// Recent returns at most n newest entries, oldest first.
func (r *Ring) Recent(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.count {
		n = r.count
	}
	return r.tail(n)
}

// Len reports how many entries are stored.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Ring) tail(n int) []Entry {
	out := make([]Entry, n)
	bufCap := len(r.buf)
	start := r.head + r.count - n
	for i := range n {
		out[i] = r.buf[(start+i)%bufCap]
	}
	return out
}
