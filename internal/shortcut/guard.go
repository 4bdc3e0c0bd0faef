package shortcut

import (
	"sync"

	"dictakey/internal/keymap"
)

// Guard remembers keys the engine is about to synthesize so their echoes
// are not mistaken for user input. A mark is set before the synthetic press
// and cleared by the matching synthetic release.
type Guard struct {
	mu     sync.Mutex
	marked map[keymap.ID]struct{}
}

func NewGuard() *Guard {
	return &Guard{marked: make(map[keymap.ID]struct{})}
}

// Mark records that a synthetic press/release of id is in flight.
func (g *Guard) Mark(id keymap.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marked[id] = struct{}{}
}

// Consume clears the mark for id and reports whether one was set.
func (g *Guard) Consume(id keymap.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.marked[id]; !ok {
		return false
	}
	delete(g.marked, id)
	return true
}

// Marked reports whether id is currently marked.
func (g *Guard) Marked(id keymap.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.marked[id]
	return ok
}
