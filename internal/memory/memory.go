// internal/memory/memory.go

// Package memory keeps the most recent conversation turns of one session.
package memory

import "sync"

// DefaultWindow is the number of turns retained when none is configured.
const DefaultWindow = 6

// Turn is one completed exchange.
type Turn struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Window is a bounded, ordered list of turns. The oldest turn is evicted
// once the window is full.
type Window struct {
	mu    sync.Mutex
	size  int
	turns []Turn
}

// NewWindow returns an empty window holding at most size turns.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindow
	}
	return &Window{size: size, turns: make([]Turn, 0, size)}
}

// Size returns the capacity of the window.
func (w *Window) Size() int { return w.size }

// Append adds turn, dropping the oldest turns beyond the window size.
func (w *Window) Append(turn Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append(w.turns, turn)
	if over := len(w.turns) - w.size; over > 0 {
		w.turns = append(w.turns[:0], w.turns[over:]...)
	}
}

// Snapshot returns a copy of the retained turns, oldest first.
func (w *Window) Snapshot() []Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Last returns a copy of the n most recent turns, oldest first.
func (w *Window) Last(n int) []Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n <= 0 {
		return []Turn{}
	}
	if n > len(w.turns) {
		n = len(w.turns)
	}
	out := make([]Turn, n)
	copy(out, w.turns[len(w.turns)-n:])
	return out
}

// Len reports how many turns are retained.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}

// Reset forgets every turn.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = w.turns[:0]
}
