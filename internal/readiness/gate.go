// Package readiness tracks whether the backend is accepting connections.
package readiness

import (
	"context"
	"sync"
	"time"
)

// Gate is a resettable one-shot signal. Open closes the current channel;
// Reset arms a fresh one for the next backend run.
type Gate struct {
	mu     sync.Mutex
	ch     chan struct{}
	opened bool
}

// NewGate returns a closed (not yet open) gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open releases every current and future waiter until the next Reset.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.opened {
		g.opened = true
		close(g.ch)
	}
}

// Reset re-arms the gate. Waiters already holding the old channel from an
// opened gate stay released.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.opened {
		g.ch = make(chan struct{})
		g.opened = false
	}
}

// Done returns a channel closed when the gate opens.
func (g *Gate) Done() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ch
}

// IsOpen reports the current state.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opened
}

// Wait blocks until the gate opens, timeout elapses or ctx is done.
// It returns true only if the gate opened.
func (g *Gate) Wait(ctx context.Context, timeout time.Duration) bool {
	done := g.Done()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
