// Package confirm provides a wait-for-acknowledgement primitive: a workflow
// posts a prompt, then waits for a specific actor to emit a specific signal
// before going ahead, giving up after a timeout.
package confirm

import (
	"context"
	"sync"
	"time"
)

type waiter struct {
	actor  int64
	signal string
	done   chan struct{}
}

// Gate matches incoming (actor, signal) acknowledgements against waiting
// workflows. Each wait is single-shot: one acknowledgement satisfies exactly
// one waiter, and signals from other actors or with other payloads are
// ignored without extending the wait.
type Gate struct {
	mu      sync.Mutex
	waiters []*waiter
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{}
}

// Await blocks until actor emits signal, the timeout elapses, or ctx is
// done. It reports whether the confirmation arrived in time.
func (g *Gate) Await(ctx context.Context, actor int64, signal string, timeout time.Duration) bool {
	w := &waiter{actor: actor, signal: signal, done: make(chan struct{})}

	g.mu.Lock()
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	// A resolve that raced the timeout wins: if the waiter is already gone
	// from the list, the acknowledgement was delivered.
	return !g.remove(w)
}

// Resolve delivers an acknowledgement. It reports whether a waiter was
// satisfied; unmatched acknowledgements are dropped.
func (g *Gate) Resolve(actor int64, signal string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, w := range g.waiters {
		if w.actor == actor && w.signal == signal {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			close(w.done)
			return true
		}
	}
	return false
}

func (g *Gate) remove(target *waiter) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, w := range g.waiters {
		if w == target {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return true
		}
	}
	return false
}
