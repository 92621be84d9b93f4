package resolver

import (
	"context"
	"sync"

	"github.com/abhisek/quandary/internal/question"
)

// board broadcasts solve events to gate waiters. Every completed node
// produces one Wake; each waiter then re-evaluates its own gating set.
// This replaces fixed-cadence polling: a waiter sleeps until something
// actually changed.
type board struct {
	mu  sync.Mutex
	gen chan struct{}
}

func newBoard() *board {
	return &board{gen: make(chan struct{})}
}

// Wake releases every current waiter by closing the generation channel and
// installing a fresh one.
func (b *board) Wake() {
	b.mu.Lock()
	close(b.gen)
	b.gen = make(chan struct{})
	b.mu.Unlock()
}

// waitCh returns the current generation channel. Callers must obtain it
// before checking their gate so a Wake between check and wait is not lost.
func (b *board) waitCh() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// WaitDependencies blocks until every dependency of n is solved, or ctx is
// canceled. All dependencies are re-checked on every wake, so one wake
// costs O(|dependencies|). An empty dependency list is an open gate.
func (b *board) WaitDependencies(ctx context.Context, n *question.Node) error {
	return b.waitSolved(ctx, n.Dependencies)
}

// WaitChildren blocks until every child of n is solved, or ctx is
// canceled. Same re-check policy as WaitDependencies.
func (b *board) WaitChildren(ctx context.Context, n *question.Node) error {
	return b.waitSolved(ctx, n.Children)
}

func (b *board) waitSolved(ctx context.Context, nodes []*question.Node) error {
	for {
		ch := b.waitCh()

		allSolved := true
		for _, n := range nodes {
			if !n.IsSolved() {
				allSolved = false
			}
		}
		if allSolved {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
