package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/abhisek/quandary/internal/question"
)

func TestWaitDependenciesOpenGate(t *testing.T) {
	b := newBoard()
	n := question.MustNew("no dependencies at all")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.WaitDependencies(ctx, n); err != nil {
		t.Fatalf("WaitDependencies on empty gate: %v", err)
	}
	if err := b.WaitChildren(ctx, n); err != nil {
		t.Fatalf("WaitChildren on empty gate: %v", err)
	}
}

func TestWaitDependenciesAlreadySolved(t *testing.T) {
	b := newBoard()
	dep := question.MustNew("solved before anyone waited")
	if err := dep.Resolve("done"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	n := question.MustNew("waiter", question.WithDependencies(dep))

	// No Wake ever happens; the pre-check alone must let the waiter
	// through.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.WaitDependencies(ctx, n); err != nil {
		t.Fatalf("WaitDependencies with solved dep: %v", err)
	}
}

func TestWaitDependenciesWakesOnSolve(t *testing.T) {
	b := newBoard()
	slow := question.MustNew("takes a while")
	fast := question.MustNew("already there")
	n := question.MustNew("waiter", question.WithDependencies(slow, fast))

	if err := fast.Resolve("ok"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	released := make(chan error, 1)
	go func() {
		released <- b.WaitDependencies(context.Background(), n)
	}()

	// A wake with the gate still closed must not release the waiter.
	b.Wake()
	select {
	case err := <-released:
		t.Fatalf("waiter released with an unsolved dependency (err=%v)", err)
	case <-time.After(20 * time.Millisecond):
	}

	if err := slow.Resolve("finally"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b.Wake()

	select {
	case err := <-released:
		if err != nil {
			t.Fatalf("WaitDependencies: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never released after its last dependency solved")
	}
}

func TestWaitChildrenCanceled(t *testing.T) {
	b := newBoard()
	child := question.MustNew("never answered")
	n := question.MustNew("parent", question.WithChildren(child))

	ctx, cancel := context.WithCancel(context.Background())
	released := make(chan error, 1)
	go func() {
		released <- b.WaitChildren(ctx, n)
	}()

	cancel()
	select {
	case err := <-released:
		if err == nil {
			t.Fatal("WaitChildren returned nil after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter ignored context cancellation")
	}
}

func TestWakeReleasesAllWaiters(t *testing.T) {
	b := newBoard()
	dep := question.MustNew("shared dependency")

	const waiters = 8
	released := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		n := question.MustNew("waiter", question.WithDependencies(dep))
		go func() {
			released <- b.WaitDependencies(context.Background(), n)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	if err := dep.Resolve("shared"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b.Wake()

	for i := 0; i < waiters; i++ {
		select {
		case err := <-released:
			if err != nil {
				t.Fatalf("waiter %d: %v", i, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("waiter %d never released", i)
		}
	}
}
