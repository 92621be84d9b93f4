package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/quandary/internal/question"
)

func TestMarkReadyAtMostOnce(t *testing.T) {
	st := newRunState()
	n := question.MustNew("what is seven times eight?")
	st.Add(n)

	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- st.MarkReady(n)
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("MarkReady won %d times, want exactly 1", won)
	}

	_, _, ready, _ := st.Counts()
	if ready != 1 {
		t.Fatalf("ready count = %d, want 1", ready)
	}
}

func TestNextFIFOOrder(t *testing.T) {
	st := newRunState()
	first := question.MustNew("first")
	second := question.MustNew("second")
	third := question.MustNew("third")
	for _, n := range []*question.Node{first, second, third} {
		st.Add(n)
		st.MarkReady(n)
	}

	for i, want := range []*question.Node{first, second, third} {
		got, err := st.Next(context.Background())
		if err != nil {
			t.Fatalf("Next(%d): %v", i, err)
		}
		if got != want {
			t.Fatalf("Next(%d) = %q, want %q", i, got.Body, want.Body)
		}
	}

	_, _, ready, inFlight := st.Counts()
	if ready != 0 || inFlight != 3 {
		t.Fatalf("ready=%d inFlight=%d, want 0 and 3", ready, inFlight)
	}
}

func TestNextBlocksUntilReady(t *testing.T) {
	st := newRunState()
	n := question.MustNew("delayed")
	st.Add(n)

	got := make(chan *question.Node, 1)
	go func() {
		popped, err := st.Next(context.Background())
		if err != nil {
			t.Errorf("Next: %v", err)
			return
		}
		got <- popped
	}()

	time.Sleep(10 * time.Millisecond)
	st.MarkReady(n)

	select {
	case popped := <-got:
		if popped != n {
			t.Fatalf("Next returned %q, want %q", popped.Body, n.Body)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after MarkReady")
	}
}

func TestNextCanceled(t *testing.T) {
	st := newRunState()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := st.Next(ctx); err == nil {
		t.Fatal("Next on canceled context returned no error")
	}
}

func TestAddPreAnswered(t *testing.T) {
	st := newRunState()
	n := question.MustNew("already known")
	if err := n.Resolve("42"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	st.Add(n)

	if st.MarkReady(n) {
		t.Fatal("pre-answered node became ready")
	}
	total, solved, _, _ := st.Counts()
	if total != 1 || solved != 1 {
		t.Fatalf("total=%d solved=%d, want 1 and 1", total, solved)
	}
	if !st.Done() {
		t.Fatal("Done() = false with every node solved")
	}
}

func TestStalled(t *testing.T) {
	st := newRunState()
	blocker := question.MustNew("the answer no one gives")
	blocked := question.MustNew("depends on the above",
		question.WithDependencies(blocker))
	st.Add(blocker)
	st.Add(blocked)

	// blocker has an open gate, so its waiter is about to schedule it.
	if st.Stalled() {
		t.Fatal("Stalled() = true while a remaining node has satisfied gates")
	}

	st.MarkReady(blocker)
	if st.Stalled() {
		t.Fatal("Stalled() = true with a node ready")
	}

	n, err := st.Next(context.Background())
	if err != nil || n != blocker {
		t.Fatalf("Next = %v, %v", n, err)
	}
	if st.Stalled() {
		t.Fatal("Stalled() = true with a node in flight")
	}

	// The answering unit gives up: blocker leaves flight unsolved and
	// blocked can never open its gate.
	st.MarkFailed(blocker)
	if !st.Stalled() {
		t.Fatal("Stalled() = false with only permanently blocked nodes left")
	}

	// Nothing remaining means finished, not stalled.
	done := newRunState()
	solo := question.MustNew("solo")
	done.Add(solo)
	done.MarkReady(solo)
	if _, err := done.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	done.MarkSolved(solo)
	if done.Stalled() {
		t.Fatal("Stalled() = true on a finished run")
	}
}
