package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/abhisek/quandary/internal/question"
)

// nodeState is the scheduling state of one node within a run.
// Transitions only move forward: unscheduled → ready → dispatched → solved,
// with a direct unscheduled → solved shortcut for nodes answered out of
// band.
type nodeState int

const (
	stateUnscheduled nodeState = iota
	stateReady
	stateDispatched
	stateSolved
)

func (s nodeState) String() string {
	switch s {
	case stateUnscheduled:
		return "unscheduled"
	case stateReady:
		return "ready"
	case stateDispatched:
		return "dispatched"
	case stateSolved:
		return "solved"
	}
	return fmt.Sprintf("nodeState(%d)", int(s))
}

// runState is the bookkeeping for one resolution run: the remaining /
// ready / solved sets, the FIFO dispatch queue, and the in-flight count.
// One mutex serializes every membership change; readiness waits happen
// outside it (see board).
type runState struct {
	mu sync.Mutex

	states    map[*question.Node]nodeState
	remaining map[*question.Node]struct{}
	ready     map[*question.Node]struct{}
	solved    map[*question.Node]struct{}

	readyCount int
	inFlight   int

	queue    []*question.Node
	queueSig chan struct{}
}

func newRunState() *runState {
	return &runState{
		states:    make(map[*question.Node]nodeState),
		remaining: make(map[*question.Node]struct{}),
		ready:     make(map[*question.Node]struct{}),
		solved:    make(map[*question.Node]struct{}),
		queueSig:  make(chan struct{}, 1),
	}
}

// Add registers a node with the run. Nodes already carrying an answer go
// straight to the solved set and are never dispatched.
func (st *runState) Add(n *question.Node) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.states[n]; exists {
		return
	}
	if n.IsSolved() {
		st.states[n] = stateSolved
		st.solved[n] = struct{}{}
		return
	}
	st.states[n] = stateUnscheduled
	st.remaining[n] = struct{}{}
}

// MarkReady moves n from unscheduled to ready and enqueues it for
// dispatch. Returns false when n is not unscheduled, which is what makes
// dispatch at-most-once: two gate evaluations racing on the same node
// agree on a single winner here.
func (st *runState) MarkReady(n *question.Node) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.states[n] != stateUnscheduled {
		return false
	}
	st.states[n] = stateReady
	delete(st.remaining, n)
	st.ready[n] = struct{}{}
	st.readyCount++
	st.queue = append(st.queue, n)
	st.signalLocked()
	return true
}

// Next pops the oldest ready node, transitioning it to dispatched. It
// blocks until a node is available or ctx is canceled.
func (st *runState) Next(ctx context.Context) (*question.Node, error) {
	for {
		st.mu.Lock()
		if len(st.queue) > 0 {
			n := st.queue[0]
			st.queue = st.queue[1:]
			st.states[n] = stateDispatched
			delete(st.ready, n)
			st.readyCount--
			st.inFlight++
			if len(st.queue) > 0 {
				st.signalLocked()
			}
			st.mu.Unlock()
			return n, nil
		}
		st.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-st.queueSig:
		}
	}
}

// MarkSolved records n's answer arriving, moving it to the solved set.
func (st *runState) MarkSolved(n *question.Node) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.states[n] == stateDispatched {
		st.inFlight--
	}
	st.states[n] = stateSolved
	delete(st.remaining, n)
	delete(st.ready, n)
	st.solved[n] = struct{}{}
}

// MarkFailed takes a dispatched node back out of flight without solving
// it. Its dependents can now never become ready.
func (st *runState) MarkFailed(n *question.Node) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.states[n] == stateDispatched {
		st.inFlight--
	}
}

// Stalled reports whether the run can make no further progress: nothing
// ready, nothing in flight, unsolved nodes remaining, and no remaining
// node whose gates are already satisfied (such a node is about to be
// marked ready by its waiter, not stuck).
func (st *runState) Stalled() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.readyCount > 0 || st.inFlight > 0 {
		return false
	}
	if len(st.remaining) == 0 {
		return false
	}
	for n := range st.remaining {
		if gatesSatisfied(n) {
			return false
		}
	}
	return true
}

// Done reports whether every registered node is solved.
func (st *runState) Done() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.solved) == len(st.states)
}

// Counts returns (total, solved, ready, inFlight) for logging and tests.
func (st *runState) Counts() (total, solved, ready, inFlight int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.states), len(st.solved), st.readyCount, st.inFlight
}

func (st *runState) signalLocked() {
	select {
	case st.queueSig <- struct{}{}:
	default:
	}
}

func gatesSatisfied(n *question.Node) bool {
	for _, d := range n.Dependencies {
		if !d.IsSolved() {
			return false
		}
	}
	for _, c := range n.Children {
		if !c.IsSolved() {
			return false
		}
	}
	return true
}
