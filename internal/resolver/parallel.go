package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abhisek/quandary/internal/pipeline"
	"github.com/abhisek/quandary/internal/question"
)

// Parallel resolves the graph with one lightweight gate-waiter task per
// node and a fixed pool of dispatch workers draining the FIFO ready queue.
// Any number of nodes wait on their gates simultaneously; completion of a
// node wakes every waiter, so progress propagates globally.
type Parallel struct{}

// NewParallel returns the concurrent strategy.
func NewParallel() *Parallel {
	return &Parallel{}
}

func (s *Parallel) Name() string { return "parallel" }

func (s *Parallel) Run(ctx context.Context, r *run) error {
	nodes := question.Collect(r.root)
	for _, n := range nodes {
		r.state.Add(n)
	}
	if r.root.IsSolved() {
		return nil
	}

	var waiters sync.WaitGroup
	for _, n := range nodes {
		if n.IsSolved() {
			continue
		}
		waiters.Add(1)
		go s.awaitNode(ctx, r, &waiters, n)
	}

	var workers sync.WaitGroup
	for i := 0; i < r.opts.MaxConcurrency; i++ {
		workers.Add(1)
		go s.dispatchWorker(ctx, r, &workers)
	}

	// The run ends when the root is solved or something canceled the
	// context: a failed dispatch, a stall, the deadline, or the caller.
	select {
	case <-r.doneCh:
	case <-ctx.Done():
	}
	r.cancel()
	waiters.Wait()
	workers.Wait()

	if err := r.err(); err != nil {
		return err
	}
	if r.root.IsSolved() {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ErrStalled
}

// awaitNode is the per-node task: optionally decompose, wait for both
// gates, then hand the node to the dispatch queue.
func (s *Parallel) awaitNode(ctx context.Context, r *run, waiters *sync.WaitGroup, n *question.Node) {
	defer waiters.Done()

	if r.decomposer != nil && len(n.Children) == 0 && n.Depth() < r.opts.MaxDepth {
		if err := s.decompose(ctx, r, waiters, n); err != nil {
			if ctx.Err() == nil {
				r.fail(fmt.Errorf("decompose node %s: %w", n.ID, err))
			}
			return
		}
	}

	if err := r.board.WaitDependencies(ctx, n); err != nil {
		return
	}
	if err := r.board.WaitChildren(ctx, n); err != nil {
		return
	}

	// MarkReady loses exactly when another path already scheduled or
	// solved this node; either way there is nothing left to do here.
	if r.state.MarkReady(n) {
		r.logger.Debug("question ready", "node", n.ID)
	}
}

// decompose asks the Decomposer for sub-questions and splices them into
// the running graph: linked as children, validated, registered, and given
// their own waiter tasks. Splices are serialized by the run's graph lock
// so validation always sees a consistent graph.
func (s *Parallel) decompose(ctx context.Context, r *run, waiters *sync.WaitGroup, n *question.Node) error {
	children, err := r.decomposer.Decompose(ctx, n)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}

	r.graphMu.Lock()
	for _, c := range children {
		n.AddChild(c)
	}
	if err := question.Validate(r.root); err != nil {
		// Roll back so the rest of the run still sees a valid graph.
		n.Children = n.Children[:len(n.Children)-len(children)]
		r.graphMu.Unlock()
		return &MalformedGraphError{Err: err}
	}
	added := question.Collect(n)
	r.graphMu.Unlock()

	r.logger.Info("question decomposed", "node", n.ID, "children", len(children))

	for _, c := range added {
		if c == n {
			continue
		}
		r.state.Add(c)
		if c.IsSolved() {
			continue
		}
		waiters.Add(1)
		go s.awaitNode(ctx, r, waiters, c)
	}
	return nil
}

// dispatchWorker drains the ready queue, calling the answering unit for
// one node at a time. The worker pool size is the run's MaxConcurrency.
func (s *Parallel) dispatchWorker(ctx context.Context, r *run, workers *sync.WaitGroup) {
	defer workers.Done()

	for {
		n, err := r.state.Next(ctx)
		if err != nil {
			return
		}

		answer, err := r.answerer.Answer(ctx, n)
		if err != nil {
			r.state.MarkFailed(n)
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return
			}
			r.fail(&AnswerError{Node: n, Err: err})
			return
		}

		if err := n.Resolve(answer); err != nil {
			// A second answer for one node means the at-most-once
			// guarantee broke upstream; surface it loudly.
			r.state.MarkFailed(n)
			r.fail(err)
			return
		}
		r.state.MarkSolved(n)
		r.board.Wake()
		r.events.Publish(pipeline.Event{
			Type:   pipeline.EventCompletion,
			Node:   n,
			Answer: answer,
		})
		r.logger.Debug("question solved", "node", n.ID)

		if n == r.root {
			r.finish()
			return
		}
		if r.stalled() {
			r.fail(ErrStalled)
			return
		}
	}
}
