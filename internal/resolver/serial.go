package resolver

import (
	"context"
	"fmt"

	"github.com/abhisek/quandary/internal/pipeline"
	"github.com/abhisek/quandary/internal/question"
)

// Serial resolves the graph depth-first, one node at a time: dependencies
// first, then children, then the node itself. Traversal order is
// deterministic, which makes runs reproducible; the gating, bookkeeping,
// and pipeline contracts are identical to the parallel strategy.
type Serial struct{}

// NewSerial returns the sequential strategy.
func NewSerial() *Serial {
	return &Serial{}
}

func (s *Serial) Name() string { return "serial" }

func (s *Serial) Run(ctx context.Context, r *run) error {
	for _, n := range question.Collect(r.root) {
		r.state.Add(n)
	}
	if err := s.solve(ctx, r, r.root); err != nil {
		return err
	}
	r.finish()
	return nil
}

// solve recursively resolves n: decompose if applicable, then settle every
// gate by solving what it waits on, then dispatch.
func (s *Serial) solve(ctx context.Context, r *run, n *question.Node) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if n.IsSolved() {
		return nil
	}

	if r.decomposer != nil && len(n.Children) == 0 && n.Depth() < r.opts.MaxDepth {
		children, err := r.decomposer.Decompose(ctx, n)
		if err != nil {
			return fmt.Errorf("decompose node %s: %w", n.ID, err)
		}
		for _, c := range children {
			n.AddChild(c)
		}
		if err := question.Validate(r.root); err != nil {
			return &MalformedGraphError{Err: err}
		}
		for _, c := range question.Collect(n) {
			r.state.Add(c)
		}
		if len(children) > 0 {
			r.logger.Info("question decomposed", "node", n.ID, "children", len(children))
		}
	}

	for _, dep := range n.Dependencies {
		if err := s.solve(ctx, r, dep); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := s.solve(ctx, r, c); err != nil {
			return err
		}
	}

	// Both gates are settled by construction; these return immediately
	// and keep the contract honest.
	if err := r.board.WaitDependencies(ctx, n); err != nil {
		return err
	}
	if err := r.board.WaitChildren(ctx, n); err != nil {
		return err
	}
	if !r.state.MarkReady(n) {
		return nil
	}

	next, err := r.state.Next(ctx)
	if err != nil {
		return err
	}
	if next != n {
		return fmt.Errorf("serial dispatch order violated: expected %s, got %s", n.ID, next.ID)
	}

	answer, err := r.answerer.Answer(ctx, n)
	if err != nil {
		r.state.MarkFailed(n)
		return &AnswerError{Node: n, Err: err}
	}
	if err := n.Resolve(answer); err != nil {
		r.state.MarkFailed(n)
		return err
	}
	r.state.MarkSolved(n)
	r.board.Wake()
	r.events.Publish(pipeline.Event{
		Type:   pipeline.EventCompletion,
		Node:   n,
		Answer: answer,
	})
	r.logger.Debug("question solved", "node", n.ID)
	return nil
}
