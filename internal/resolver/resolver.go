// Package resolver drives the resolution of a question graph: it schedules
// nodes whose dependencies and children are solved, dispatches them to an
// answering unit, and keeps every observer pipeline fed while doing so.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/quandary/internal/logging"
	"github.com/abhisek/quandary/internal/pipeline"
	"github.com/abhisek/quandary/internal/question"
)

// Answerer is the answering-unit boundary: given a node whose gates are
// satisfied, produce its answer. Implementations typically render a prompt
// and call a language model; the resolver only relies on "submit question,
// receive answer or error".
type Answerer interface {
	Answer(ctx context.Context, n *question.Node) (string, error)
}

// AnswererFunc adapts a function to the Answerer interface.
type AnswererFunc func(ctx context.Context, n *question.Node) (string, error)

func (f AnswererFunc) Answer(ctx context.Context, n *question.Node) (string, error) {
	return f(ctx, n)
}

// Decomposer optionally splits a node into sub-questions before it is
// gated. Returned nodes join the working set mid-run; the resolver links
// them as children of n.
type Decomposer interface {
	Decompose(ctx context.Context, n *question.Node) ([]*question.Node, error)
}

// Strategy is the resolution algorithm: it owns traversal order and
// concurrency shape, built on the shared gating and bookkeeping
// primitives. Every strategy upholds the same contract: gates before
// dispatch, at-most-once dispatch, completion wakes all waiters, stalls
// are detected rather than spun on.
type Strategy interface {
	Name() string
	Run(ctx context.Context, r *run) error
}

// Options configures a single Solve call. The zero value means: parallel
// default concurrency, no decomposition depth limit beyond DefaultMaxDepth,
// no deadline.
type Options struct {
	// MaxConcurrency caps simultaneous answering-unit calls.
	// Default 4.
	MaxConcurrency int

	// MaxDepth stops dynamic decomposition below this depth. Nodes at
	// MaxDepth or deeper are answered directly. Default 3.
	MaxDepth int

	// Timeout bounds the whole run. Zero means no deadline.
	Timeout time.Duration

	// WaitFetchers makes Solve wait for every extra-info fetcher to
	// finish before returning instead of canceling them once the root
	// is solved.
	WaitFetchers bool
}

const (
	// DefaultMaxConcurrency is the dispatch worker count when
	// Options.MaxConcurrency is unset.
	DefaultMaxConcurrency = 4

	// DefaultMaxDepth is the decomposition depth limit when
	// Options.MaxDepth is unset.
	DefaultMaxDepth = 3
)

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}

// Resolver owns the pieces that survive across runs: the answering unit,
// the strategy, the pipelines, and the shared output map. Per-run state is
// rebuilt inside every Solve call.
type Resolver struct {
	answerer   Answerer
	decomposer Decomposer
	strategy   Strategy
	processors []pipeline.Processor
	fetchers   []pipeline.Fetcher
	outputs    *pipeline.OutputMap
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStrategy selects the resolution strategy. Default: NewParallel().
func WithStrategy(s Strategy) Option {
	return func(r *Resolver) { r.strategy = s }
}

// WithDecomposer enables dynamic decomposition of nodes into sub-questions.
func WithDecomposer(d Decomposer) Option {
	return func(r *Resolver) { r.decomposer = d }
}

// WithProcessors registers intermediate processors. Each one receives
// every completion event and exactly one termination signal per run.
func WithProcessors(ps ...pipeline.Processor) Option {
	return func(r *Resolver) { r.processors = append(r.processors, ps...) }
}

// WithFetchers registers extra-info fetchers. Each is connected to the
// resolver's shared output map immediately.
func WithFetchers(fs ...pipeline.Fetcher) Option {
	return func(r *Resolver) { r.fetchers = append(r.fetchers, fs...) }
}

// WithLogger sets the structured logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithOutputs supplies the shared extra-info map, letting an answering
// unit constructed before the Resolver read fetched reference material.
func WithOutputs(m *pipeline.OutputMap) Option {
	return func(r *Resolver) { r.outputs = m }
}

// New builds a Resolver around an answering unit. Fetchers passed via
// WithFetchers are connected to the shared output map here, once; the
// map's contents are cleared in place at the start of every run.
func New(answerer Answerer, opts ...Option) *Resolver {
	r := &Resolver{
		answerer: answerer,
		outputs:  pipeline.NewOutputMap(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.strategy == nil {
		r.strategy = NewParallel()
	}
	for _, f := range r.fetchers {
		f.Connect(r.outputs)
	}
	return r
}

// Outputs returns the shared extra-info map. Valid across runs; contents
// are reset at the start of each run.
func (r *Resolver) Outputs() *pipeline.OutputMap {
	return r.outputs
}

// run is the state of one Solve call, handed to the strategy.
type run struct {
	id         string
	root       *question.Node
	state      *runState
	board      *board
	events     *pipeline.FanOut
	answerer   Answerer
	decomposer Decomposer
	opts       Options
	logger     *slog.Logger

	// graphMu serializes dynamic graph splices against whole-graph
	// reads (validation, stall scans). Steady-state gate checks read
	// only slices their own waiter owns and stay lock-free.
	graphMu sync.Mutex

	doneCh   chan struct{}
	doneOnce sync.Once

	failMu  sync.Mutex
	failErr error
	cancel  context.CancelFunc
}

// finish signals successful completion: the root is solved.
func (r *run) finish() {
	r.doneOnce.Do(func() { close(r.doneCh) })
}

// stalled checks for lost forward progress under the graph lock, so a
// concurrent decomposition cannot be misread as a dead end.
func (r *run) stalled() bool {
	r.graphMu.Lock()
	defer r.graphMu.Unlock()
	return r.state.Stalled()
}

// fail records the first run-level error and cancels everything
// outstanding: gating waits, queued dispatches, in-flight answering calls.
func (r *run) fail(err error) {
	r.failMu.Lock()
	first := r.failErr == nil
	if first {
		r.failErr = err
	}
	r.failMu.Unlock()
	if first {
		r.cancel()
	}
}

// err returns the first recorded run-level error, if any.
func (r *run) err() error {
	r.failMu.Lock()
	defer r.failMu.Unlock()
	return r.failErr
}

// Solve resolves the graph rooted at root and returns the root's answer.
// It is synchronous: per-run state is reset, the strategy runs to
// completion, and every registered processor receives its termination
// signal before Solve returns, on success and on failure alike.
func (r *Resolver) Solve(ctx context.Context, root *question.Node, opts Options) (string, error) {
	if err := question.Validate(root); err != nil {
		return "", &MalformedGraphError{Err: err}
	}
	opts = opts.withDefaults()

	var runCtx context.Context
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	rn := &run{
		id:         uuid.NewString(),
		root:       root,
		state:      newRunState(),
		board:      newBoard(),
		events:     pipeline.NewFanOut(r.processors, r.logger),
		answerer:   r.answerer,
		decomposer: r.decomposer,
		opts:       opts,
		doneCh:     make(chan struct{}),
		cancel:     cancel,
	}
	rn.logger = r.logger.With("run", rn.id[:8], "strategy", r.strategy.Name())

	r.outputs.Reset()
	rn.events.Start()

	// Fetchers get their own context so WaitFetchers can let them drain
	// after the strategy has already torn the run context down.
	fetchCtx, fetchCancel := context.WithCancel(ctx)
	defer fetchCancel()
	waitFetchers := pipeline.RunFetchers(fetchCtx, r.fetchers, rn.logger)

	rn.logger.Info("starting run", "nodes", len(question.Collect(root)))

	err := r.strategy.Run(runCtx, rn)
	if recorded := rn.err(); recorded != nil {
		err = recorded
	}

	if err != nil || !opts.WaitFetchers {
		fetchCancel()
	}
	waitFetchers()
	rn.events.Close(err)

	if err != nil {
		total, solved, ready, inFlight := rn.state.Counts()
		rn.logger.Error("run failed", "err", err,
			"total", total, "solved", solved, "ready", ready, "in_flight", inFlight)
		return "", fmt.Errorf("solve: %w", err)
	}

	answer, ok := root.Answer()
	if !ok {
		// Strategy reported success without the root solved; treat as a
		// stall so the caller never sees an empty success.
		return "", fmt.Errorf("solve: %w", ErrStalled)
	}
	rn.logger.Info("run solved", "answer_len", len(answer))
	return answer, nil
}
