package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/abhisek/quandary/internal/pipeline"
	"github.com/abhisek/quandary/internal/question"
)

// RunRecorder is an intermediate processor that persists a run as it
// happens: one node event per completion, then the run outcome on
// termination. Tag LLM calls with the same run ID (llm.WithRunID) to
// group their records under this run.
type RunRecorder struct {
	runID    string
	root     *question.Node
	strategy string
	runs     RunRepo
	events   EventRepo
	logger   *slog.Logger

	mu     sync.Mutex
	solved int
}

// NewRunRecorder creates a recorder for one run. Call Start before the
// run begins.
func NewRunRecorder(runID string, root *question.Node, strategy string, s *Store, logger *slog.Logger) *RunRecorder {
	return &RunRecorder{
		runID:    runID,
		root:     root,
		strategy: strategy,
		runs:     s.RunRepo(),
		events:   s.EventRepo(),
		logger:   logger,
	}
}

// RunID returns the recorder's run identifier.
func (r *RunRecorder) RunID() string {
	return r.runID
}

// Start inserts the run row in the running state.
func (r *RunRecorder) Start(ctx context.Context) error {
	return r.runs.Create(ctx, RunRecord{
		ID:           r.runID,
		RootQuestion: r.root.Body,
		Strategy:     r.strategy,
		NodeCount:    len(question.Collect(r.root)),
	})
}

// Process implements pipeline.Processor. Persistence failures are logged,
// never propagated; losing a record must not disturb the run.
func (r *RunRecorder) Process(event pipeline.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch event.Type {
	case pipeline.EventCompletion:
		r.mu.Lock()
		r.solved++
		r.mu.Unlock()
		err := r.events.AppendNodeEvent(ctx, NodeEventData{
			RunID:    r.runID,
			NodeID:   event.Node.ID,
			Question: event.Node.Body,
			Answer:   event.Answer,
			Depth:    event.Node.Depth(),
		})
		if err != nil {
			r.logger.Warn("failed to persist node event", "err", err, "node", event.Node.ID)
		}

	case pipeline.EventTermination:
		status := RunStatusSolved
		answer := ""
		errorMessage := ""
		if event.Err != nil {
			status = RunStatusFailed
			errorMessage = event.Err.Error()
		} else if a, ok := r.root.Answer(); ok {
			answer = a
		}

		r.mu.Lock()
		solved := r.solved
		r.mu.Unlock()

		// Decomposition may have grown the graph since Start.
		nodeCount := len(question.Collect(r.root))
		if err := r.runs.Finish(ctx, r.runID, status, answer, errorMessage, nodeCount, solved); err != nil {
			r.logger.Warn("failed to persist run outcome", "err", err, "run", r.runID)
		}
	}
}
