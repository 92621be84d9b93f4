package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// LogProcessor writes every completion and the termination signal to a
// structured logger.
type LogProcessor struct {
	logger *slog.Logger
}

// NewLogProcessor creates a LogProcessor.
func NewLogProcessor(logger *slog.Logger) *LogProcessor {
	return &LogProcessor{logger: logger}
}

func (p *LogProcessor) Process(event Event) {
	switch event.Type {
	case EventCompletion:
		p.logger.Info("question solved",
			"node", event.Node.ID,
			"depth", event.Node.Depth(),
			"question", event.Node.Body,
		)
	case EventTermination:
		if event.Err != nil {
			p.logger.Error("run finished", "err", event.Err)
			return
		}
		p.logger.Info("run finished")
	}
}

// StreamProcessor writes partial results to a writer as they arrive, so a
// caller can watch a long run make progress.
type StreamProcessor struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStreamProcessor creates a StreamProcessor over w.
func NewStreamProcessor(w io.Writer) *StreamProcessor {
	return &StreamProcessor{w: w}
}

func (p *StreamProcessor) Process(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch event.Type {
	case EventCompletion:
		fmt.Fprintf(p.w, "[%s] %s\n  -> %s\n", event.Node.ID, event.Node.Body, event.Answer)
	case EventTermination:
		if event.Err != nil {
			fmt.Fprintf(p.w, "run failed: %v\n", event.Err)
			return
		}
		fmt.Fprintln(p.w, "run complete")
	}
}

// CollectProcessor accumulates completions in memory. Tests and the CLI use
// it to inspect what was solved and in what order.
type CollectProcessor struct {
	mu         sync.Mutex
	events     []Event
	terminated int
}

// NewCollectProcessor creates an empty CollectProcessor.
func NewCollectProcessor() *CollectProcessor {
	return &CollectProcessor{}
}

func (p *CollectProcessor) Process(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.Type == EventTermination {
		p.terminated++
		return
	}
	p.events = append(p.events, event)
}

// Completions returns the completion events received so far, in order.
func (p *CollectProcessor) Completions() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Terminations returns how many termination signals were received.
func (p *CollectProcessor) Terminations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}
