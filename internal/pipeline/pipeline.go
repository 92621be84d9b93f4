// Package pipeline holds the extension points that observe a resolution
// run: intermediate processors, which receive every node completion plus a
// final termination signal, and extra-info fetchers, which run alongside
// the scheduler and enrich a shared output map.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/abhisek/quandary/internal/question"
)

// EventType distinguishes the two event shapes a processor receives.
type EventType string

const (
	// EventCompletion reports one node's answer.
	EventCompletion EventType = "completion"
	// EventTermination is delivered exactly once when the run ends,
	// whether it succeeded or failed.
	EventTermination EventType = "termination"
)

// Event is the payload delivered to intermediate processors.
type Event struct {
	Type      EventType
	Node      *question.Node // set for completions
	Answer    string         // set for completions
	Err       error          // set on failed terminations
	Timestamp time.Time
}

// Processor observes run progress for side effects. Process is called from
// a dedicated fan-out goroutine, never from the dispatch path, so a slow
// processor delays other processors but not scheduling. A processor that
// needs to surface data writes it somewhere it owns.
type Processor interface {
	Process(event Event)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(Event)

func (f ProcessorFunc) Process(event Event) { f(event) }

// FanOut delivers events to a set of processors on its own goroutine.
// A panicking processor is logged and skipped; it can never crash the run.
type FanOut struct {
	processors []Processor
	logger     *slog.Logger

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewFanOut creates a fan-out over the given processors. Start must be
// called before Publish.
func NewFanOut(processors []Processor, logger *slog.Logger) *FanOut {
	return &FanOut{
		processors: processors,
		logger:     logger,
		events:     make(chan Event, 64),
		done:       make(chan struct{}),
	}
}

// Start launches the delivery goroutine.
func (f *FanOut) Start() {
	go func() {
		defer close(f.done)
		for ev := range f.events {
			for _, p := range f.processors {
				f.deliver(p, ev)
			}
		}
	}()
}

// Publish enqueues an event for delivery.
func (f *FanOut) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	f.events <- ev
}

// Close publishes the termination event, then blocks until every queued
// event has been delivered. Safe to call multiple times; only the first
// call emits the termination signal.
func (f *FanOut) Close(runErr error) {
	f.once.Do(func() {
		f.events <- Event{Type: EventTermination, Err: runErr, Timestamp: time.Now()}
		close(f.events)
	})
	<-f.done
}

func (f *FanOut) deliver(p Processor, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("intermediate processor panicked", "panic", r, "event", string(ev.Type))
		}
	}()
	p.Process(ev)
}

// Fetcher collects side information concurrently with a run. Connect is
// called once when the resolver is built and hands the fetcher the shared
// output map it will write into; Run is launched at the start of every run
// and may keep writing until its context is canceled. Fetcher errors are
// logged, never propagated into the scheduling loop.
type Fetcher interface {
	Name() string
	Connect(out *OutputMap)
	Run(ctx context.Context) error
}

// RunFetchers launches every fetcher on its own goroutine and returns a
// wait function. Panics and errors are contained and logged.
func RunFetchers(ctx context.Context, fetchers []Fetcher, logger *slog.Logger) (wait func()) {
	var wg sync.WaitGroup
	for _, f := range fetchers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("extra-info fetcher panicked", "fetcher", f.Name(), "panic", r)
				}
			}()
			if err := f.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("extra-info fetcher failed", "fetcher", f.Name(), "err", err)
			}
		}()
	}
	return wg.Wait
}
