package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/abhisek/quandary/internal/logging"
	"github.com/abhisek/quandary/internal/question"
)

func TestFanOut_DeliversCompletionsThenTermination(t *testing.T) {
	collect := NewCollectProcessor()
	f := NewFanOut([]Processor{collect}, logging.NewNop())
	f.Start()

	n := question.MustNew("q", question.WithID("n1"))
	f.Publish(Event{Type: EventCompletion, Node: n, Answer: "a"})
	f.Publish(Event{Type: EventCompletion, Node: n, Answer: "b"})
	f.Close(nil)

	if got := len(collect.Completions()); got != 2 {
		t.Fatalf("got %d completions, want 2", got)
	}
	if collect.Terminations() != 1 {
		t.Fatalf("got %d terminations, want 1", collect.Terminations())
	}
}

func TestFanOut_CloseIsIdempotent(t *testing.T) {
	collect := NewCollectProcessor()
	f := NewFanOut([]Processor{collect}, logging.NewNop())
	f.Start()

	f.Close(errors.New("boom"))
	f.Close(errors.New("boom again"))

	if collect.Terminations() != 1 {
		t.Fatalf("got %d terminations, want exactly 1", collect.Terminations())
	}
}

func TestFanOut_PanickingProcessorDoesNotStopDelivery(t *testing.T) {
	var panicky Processor = ProcessorFunc(func(Event) { panic("bad processor") })
	collect := NewCollectProcessor()
	f := NewFanOut([]Processor{panicky, collect}, logging.NewNop())
	f.Start()

	f.Publish(Event{Type: EventCompletion, Node: question.MustNew("q"), Answer: "a"})
	f.Close(nil)

	if got := len(collect.Completions()); got != 1 {
		t.Fatalf("got %d completions after panic, want 1", got)
	}
	if collect.Terminations() != 1 {
		t.Fatal("termination lost after processor panic")
	}
}

func TestOutputMap_LastWriterWins(t *testing.T) {
	m := NewOutputMap()
	m.Set("k", "first")
	m.Set("k", "second")

	v, ok := m.Get("k")
	if !ok || v != "second" {
		t.Fatalf("got %v (ok=%t), want %q", v, ok, "second")
	}
}

func TestOutputMap_ResetKeepsReferenceValid(t *testing.T) {
	m := NewOutputMap()
	m.Set("k", "v")
	m.Reset()

	if m.Len() != 0 {
		t.Fatalf("got %d entries after reset, want 0", m.Len())
	}
	m.Set("k2", "v2")
	if _, ok := m.Get("k2"); !ok {
		t.Fatal("map unusable after reset")
	}
}

func TestOutputMap_ConcurrentWriters(t *testing.T) {
	m := NewOutputMap()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Set("shared", j)
				m.Set("mine", j)
			}
		}()
	}
	wg.Wait()

	if _, ok := m.Get("shared"); !ok {
		t.Fatal("shared key missing after concurrent writes")
	}
}

type kvFetcher struct {
	key, value string
	out        *OutputMap
}

func (f *kvFetcher) Name() string            { return "kv" }
func (f *kvFetcher) Connect(out *OutputMap)  { f.out = out }
func (f *kvFetcher) Run(context.Context) error {
	f.out.Set(f.key, f.value)
	return nil
}

func TestRunFetchers_WritesVisibleAfterWait(t *testing.T) {
	out := NewOutputMap()
	f := &kvFetcher{key: "k", value: "v"}
	f.Connect(out)

	wait := RunFetchers(context.Background(), []Fetcher{f}, logging.NewNop())
	wait()

	v, ok := out.Get("k")
	if !ok || v != "v" {
		t.Fatalf("got %v (ok=%t), want %q", v, ok, "v")
	}
}

func TestStreamProcessor_WritesProgress(t *testing.T) {
	var b strings.Builder
	p := NewStreamProcessor(&b)

	p.Process(Event{Type: EventCompletion, Node: question.MustNew("q", question.WithID("n")), Answer: "42"})
	p.Process(Event{Type: EventTermination})

	out := b.String()
	if !strings.Contains(out, "42") || !strings.Contains(out, "run complete") {
		t.Fatalf("unexpected stream output: %q", out)
	}
}
