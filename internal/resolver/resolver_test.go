package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/quandary/internal/pipeline"
	"github.com/abhisek/quandary/internal/question"
)

// echo answers any node with a tag derived from its body, after checking
// that every gate really was satisfied at dispatch time.
func echo(t *testing.T) Answerer {
	t.Helper()
	return AnswererFunc(func(ctx context.Context, n *question.Node) (string, error) {
		for _, d := range n.Dependencies {
			if !d.IsSolved() {
				t.Errorf("node %q dispatched with unsolved dependency %q", n.Body, d.Body)
			}
		}
		for _, c := range n.Children {
			if !c.IsSolved() {
				t.Errorf("node %q dispatched with unsolved child %q", n.Body, c.Body)
			}
		}
		return "answer: " + n.Body, nil
	})
}

// diamond builds root -> {a, b} as children, with b depending on a.
func diamond() (root, a, b *question.Node) {
	a = question.MustNew("how many moons does Mars have?")
	b = question.MustNew("name them", question.WithDependencies(a))
	root = question.MustNew("describe the moons of Mars", question.WithChildren(a, b))
	return root, a, b
}

func TestSolveSingleNode(t *testing.T) {
	r := New(echo(t))
	root := question.MustNew("what is the capital of Chile?")

	answer, err := r.Solve(context.Background(), root, Options{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if want := "answer: what is the capital of Chile?"; answer != want {
		t.Fatalf("answer = %q, want %q", answer, want)
	}
	if !root.IsSolved() {
		t.Fatal("root not solved after successful Solve")
	}
}

// runCapture wraps a strategy and keeps the run it executed, so tests
// can inspect the run's bookkeeping after Solve returns.
type runCapture struct {
	Strategy
	rn *run
}

func (c *runCapture) Run(ctx context.Context, r *run) error {
	c.rn = r
	return c.Strategy.Run(ctx, r)
}

func TestSolveDiamond(t *testing.T) {
	for _, strategy := range []Strategy{NewParallel(), NewSerial()} {
		t.Run(strategy.Name(), func(t *testing.T) {
			collect := pipeline.NewCollectProcessor()
			capture := &runCapture{Strategy: strategy}
			r := New(echo(t),
				WithStrategy(capture),
				WithProcessors(collect),
			)
			root, _, _ := diamond()

			answer, err := r.Solve(context.Background(), root, Options{})
			if err != nil {
				t.Fatalf("Solve: %v", err)
			}
			if answer == "" {
				t.Fatal("empty answer from successful Solve")
			}

			completions := collect.Completions()
			if len(completions) != 3 {
				t.Fatalf("got %d completions, want 3", len(completions))
			}
			if last := completions[len(completions)-1].Node; last != root {
				t.Fatalf("last completion was %q, want the root", last.Body)
			}
			if collect.Terminations() != 1 {
				t.Fatalf("got %d terminations, want exactly 1", collect.Terminations())
			}

			// Bookkeeping must be drained at run end: everything
			// solved, nothing ready or in flight.
			total, solved, ready, inFlight := capture.rn.state.Counts()
			if total != 3 || solved != 3 {
				t.Fatalf("counts total=%d solved=%d, want 3/3", total, solved)
			}
			if ready != 0 || inFlight != 0 {
				t.Fatalf("counts ready=%d inFlight=%d at run end, want 0/0", ready, inFlight)
			}
		})
	}
}

func TestSolveWideGraphAnswersEachNodeOnce(t *testing.T) {
	var mu sync.Mutex
	calls := make(map[*question.Node]int)
	answerer := AnswererFunc(func(ctx context.Context, n *question.Node) (string, error) {
		mu.Lock()
		calls[n]++
		mu.Unlock()
		return n.Body, nil
	})

	deps := make([]*question.Node, 50)
	for i := range deps {
		deps[i] = question.MustNew(fmt.Sprintf("sub-question %d", i))
	}
	root := question.MustNew("the big question", question.WithDependencies(deps...))

	r := New(answerer)
	if _, err := r.Solve(context.Background(), root, Options{MaxConcurrency: 8}); err != nil {
		t.Fatalf("Solve: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 51 {
		t.Fatalf("answered %d distinct nodes, want 51", len(calls))
	}
	for n, c := range calls {
		if c != 1 {
			t.Errorf("node %q answered %d times, want 1", n.Body, c)
		}
	}
}

func TestSolveSerialIsDeterministic(t *testing.T) {
	var runs [][]string
	for i := 0; i < 3; i++ {
		var mu sync.Mutex
		var order []string
		answerer := AnswererFunc(func(ctx context.Context, n *question.Node) (string, error) {
			mu.Lock()
			order = append(order, n.Body)
			mu.Unlock()
			return n.Body, nil
		})

		root, _, _ := diamond()
		r := New(answerer, WithStrategy(NewSerial()))
		if _, err := r.Solve(context.Background(), root, Options{}); err != nil {
			t.Fatalf("Solve: %v", err)
		}
		runs = append(runs, order)
	}

	want := strings.Join(runs[0], " | ")
	for i, order := range runs[1:] {
		if got := strings.Join(order, " | "); got != want {
			t.Fatalf("run %d order %q differs from first run %q", i+2, got, want)
		}
	}
}

func TestSolvePreSolvedRoot(t *testing.T) {
	answerer := AnswererFunc(func(ctx context.Context, n *question.Node) (string, error) {
		t.Errorf("answering unit called for pre-answered node %q", n.Body)
		return "", nil
	})
	root := question.MustNew("already settled")
	if err := root.Resolve("yes"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	for _, strategy := range []Strategy{NewParallel(), NewSerial()} {
		r := New(answerer, WithStrategy(strategy))
		answer, err := r.Solve(context.Background(), root, Options{})
		if err != nil {
			t.Fatalf("%s: Solve: %v", strategy.Name(), err)
		}
		if answer != "yes" {
			t.Fatalf("%s: answer = %q, want %q", strategy.Name(), answer, "yes")
		}
	}
}

func TestSolveFailFast(t *testing.T) {
	boom := errors.New("model unavailable")
	var mu sync.Mutex
	answered := make(map[string]bool)
	answerer := AnswererFunc(func(ctx context.Context, n *question.Node) (string, error) {
		mu.Lock()
		answered[n.Body] = true
		mu.Unlock()
		if n.Body == "doomed" {
			return "", boom
		}
		return "ok", nil
	})

	for _, strategy := range []Strategy{NewParallel(), NewSerial()} {
		t.Run(strategy.Name(), func(t *testing.T) {
			mu.Lock()
			answered = make(map[string]bool)
			mu.Unlock()
			doomed := question.MustNew("doomed")
			blocked := question.MustNew("blocked", question.WithDependencies(doomed))
			root := question.MustNew("root", question.WithChildren(doomed, blocked))

			collect := pipeline.NewCollectProcessor()
			r := New(answerer, WithStrategy(strategy), WithProcessors(collect))

			_, err := r.Solve(context.Background(), root, Options{})
			if err == nil {
				t.Fatal("Solve succeeded despite a failing node")
			}
			var ansErr *AnswerError
			if !errors.As(err, &ansErr) {
				t.Fatalf("error %v does not wrap AnswerError", err)
			}
			if !errors.Is(err, boom) {
				t.Fatalf("error %v does not wrap the answering failure", err)
			}

			mu.Lock()
			blockedRan := answered["blocked"]
			rootRan := answered["root"]
			mu.Unlock()
			if blockedRan {
				t.Error("node behind the failed dependency was dispatched")
			}
			if rootRan {
				t.Error("root was dispatched despite unsolved children")
			}
			if collect.Terminations() != 1 {
				t.Fatalf("got %d terminations on failure, want exactly 1", collect.Terminations())
			}
		})
	}
}

func TestSolveRejectsCycle(t *testing.T) {
	a := question.MustNew("a")
	b := question.MustNew("b")
	a.AddDependency(b)
	b.AddDependency(a)
	root := question.MustNew("root", question.WithDependencies(a))

	r := New(echo(t))
	_, err := r.Solve(context.Background(), root, Options{})
	var malformed *MalformedGraphError
	if !errors.As(err, &malformed) {
		t.Fatalf("Solve returned %v, want MalformedGraphError", err)
	}
}

func TestSolveTimeout(t *testing.T) {
	answerer := AnswererFunc(func(ctx context.Context, n *question.Node) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	root := question.MustNew("never answered in time")

	r := New(answerer)
	start := time.Now()
	_, err := r.Solve(context.Background(), root, Options{Timeout: 50 * time.Millisecond})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Solve returned %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Solve took %v to observe a 50ms deadline", elapsed)
	}
}

type staticDecomposer struct {
	parts []string
}

func (d *staticDecomposer) Decompose(ctx context.Context, n *question.Node) ([]*question.Node, error) {
	children := make([]*question.Node, 0, len(d.parts))
	for _, p := range d.parts {
		children = append(children, question.MustNew(n.Body+": "+p))
	}
	return children, nil
}

func TestSolveDecomposes(t *testing.T) {
	for _, strategy := range []Strategy{NewParallel(), NewSerial()} {
		t.Run(strategy.Name(), func(t *testing.T) {
			collect := pipeline.NewCollectProcessor()
			r := New(echo(t),
				WithStrategy(strategy),
				WithDecomposer(&staticDecomposer{parts: []string{"when", "where"}}),
				WithProcessors(collect),
			)
			root := question.MustNew("tell me about the eclipse")

			// MaxDepth 2: the root decomposes, its children answer
			// directly instead of decomposing again.
			_, err := r.Solve(context.Background(), root, Options{MaxDepth: 2})
			if err != nil {
				t.Fatalf("Solve: %v", err)
			}

			if len(root.Children) != 2 {
				t.Fatalf("root has %d children after decomposition, want 2", len(root.Children))
			}
			for _, c := range root.Children {
				if !c.IsSolved() {
					t.Errorf("child %q left unsolved", c.Body)
				}
				if len(c.Children) != 0 {
					t.Errorf("child %q decomposed past MaxDepth", c.Body)
				}
				if c.Parent != root {
					t.Errorf("child %q not linked back to the root", c.Body)
				}
			}
			if got := len(collect.Completions()); got != 3 {
				t.Fatalf("got %d completions, want 3", got)
			}
		})
	}
}

func TestSolveDecomposerFailure(t *testing.T) {
	decomposer := decomposerFunc(func(ctx context.Context, n *question.Node) ([]*question.Node, error) {
		return nil, errors.New("decomposition model refused")
	})
	root := question.MustNew("unsplittable")

	for _, strategy := range []Strategy{NewParallel(), NewSerial()} {
		r := New(echo(t), WithStrategy(strategy), WithDecomposer(decomposer))
		if _, err := r.Solve(context.Background(), root, Options{}); err == nil {
			t.Fatalf("%s: Solve succeeded despite decomposer failure", strategy.Name())
		}
		root = question.MustNew("unsplittable")
	}
}

type decomposerFunc func(ctx context.Context, n *question.Node) ([]*question.Node, error)

func (f decomposerFunc) Decompose(ctx context.Context, n *question.Node) ([]*question.Node, error) {
	return f(ctx, n)
}

type mapFetcher struct {
	name    string
	entries map[string]string
	out     *pipeline.OutputMap
}

func (f *mapFetcher) Name() string                  { return f.name }
func (f *mapFetcher) Connect(m *pipeline.OutputMap) { f.out = m }

func (f *mapFetcher) Run(ctx context.Context) error {
	for k, v := range f.entries {
		f.out.Set(k, v)
	}
	return nil
}

func TestSolveFetchersPopulateOutputs(t *testing.T) {
	r := New(echo(t), WithFetchers(
		&mapFetcher{name: "atlas", entries: map[string]string{"region": "atacama"}},
		&mapFetcher{name: "almanac", entries: map[string]string{"year": "2026"}},
	))
	root := question.MustNew("where was the driest decade recorded?")

	if _, err := r.Solve(context.Background(), root, Options{WaitFetchers: true}); err != nil {
		t.Fatalf("Solve: %v", err)
	}

	for key, want := range map[string]string{"region": "atacama", "year": "2026"} {
		got, ok := r.Outputs().Get(key)
		if !ok || got != want {
			t.Errorf("Outputs()[%q] = %q, %v; want %q", key, got, ok, want)
		}
	}
}

func TestSolveResetsOutputsBetweenRuns(t *testing.T) {
	fetcher := &mapFetcher{name: "counter", entries: map[string]string{"seen": "yes"}}
	r := New(echo(t), WithFetchers(fetcher))

	if _, err := r.Solve(context.Background(), question.MustNew("first run"),
		Options{WaitFetchers: true}); err != nil {
		t.Fatalf("first Solve: %v", err)
	}
	r.Outputs().Set("stale", "leftover")

	if _, err := r.Solve(context.Background(), question.MustNew("second run"),
		Options{WaitFetchers: true}); err != nil {
		t.Fatalf("second Solve: %v", err)
	}

	if _, ok := r.Outputs().Get("stale"); ok {
		t.Error("stale entry survived the run reset")
	}
	if got, ok := r.Outputs().Get("seen"); !ok || got != "yes" {
		t.Errorf("fetcher output missing after reset: %q, %v", got, ok)
	}
}
