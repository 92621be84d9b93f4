package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsProcessor exports run progress as Prometheus metrics. It registers
// its collectors on the registry it is given, so callers control exposure
// (the solve command serves them over promhttp when --metrics-addr is set).
type MetricsProcessor struct {
	nodesSolved prometheus.Counter
	runsTotal   *prometheus.CounterVec
	runSeconds  prometheus.Histogram
	solveDepth  prometheus.Histogram

	mu      sync.Mutex
	started time.Time // zero between runs
}

// NewMetricsProcessor creates a MetricsProcessor and registers its
// collectors with reg.
func NewMetricsProcessor(reg prometheus.Registerer) *MetricsProcessor {
	p := &MetricsProcessor{
		nodesSolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quandary_nodes_solved_total",
			Help: "Total number of question nodes solved",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quandary_runs_total",
			Help: "Total resolution runs, labeled by outcome",
		}, []string{"outcome"}),
		runSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quandary_run_duration_seconds",
			Help:    "Wall-clock duration of resolution runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		solveDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quandary_node_depth",
			Help:    "Depth of solved nodes in the question tree",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
	}
	reg.MustRegister(p.nodesSolved, p.runsTotal, p.runSeconds, p.solveDepth)
	return p
}

func (p *MetricsProcessor) Process(event Event) {
	switch event.Type {
	case EventCompletion:
		p.markStarted()
		p.nodesSolved.Inc()
		p.solveDepth.Observe(float64(event.Node.Depth()))
	case EventTermination:
		outcome := "success"
		if event.Err != nil {
			outcome = "failure"
		}
		p.runsTotal.WithLabelValues(outcome).Inc()
		p.runSeconds.Observe(p.finishRun().Seconds())
	}
}

// markStarted stamps the start of a run on its first event, so a
// processor reused across runs measures each run on its own.
func (p *MetricsProcessor) markStarted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		p.started = time.Now()
	}
}

// finishRun returns the elapsed time of the run that just terminated and
// resets the clock for the next one. A run that terminated before any
// completion event reports zero elapsed.
func (p *MetricsProcessor) finishRun() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return 0
	}
	elapsed := time.Since(p.started)
	p.started = time.Time{}
	return elapsed
}
