// Package metrics exposes toolmesh activity as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives observations from the selector, decomposer and
// orchestrator. Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveSelection(method string, tools int, duration time.Duration)
	ObserveCache(hit bool)
	ObserveToolCall(tool string, duration time.Duration, err error)
	ObserveStep(status string, duration time.Duration)
	ObserveDecomposition(method, complexity string)
	ObserveSynthesis(method string, duration time.Duration)
	ObserveUpstreamFailure(op string)
}

// Noop discards every observation.
type Noop struct{}

func (Noop) ObserveSelection(string, int, time.Duration)  {}
func (Noop) ObserveCache(bool)                            {}
func (Noop) ObserveToolCall(string, time.Duration, error) {}
func (Noop) ObserveStep(string, time.Duration)            {}
func (Noop) ObserveDecomposition(string, string)          {}
func (Noop) ObserveSynthesis(string, time.Duration)       {}
func (Noop) ObserveUpstreamFailure(string)                {}

// OrNoop returns r, or Noop when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop{}
	}
	return r
}

// Prometheus records observations into Prometheus collectors.
type Prometheus struct {
	selections       *prometheus.CounterVec
	selectionLatency *prometheus.HistogramVec
	selectedTools    prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	toolCalls        *prometheus.CounterVec
	toolLatency      *prometheus.HistogramVec
	steps            *prometheus.CounterVec
	stepLatency      prometheus.Histogram
	decompositions   *prometheus.CounterVec
	syntheses        *prometheus.CounterVec
	synthesisLatency prometheus.Histogram
	upstreamFailures *prometheus.CounterVec
}

// NewPrometheus registers the collectors with registerer (the default
// registerer when nil).
func NewPrometheus(registerer prometheus.Registerer) *Prometheus {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Prometheus{
		selections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolmesh_selections_total",
				Help: "Total number of tool selections by method",
			},
			[]string{"method"},
		),
		selectionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolmesh_selection_duration_seconds",
				Help:    "Duration of tool selection in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),
		selectedTools: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toolmesh_selected_tools",
				Help:    "Number of tools returned per selection",
				Buckets: []float64{0, 1, 2, 3, 5, 8},
			},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolmesh_selection_cache_lookups_total",
				Help: "Selection cache lookups by result",
			},
			[]string{"result"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolmesh_tool_calls_total",
				Help: "Tool invocations by tool and status",
			},
			[]string{"tool", "status"},
		),
		toolLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolmesh_tool_call_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tool"},
		),
		steps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolmesh_execution_steps_total",
				Help: "Execution steps by terminal status",
			},
			[]string{"status"},
		),
		stepLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toolmesh_execution_step_duration_seconds",
				Help:    "Duration of execution steps in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		decompositions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolmesh_decompositions_total",
				Help: "Query decompositions by method and complexity",
			},
			[]string{"method", "complexity"},
		),
		syntheses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolmesh_syntheses_total",
				Help: "Final answer syntheses by method",
			},
			[]string{"method"},
		),
		synthesisLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toolmesh_synthesis_duration_seconds",
				Help:    "Duration of answer synthesis in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
		),
		upstreamFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolmesh_upstream_failures_total",
				Help: "Embedding, generation and invocation failures by operation",
			},
			[]string{"op"},
		),
	}
}

func (p *Prometheus) ObserveSelection(method string, tools int, duration time.Duration) {
	p.selections.WithLabelValues(method).Inc()
	p.selectionLatency.WithLabelValues(method).Observe(duration.Seconds())
	p.selectedTools.Observe(float64(tools))
}

func (p *Prometheus) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(result).Inc()
}

func (p *Prometheus) ObserveToolCall(tool string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.toolCalls.WithLabelValues(tool, status).Inc()
	p.toolLatency.WithLabelValues(tool).Observe(duration.Seconds())
}

func (p *Prometheus) ObserveStep(status string, duration time.Duration) {
	p.steps.WithLabelValues(status).Inc()
	p.stepLatency.Observe(duration.Seconds())
}

func (p *Prometheus) ObserveDecomposition(method, complexity string) {
	p.decompositions.WithLabelValues(method, complexity).Inc()
}

func (p *Prometheus) ObserveSynthesis(method string, duration time.Duration) {
	p.syntheses.WithLabelValues(method).Inc()
	p.synthesisLatency.Observe(duration.Seconds())
}

func (p *Prometheus) ObserveUpstreamFailure(op string) {
	p.upstreamFailures.WithLabelValues(op).Inc()
}

var _ Recorder = (*Prometheus)(nil)
