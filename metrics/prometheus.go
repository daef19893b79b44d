// Package metrics exports graph execution metrics to Prometheus.
//
//	hook, err := metrics.NewPrometheusHook(prometheus.DefaultRegisterer)
//	if err != nil {
//		return err
//	}
//	tracer := graph.NewTracer()
//	tracer.AddHook(hook)
//	compiled, err := g.Compile(graph.WithTracer(tracer))
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smallnest/stategraph/graph"
)

// Namespace prefixes every metric name.
const Namespace = "stategraph"

// PrometheusHook is a graph.TraceHook recording runs, supersteps, node
// activations and interrupts.
type PrometheusHook struct {
	runs         *prometheus.CounterVec
	steps        *prometheus.CounterVec
	stepDuration prometheus.Histogram
	nodeRuns     *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	interrupts   *prometheus.CounterVec
}

var _ graph.TraceHook = (*PrometheusHook)(nil)

// NewPrometheusHook creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusHook(reg prometheus.Registerer) (*PrometheusHook, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	h := &PrometheusHook{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "runs_total",
				Help:      "Graph invocations by outcome.",
			},
			[]string{"status"},
		),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "supersteps_total",
				Help:      "Supersteps executed by outcome.",
			},
			[]string{"status"},
		),
		stepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "superstep_duration_seconds",
				Help:      "Duration of supersteps, merge and checkpoint included.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		nodeRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "node_runs_total",
				Help:      "Node activations by node and outcome.",
			},
			[]string{"node", "status"},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "node_duration_seconds",
				Help:      "Duration of node activations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		interrupts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "interrupts_total",
				Help:      "Pauses by node.",
			},
			[]string{"node"},
		),
	}

	for _, c := range []prometheus.Collector{h.runs, h.steps, h.stepDuration, h.nodeRuns, h.nodeDuration, h.interrupts} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return h, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// OnEvent implements graph.TraceHook. Only completed spans are counted.
func (h *PrometheusHook) OnEvent(_ context.Context, span *graph.TraceSpan) {
	switch span.Event {
	case graph.TraceEventGraphEnd:
		h.runs.WithLabelValues(status(span.Error)).Inc()
	case graph.TraceEventStepEnd:
		h.steps.WithLabelValues(status(span.Error)).Inc()
		h.stepDuration.Observe(span.Duration.Seconds())
	case graph.TraceEventNodeEnd, graph.TraceEventNodeError:
		h.nodeRuns.WithLabelValues(span.NodeName, status(span.Error)).Inc()
		h.nodeDuration.WithLabelValues(span.NodeName).Observe(span.Duration.Seconds())
	case graph.TraceEventInterrupt:
		h.interrupts.WithLabelValues(span.NodeName).Inc()
	}
}
