// Package metrics exposes solver activity as Prometheus metrics.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/iwvelando/goalseek/pkg/solver"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "goalseek"

// Collector implements solver.Observer on top of Prometheus metric vectors.
type Collector struct {
	lookups     *prometheus.CounterVec
	solves      *prometheus.CounterVec
	evaluations *prometheus.HistogramVec
	duration    *prometheus.HistogramVec
}

var _ solver.Observer = (*Collector)(nil)

// NewCollector creates the solver metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Evaluation cache lookups by result.",
		}, []string{"result"}),
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "solves_total",
			Help:      "Completed solves by kind and convergence.",
		}, []string{"kind", "converged"}),
		evaluations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "evaluations",
			Help:      "Oracle evaluations spent per solve.",
			Buckets:   prometheus.ExponentialBuckets(2, 2, 10),
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "duration_seconds",
			Help:      "Wall-clock time per solve.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	if reg != nil {
		for _, col := range []prometheus.Collector{c.lookups, c.solves, c.evaluations, c.duration} {
			if err := reg.Register(col); err != nil {
				return nil, fmt.Errorf("failed to register solver metrics: %w", err)
			}
		}
	}
	return c, nil
}

// ObserveLookup counts one cache lookup.
func (c *Collector) ObserveLookup(cached bool) {
	result := "miss"
	if cached {
		result = "hit"
	}
	c.lookups.WithLabelValues(result).Inc()
}

// ObserveSolve records one finished solve.
func (c *Collector) ObserveSolve(kind string, converged bool, evaluations int, seconds float64) {
	c.solves.WithLabelValues(kind, strconv.FormatBool(converged)).Inc()
	c.evaluations.WithLabelValues(kind).Observe(float64(evaluations))
	c.duration.WithLabelValues(kind).Observe(seconds)
}
