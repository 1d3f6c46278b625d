package solver

import (
	"context"
	"math"
	"time"

	"github.com/iwvelando/goalseek/pkg/mathutil"
	"go.uber.org/zap"
)

// rootResult is the outcome of one bisection over a single parameter.
type rootResult struct {
	params     Vector
	metrics    Vector
	reason     Reason
	boundary   *Boundary
	label      string
	iterations int
}

// bisect searches p for a value driving m to its target while base is held.
// Both boundaries are evaluated first; their ordering decides the direction of
// monotonicity, so no sign is assumed.
func (s *Solver) bisect(ctx context.Context, cache *Cache, base Vector, p Parameter, m Metric) (rootResult, error) {
	lo, hi := p.Range.Min, p.Range.Max
	step := p.Step()

	loParams := cache.Round(base.With(p.Name, lo))
	loMetrics, err := cache.Evaluate(ctx, loParams)
	if err != nil {
		return rootResult{}, err
	}
	hiParams := cache.Round(base.With(p.Name, hi))
	hiMetrics, err := cache.Evaluate(ctx, hiParams)
	if err != nil {
		return rootResult{}, err
	}

	fLo, fHi := loMetrics[m.Name], hiMetrics[m.Name]
	minF, maxF := math.Min(fLo, fHi), math.Max(fLo, fHi)

	if m.Target < minF {
		res := rootResult{params: loParams, metrics: loMetrics, label: LabelBoundaryLow}
		if fHi < fLo {
			res = rootResult{params: hiParams, metrics: hiMetrics, label: LabelBoundaryHigh}
		}
		res.reason = ReasonTargetTooLow
		res.boundary = &Boundary{Target: m.Target, Achieved: minF, Parameter: res.params[p.Name]}
		return res, nil
	}
	if m.Target > maxF {
		res := rootResult{params: loParams, metrics: loMetrics, label: LabelBoundaryLow}
		if fHi > fLo {
			res = rootResult{params: hiParams, metrics: hiMetrics, label: LabelBoundaryHigh}
		}
		res.reason = ReasonTargetTooHigh
		res.boundary = &Boundary{Target: m.Target, Achieved: maxF, Parameter: res.params[p.Name]}
		return res, nil
	}

	if m.Satisfied(fLo) {
		return rootResult{params: loParams, metrics: loMetrics}, nil
	}
	if m.Satisfied(fHi) {
		return rootResult{params: hiParams, metrics: hiMetrics}, nil
	}

	increasing := fHi > fLo
	iterations := 0
	for iterations < s.tuning.MaxIterations {
		if hi-lo < step {
			break
		}
		mid := p.Range.Clamp(mathutil.RoundTo(lo+(hi-lo)/2, step))
		params := cache.Round(base.With(p.Name, mid))
		metrics, err := cache.Evaluate(ctx, params)
		if err != nil {
			return rootResult{}, err
		}
		iterations++

		f := metrics[m.Name]
		if m.Satisfied(f) {
			return rootResult{params: params, metrics: metrics, iterations: iterations}, nil
		}
		if (f < m.Target) == increasing {
			if mid == lo {
				break
			}
			lo = mid
		} else {
			if mid == hi {
				break
			}
			hi = mid
		}
	}

	mid := p.Range.Clamp(mathutil.RoundTo(lo+(hi-lo)/2, step))
	params := cache.Round(base.With(p.Name, mid))
	metrics, err := cache.Evaluate(ctx, params)
	if err != nil {
		return rootResult{}, err
	}
	return rootResult{params: params, metrics: metrics, iterations: iterations}, nil
}

// FindRoot searches one parameter for a value that brings one metric within
// tolerance of its target, assuming the metric is monotonic in the parameter.
// A target outside what the safe range can reach yields the nearer boundary
// with a reason instead of an error.
func (s *Solver) FindRoot(ctx context.Context, req RootRequest) (Candidate, error) {
	if err := req.validate(); err != nil {
		return Candidate{}, err
	}
	start := time.Now()
	prob := problem{params: []Parameter{req.Parameter}, metrics: []Metric{req.Metric}, observe: req.Observe}

	s.report(10, "evaluating range boundaries")
	cache := s.newCache(prob.params, prob.cells(), req.Fixed)
	res, err := s.bisect(ctx, cache, Vector{}, req.Parameter, req.Metric)
	if err != nil {
		return Candidate{}, err
	}

	s.report(90, "verifying result")
	c := s.rootCandidate(prob, res)
	c.Evaluations = cache.Evaluations()
	s.report(100, "complete")

	elapsed := time.Since(start)
	s.observer.ObserveSolve("root", c.Converged, c.Evaluations, elapsed.Seconds())
	s.logger.Info("root search finished",
		zap.String("op", "solver.FindRoot"),
		zap.String("parameter", req.Parameter.Name),
		zap.String("metric", req.Metric.Name),
		zap.Float64("value", c.Parameters[req.Parameter.Name]),
		zap.Float64("achieved", c.Metrics[req.Metric.Name]),
		zap.Float64("target", req.Metric.Target),
		zap.String("reason", string(c.Reason)),
		zap.Int("iterations", c.Iterations),
		zap.Int("evaluations", c.Evaluations),
		zap.Bool("converged", c.Converged),
		zap.Duration("elapsed", elapsed),
	)
	return c, nil
}

func (s *Solver) rootCandidate(prob problem, res rootResult) Candidate {
	c := prob.candidate(LabelOptimal, res.params, res.metrics)
	c.Iterations = res.iterations
	c.Reason = res.reason
	c.Boundary = res.boundary
	if res.reason != ReasonNone {
		c.Converged = false
	}
	switch {
	case res.label != "":
		c.Label = res.label
	case !c.Converged:
		c.Label = LabelBestEffort
	}
	return c
}
