package solver

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat"
)

// LinearFit is the line through a metric sampled at both ends of a parameter's
// safe range.
type LinearFit struct {
	Intercept   float64 `json:"intercept"`
	Slope       float64 `json:"slope"`
	Root        float64 `json:"root"`
	Solvable    bool    `json:"solvable"`
	Evaluations int     `json:"evaluations"`
}

// fitLine samples m at p's range ends with base held and solves the fitted
// line for m's target. Root is not clamped.
func (s *Solver) fitLine(ctx context.Context, cache *Cache, base Vector, p Parameter, m Metric) (LinearFit, error) {
	before := cache.Evaluations()
	xs := make([]float64, 0, 2)
	ys := make([]float64, 0, 2)
	for _, x := range []float64{p.Range.Min, p.Range.Max} {
		params := cache.Round(base.With(p.Name, x))
		metrics, err := cache.Evaluate(ctx, params)
		if err != nil {
			return LinearFit{}, err
		}
		xs = append(xs, params[p.Name])
		ys = append(ys, metrics[m.Name])
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	fit := LinearFit{
		Intercept:   alpha,
		Slope:       beta,
		Evaluations: cache.Evaluations() - before,
	}
	if beta != 0 && !math.IsNaN(beta) && !math.IsInf(beta, 0) {
		fit.Root = (m.Target - alpha) / beta
		fit.Solvable = true
	}
	return fit, nil
}

// FitLinearRoot fits a line through the metric at both ends of the parameter's
// range and returns the parameter value where the line meets the target. It
// costs exactly two oracle evaluations.
func (s *Solver) FitLinearRoot(ctx context.Context, req RootRequest) (LinearFit, error) {
	if err := req.validate(); err != nil {
		return LinearFit{}, err
	}
	prob := problem{params: []Parameter{req.Parameter}, metrics: []Metric{req.Metric}}
	cache := s.newCache(prob.params, prob.cells(), req.Fixed)
	return s.fitLine(ctx, cache, Vector{}, req.Parameter, req.Metric)
}

// linearRoot solves m on p through a two-point fit and verifies the answer with
// one more evaluation. When the line is flat or the verified metric misses its
// tolerance it falls back to bisection, which reuses the cached range ends.
func (s *Solver) linearRoot(ctx context.Context, cache *Cache, base Vector, p Parameter, m Metric) (rootResult, error) {
	fit, err := s.fitLine(ctx, cache, base, p, m)
	if err != nil {
		return rootResult{}, err
	}
	if fit.Solvable {
		value := p.Range.Clamp(fit.Root)
		params := cache.Round(base.With(p.Name, value))
		metrics, err := cache.Evaluate(ctx, params)
		if err != nil {
			return rootResult{}, err
		}
		if m.Satisfied(metrics[m.Name]) {
			return rootResult{params: params, metrics: metrics, iterations: 1}, nil
		}
	}
	return s.bisect(ctx, cache, base, p, m)
}
