package solver

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// alternatives produces up to req.MaxAlternatives trade-off candidates. The
// first favours the tighter-tolerance metric regardless of the other; the rest
// hold the tighter metric's parameter at evenly spaced interior values and
// solve the looser metric on its own parameter with the two-point fit.
// Duplicates are kept.
func (s *Solver) alternatives(ctx context.Context, cache *Cache, prob problem, req CoupledRequest) ([]Candidate, error) {
	count := req.MaxAlternatives
	if count <= 0 {
		return nil, nil
	}
	pairs := req.pairs()
	tight, loose := pairs[0], pairs[1]
	if loose.metric.Tolerance < tight.metric.Tolerance {
		tight, loose = loose, tight
	}

	out := make([]Candidate, 0, count)
	if prioritized, ok := s.prioritize(cache, prob, tight.metric); ok {
		out = append(out, prioritized)
	}

	remaining := count - len(out)
	if remaining <= 0 {
		return out, nil
	}
	fixed := floats.Span(make([]float64, remaining+2), tight.param.Range.Min, tight.param.Range.Max)
	for k, value := range fixed[1 : remaining+1] {
		base := cache.Round(Vector{tight.param.Name: value})
		res, err := s.linearRoot(ctx, cache, base, loose.param, loose.metric)
		if err != nil {
			return nil, err
		}
		c := prob.candidate(fmt.Sprintf("alternative-%d", k+1), res.params, res.metrics)
		c.Iterations = res.iterations
		c.Reason = res.reason
		c.Boundary = res.boundary
		out = append(out, c)
	}
	return out, nil
}

// prioritize picks, among everything evaluated so far, the point with the
// smallest deviation of m, breaking ties on the overall score.
func (s *Solver) prioritize(cache *Cache, prob problem, m Metric) (Candidate, bool) {
	samples := cache.Samples()
	bestIdx := -1
	bestDev, bestScore := math.Inf(1), math.Inf(1)
	for i, sample := range samples {
		if len(sample.Parameters) < len(prob.params) {
			continue
		}
		dev := math.Abs(m.Deviation(sample.Metrics[m.Name]))
		score := prob.score(sample.Metrics)
		if dev < bestDev || (dev == bestDev && score < bestScore) {
			bestIdx, bestDev, bestScore = i, dev, score
		}
	}
	if bestIdx < 0 {
		return Candidate{}, false
	}
	sample := samples[bestIdx]
	return prob.candidate("priority-"+m.Name, sample.Parameters, sample.Metrics), true
}
