package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/iwvelando/goalseek/pkg/mathutil"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// pair couples a metric with the parameter used to bisect it.
type pair struct {
	param  Parameter
	metric Metric
	linear bool
}

// pairs returns the bisection pairing. By default Metrics[i] goes with
// Parameters[i]; a linear hint overrides the pairing for its metric.
func (r CoupledRequest) pairs() [2]pair {
	out := [2]pair{
		{param: r.Parameters[0], metric: r.Metrics[0]},
		{param: r.Parameters[1], metric: r.Metrics[1]},
	}
	if r.Linear == nil {
		return out
	}
	mi := r.metricIndex(r.Linear.Metric)
	pi := r.parameterIndex(r.Linear.Parameter)
	out[mi] = pair{param: r.Parameters[pi], metric: r.Metrics[mi], linear: true}
	out[1-mi] = pair{param: r.Parameters[1-pi], metric: r.Metrics[1-mi]}
	return out
}

func axis(p Parameter, n int) []float64 {
	return floats.Span(make([]float64, n), p.Range.Min, p.Range.Max)
}

func (s *Solver) probe(ctx context.Context, cache *Cache, prob problem, params Vector) (point, error) {
	rounded := cache.Round(params)
	metrics, err := cache.Evaluate(ctx, rounded)
	if err != nil {
		return point{}, err
	}
	return point{params: rounded, metrics: metrics, score: prob.score(metrics)}, nil
}

// SolveCoupled searches two parameters jointly for a point where both metrics
// meet their tolerances. It always returns a best candidate; Converged is set
// only when every metric is satisfied.
func (s *Solver) SolveCoupled(ctx context.Context, req CoupledRequest) (Outcome, error) {
	if err := req.validate(); err != nil {
		return Outcome{}, err
	}
	start := time.Now()
	prob := problem{params: req.Parameters[:], metrics: req.Metrics[:], observe: req.Observe}
	cache := s.newCache(prob.params, prob.cells(), req.Fixed)

	s.report(10, "reading current values")
	current, err := s.currentCandidate(ctx, prob, req.Fixed)
	if err != nil {
		return Outcome{}, err
	}

	best, err := s.coarseSearch(ctx, cache, prob, req)
	if err != nil {
		return Outcome{}, err
	}

	s.report(55, "refining around best sample")
	best, err = s.refine(ctx, cache, prob, req, best)
	if err != nil {
		return Outcome{}, err
	}

	iterations := 0
	s.report(65, "local bisection")
	best, n, err := s.polish(ctx, cache, prob, req, best)
	if err != nil {
		return Outcome{}, err
	}
	iterations += n

	s.report(75, "gradient descent")
	best, n, err = s.descend(ctx, cache, prob, req, best)
	if err != nil {
		return Outcome{}, err
	}
	iterations += n

	var alternatives []Candidate
	if req.MaxAlternatives > 0 {
		s.report(85, "generating alternatives")
		alternatives, err = s.alternatives(ctx, cache, prob, req)
		if err != nil {
			return Outcome{}, err
		}
	}

	s.report(90, "verifying result")
	bestCandidate := prob.candidate(LabelOptimal, best.params, best.metrics)
	if !bestCandidate.Converged {
		bestCandidate.Label = LabelBestEffort
	}
	bestCandidate.Iterations = iterations
	bestCandidate.Evaluations = cache.Evaluations()

	outcome := Outcome{
		SessionID:    s.id,
		Current:      current,
		Best:         bestCandidate,
		Alternatives: alternatives,
		Stats: Stats{
			Evaluations: cache.Evaluations() + 1,
			CacheHits:   cache.Hits(),
			Iterations:  iterations,
			Converged:   bestCandidate.Converged,
			Duration:    time.Since(start),
		},
	}
	s.report(100, "complete")

	s.observer.ObserveSolve("coupled", outcome.Stats.Converged, outcome.Stats.Evaluations, outcome.Stats.Duration.Seconds())
	s.logger.Info("coupled search finished",
		zap.String("op", "solver.SolveCoupled"),
		zap.Any("parameters", bestCandidate.Parameters),
		zap.Any("metrics", bestCandidate.Metrics),
		zap.Float64("score", bestCandidate.Score),
		zap.Int("alternatives", len(alternatives)),
		zap.Int("iterations", iterations),
		zap.Int("evaluations", outcome.Stats.Evaluations),
		zap.Int("cacheHits", outcome.Stats.CacheHits),
		zap.Bool("converged", outcome.Stats.Converged),
		zap.Duration("elapsed", outcome.Stats.Duration),
	)
	return outcome, nil
}

// Current reports the model as it stands: the parameters' own cell values with
// the metrics and observed cells they produce. Only fixed overrides are sent.
func (s *Solver) Current(ctx context.Context, params []Parameter, metrics []Metric, fixed Vector, observe []string) (Candidate, error) {
	for _, p := range params {
		if err := p.validate(); err != nil {
			return Candidate{}, err
		}
	}
	for _, m := range metrics {
		if err := m.validate(); err != nil {
			return Candidate{}, err
		}
	}
	return s.currentCandidate(ctx, problem{params: params, metrics: metrics, observe: observe}, fixed)
}

// currentCandidate evaluates the model without overriding the adjusted
// parameters, so their own cells report the values in force.
func (s *Solver) currentCandidate(ctx context.Context, prob problem, fixed Vector) (Candidate, error) {
	cells := prob.cells()
	for _, p := range prob.params {
		cells = append(cells, p.Name)
	}
	overrides := fixed.Clone()
	for _, p := range prob.params {
		delete(overrides, p.Name)
	}
	result, err := s.oracle.Evaluate(ctx, overrides, cells)
	if err != nil {
		return Candidate{}, fmt.Errorf("oracle evaluation of current values failed: %w", err)
	}

	params := make(Vector, len(prob.params))
	for _, p := range prob.params {
		params[p.Name] = p.Value
		if v, ok := result[p.Name]; ok && finite(v) {
			params[p.Name] = *v
		}
	}
	metrics := make(Vector, len(cells))
	for _, name := range prob.cells() {
		metrics[name] = s.tuning.NullValue
		if v, ok := result[name]; ok && finite(v) {
			metrics[name] = *v
		}
	}
	c := prob.candidate(LabelCurrent, params, metrics)
	c.Evaluations = 1
	return c, nil
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func (s *Solver) coarseSearch(ctx context.Context, cache *Cache, prob problem, req CoupledRequest) (point, error) {
	pa, pb := req.Parameters[0], req.Parameters[1]
	n := s.tuning.CoarseSamples
	best := point{score: math.Inf(1)}
	for i, a := range axis(pa, n) {
		s.report(scaled(20, 50, i, n), fmt.Sprintf("sampling %s = %g", pa.Name, a))
		for _, b := range axis(pb, n) {
			pt, err := s.probe(ctx, cache, prob, Vector{pa.Name: a, pb.Name: b})
			if err != nil {
				return point{}, err
			}
			if pt.better(best) {
				best = pt
			}
		}
	}
	s.logger.Debug("coarse grid sampled",
		zap.String("op", "solver.coarseSearch"),
		zap.Any("best", best.params),
		zap.Float64("score", best.score),
		zap.Int("evaluations", cache.Evaluations()),
	)
	return best, nil
}

func (s *Solver) refine(ctx context.Context, cache *Cache, prob problem, req CoupledRequest, best point) (point, error) {
	windows := [2][]float64{}
	for i, p := range req.Parameters {
		half := p.Range.Span() / float64(s.tuning.CoarseSamples-1) * s.tuning.RefineSpan
		center := best.params[p.Name]
		lo := p.Range.Clamp(center - half)
		hi := p.Range.Clamp(center + half)
		windows[i] = floats.Span(make([]float64, s.tuning.RefineSamples), lo, hi)
	}
	pa, pb := req.Parameters[0], req.Parameters[1]
	for _, a := range windows[0] {
		for _, b := range windows[1] {
			pt, err := s.probe(ctx, cache, prob, Vector{pa.Name: a, pb.Name: b})
			if err != nil {
				return point{}, err
			}
			if pt.better(best) {
				best = pt
			}
		}
	}
	return best, nil
}

// polish alternates single-parameter root finds, holding the partner parameter
// at its current best, and keeps each result only when it lowers the score.
func (s *Solver) polish(ctx context.Context, cache *Cache, prob problem, req CoupledRequest, best point) (point, int, error) {
	iterations := 0
	for round := 0; round < s.tuning.PolishRounds && !prob.satisfied(best.metrics); round++ {
		improved := false
		for _, pr := range req.pairs() {
			var res rootResult
			var err error
			if pr.linear {
				res, err = s.linearRoot(ctx, cache, best.params, pr.param, pr.metric)
			} else {
				res, err = s.bisect(ctx, cache, best.params, pr.param, pr.metric)
			}
			if err != nil {
				return point{}, iterations, err
			}
			iterations += res.iterations
			cand := point{params: res.params, metrics: res.metrics, score: prob.score(res.metrics)}
			if cand.better(best) {
				best = cand
				improved = true
			}
		}
		if !improved {
			break
		}
	}
	return best, iterations, nil
}

// descend walks the score downhill using the sign of forward differences only.
// Step magnitudes are fixed per axis so a ratio and a monetary parameter move
// comparably despite their scales.
func (s *Solver) descend(ctx context.Context, cache *Cache, prob problem, req CoupledRequest, best point) (point, int, error) {
	var steps, deltas [2]float64
	for i, p := range req.Parameters {
		steps[i] = math.Max(p.Range.Span()*s.tuning.GradientStepFraction, p.Step())
		deltas[i] = math.Max(p.Range.Span()*s.tuning.DifferenceFraction, p.Step())
	}

	iterations := 0
	for iterations < s.tuning.GradientIterations && !prob.satisfied(best.metrics) {
		var grad [2]float64
		for i, p := range req.Parameters {
			x := best.params[p.Name]
			xh := x + deltas[i]
			if xh > p.Range.Max {
				xh = x - deltas[i]
			}
			pt, err := s.probe(ctx, cache, prob, best.params.With(p.Name, p.Range.Clamp(xh)))
			if err != nil {
				return point{}, iterations, err
			}
			dx := pt.params[p.Name] - x
			if dx != 0 {
				grad[i] = (pt.score - best.score) / dx
			}
		}

		next := best.params.Clone()
		moved := false
		for i, p := range req.Parameters {
			if grad[i] == 0 {
				continue
			}
			next[p.Name] = p.Range.Clamp(best.params[p.Name] - steps[i]*mathutil.Sign(grad[i]))
			moved = moved || next[p.Name] != best.params[p.Name]
		}
		if !moved {
			break
		}
		cand, err := s.probe(ctx, cache, prob, next)
		if err != nil {
			return point{}, iterations, err
		}
		if !cand.better(best) {
			break
		}
		best = cand
		iterations++
	}
	return best, iterations, nil
}
