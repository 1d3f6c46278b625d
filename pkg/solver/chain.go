package solver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ChainOutcome is the result of a sequence of dependent root finds.
type ChainOutcome struct {
	SessionID    string      `json:"sessionId"`
	Steps        []Candidate `json:"steps"`
	Verification Candidate   `json:"verification"`
	Stats        Stats       `json:"stats"`
}

// SolveChain runs root finds in order. Each step holds every earlier step's
// answer fixed, so later parameters are searched against the adjusted model.
// The combined assignment is evaluated once more at the end to verify that the
// later steps did not disturb the earlier metrics.
func (s *Solver) SolveChain(ctx context.Context, steps []RootRequest) (ChainOutcome, error) {
	if len(steps) == 0 {
		return ChainOutcome{}, fmt.Errorf("%w: chain requires at least one step", ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(steps))
	for i, step := range steps {
		if err := step.validate(); err != nil {
			return ChainOutcome{}, fmt.Errorf("step %d: %w", i+1, err)
		}
		if seen[step.Parameter.Name] {
			return ChainOutcome{}, fmt.Errorf("%w: parameter %s adjusted by more than one step", ErrInvalidRequest, step.Parameter.Name)
		}
		seen[step.Parameter.Name] = true
	}

	start := time.Now()
	applied := Vector{}
	outcome := ChainOutcome{SessionID: s.id}
	verify := problem{}
	shared := Vector{}

	for i, step := range steps {
		s.report(scaled(20, 80, i, len(steps)), fmt.Sprintf("searching %s for %s", step.Parameter.Name, step.Metric.Name))

		for name, value := range step.Fixed {
			shared[name] = value
		}
		fixed := shared.Clone()
		for name, value := range applied {
			fixed[name] = value
		}
		prob := problem{params: []Parameter{step.Parameter}, metrics: []Metric{step.Metric}, observe: step.Observe}
		cache := s.newCache(prob.params, prob.cells(), fixed)
		res, err := s.bisect(ctx, cache, Vector{}, step.Parameter, step.Metric)
		if err != nil {
			return ChainOutcome{}, fmt.Errorf("step %d: %w", i+1, err)
		}

		c := s.rootCandidate(prob, res)
		c.Evaluations = cache.Evaluations()
		outcome.Steps = append(outcome.Steps, c)
		outcome.Stats.Evaluations += cache.Evaluations()
		outcome.Stats.CacheHits += cache.Hits()
		outcome.Stats.Iterations += c.Iterations

		applied[step.Parameter.Name] = c.Parameters[step.Parameter.Name]
		verify.params = append(verify.params, step.Parameter)
		verify.metrics = append(verify.metrics, step.Metric)
		verify.observe = append(verify.observe, step.Observe...)
	}

	s.report(90, "verifying result")
	cache := s.newCache(verify.params, verify.cells(), shared)
	metrics, err := cache.Evaluate(ctx, applied)
	if err != nil {
		return ChainOutcome{}, fmt.Errorf("verification: %w", err)
	}
	outcome.Verification = verify.candidate(LabelVerification, cache.Round(applied), metrics)
	outcome.Verification.Evaluations = cache.Evaluations()
	outcome.Stats.Evaluations += cache.Evaluations()

	converged := outcome.Verification.Converged
	for _, c := range outcome.Steps {
		converged = converged && c.Converged
	}
	outcome.Verification.Converged = converged
	outcome.Stats.Converged = converged
	outcome.Stats.Duration = time.Since(start)
	s.report(100, "complete")

	s.observer.ObserveSolve("chain", converged, outcome.Stats.Evaluations, outcome.Stats.Duration.Seconds())
	s.logger.Info("chained search finished",
		zap.String("op", "solver.SolveChain"),
		zap.Int("steps", len(steps)),
		zap.Any("parameters", outcome.Verification.Parameters),
		zap.Any("metrics", outcome.Verification.Metrics),
		zap.Int("evaluations", outcome.Stats.Evaluations),
		zap.Bool("converged", converged),
		zap.Duration("elapsed", outcome.Stats.Duration),
	)
	return outcome, nil
}
