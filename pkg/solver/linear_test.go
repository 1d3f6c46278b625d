package solver

import (
	"context"
	"math"
	"testing"
)

func straightLine() *fakeModel {
	return &fakeModel{
		defaults: map[string]float64{"x": 0},
		formulas: map[string]func(Vector) float64{
			"y": func(v Vector) float64 { return 3*v["x"] + 7 },
		},
	}
}

func TestFitLinearRootCostsTwoEvaluations(t *testing.T) {
	model := straightLine()
	s := newTestSolver(model)

	fit, err := s.FitLinearRoot(context.Background(), RootRequest{
		Parameter: Parameter{Name: "x", Range: Range{Min: 0, Max: 10}},
		Metric:    Metric{Name: "y", Target: 19, Tolerance: 0.01},
	})
	if err != nil {
		t.Fatalf("FitLinearRoot returned error: %v", err)
	}
	if model.calls != 2 || fit.Evaluations != 2 {
		t.Fatalf("expected exactly two evaluations, oracle saw %d, fit reports %d", model.calls, fit.Evaluations)
	}
	if !fit.Solvable {
		t.Fatalf("expected a solvable fit")
	}
	if math.Abs(fit.Slope-3) > 1e-9 || math.Abs(fit.Intercept-7) > 1e-9 {
		t.Fatalf("unexpected line y = %v + %v x", fit.Intercept, fit.Slope)
	}
	if math.Abs(fit.Root-4) > 1e-9 {
		t.Fatalf("expected root 4, got %v", fit.Root)
	}
}

func TestFitLinearRootFlatMetric(t *testing.T) {
	model := &fakeModel{
		defaults: map[string]float64{"x": 0},
		formulas: map[string]func(Vector) float64{
			"y": func(Vector) float64 { return 5 },
		},
	}
	s := newTestSolver(model)

	fit, err := s.FitLinearRoot(context.Background(), RootRequest{
		Parameter: Parameter{Name: "x", Range: Range{Min: 0, Max: 10}},
		Metric:    Metric{Name: "y", Target: 1, Tolerance: 0.01},
	})
	if err != nil {
		t.Fatalf("FitLinearRoot returned error: %v", err)
	}
	if fit.Solvable {
		t.Fatalf("flat metric must not be solvable, got root %v", fit.Root)
	}
}

func TestLinearRootFallsBackToBisection(t *testing.T) {
	// Curved enough that the chord misses the tolerance.
	model := &fakeModel{
		defaults: map[string]float64{"x": 0},
		formulas: map[string]func(Vector) float64{
			"y": func(v Vector) float64 { return v["x"] * v["x"] },
		},
	}
	s := newTestSolver(model)
	p := Parameter{Name: "x", Range: Range{Min: 0, Max: 10}}
	m := Metric{Name: "y", Target: 30, Tolerance: 0.01}
	cache := s.newCache([]Parameter{p}, []string{"y"}, nil)

	res, err := s.linearRoot(context.Background(), cache, Vector{}, p, m)
	if err != nil {
		t.Fatalf("linearRoot returned error: %v", err)
	}
	if !m.Satisfied(res.metrics["y"]) {
		t.Fatalf("expected bisection to reach the target, got y = %v at x = %v", res.metrics["y"], res.params["x"])
	}
	if res.iterations < 1 {
		t.Fatalf("expected bisection iterations, got %d", res.iterations)
	}
}
