package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/iwvelando/goalseek/pkg/oracle"
	"github.com/iwvelando/goalseek/pkg/solver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestCollectorCountsLookupsAndSolves(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	c.ObserveLookup(false)
	c.ObserveLookup(true)
	c.ObserveLookup(true)
	c.ObserveSolve("root", true, 12, 0.5)

	if got := testutil.ToFloat64(c.lookups.WithLabelValues("hit")); got != 2 {
		t.Fatalf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(c.lookups.WithLabelValues("miss")); got != 1 {
		t.Fatalf("expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(c.solves.WithLabelValues("root", "true")); got != 1 {
		t.Fatalf("expected 1 converged root solve, got %v", got)
	}

	expected := `
# HELP goalseek_solver_solves_total Completed solves by kind and convergence.
# TYPE goalseek_solver_solves_total counter
goalseek_solver_solves_total{converged="true",kind="root"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "goalseek_solver_solves_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestCollectorRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewCollector(reg); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := NewCollector(reg); err == nil {
		t.Fatalf("expected error registering twice")
	}
}

func TestCollectorObservesSolver(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	calls := 0
	o := oracle.Func(func(_ context.Context, overrides map[string]float64, _ []string) (map[string]*float64, error) {
		calls++
		v := 3*overrides["x"] - 12
		return map[string]*float64{"y": &v}, nil
	})
	s, err := solver.NewSolver(zap.NewNop(), o, solver.DefaultTuning(), solver.WithObserver(c))
	if err != nil {
		t.Fatalf("NewSolver returned error: %v", err)
	}
	out, err := s.FindRoot(context.Background(), solver.RootRequest{
		Parameter: solver.Parameter{Name: "x", Range: solver.Range{Min: 0, Max: 10}},
		Metric:    solver.Metric{Name: "y", Target: 0, Tolerance: 0.01},
	})
	if err != nil {
		t.Fatalf("FindRoot returned error: %v", err)
	}

	if got := testutil.ToFloat64(c.lookups.WithLabelValues("miss")); int(got) != calls {
		t.Fatalf("expected %d misses, got %v", calls, got)
	}
	converged := "false"
	if out.Converged {
		converged = "true"
	}
	if got := testutil.ToFloat64(c.solves.WithLabelValues("root", converged)); got != 1 {
		t.Fatalf("expected one root solve, got %v", got)
	}
	if n := testutil.CollectAndCount(c.evaluations); n != 1 {
		t.Fatalf("expected one evaluations series, got %d", n)
	}
}
