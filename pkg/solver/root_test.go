package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestFindRootConvergesOnDecliningMetric(t *testing.T) {
	model := declining()
	s := newTestSolver(model)

	c, err := s.FindRoot(context.Background(), RootRequest{
		Parameter: marginParameter(),
		Metric:    Metric{Name: "E31", Target: 0, Tolerance: 0.009},
	})
	if err != nil {
		t.Fatalf("FindRoot returned error: %v", err)
	}

	if !c.Converged {
		t.Fatalf("expected convergence, got %+v", c)
	}
	if c.Label != LabelOptimal {
		t.Fatalf("expected label %q, got %q", LabelOptimal, c.Label)
	}
	got := c.Parameters["G25"]
	if got < 0.85 || got > 1.0 {
		t.Fatalf("parameter %v left its safe range", got)
	}
	if math.Abs(got-0.95) > 1e-4 {
		t.Fatalf("expected G25 near 0.95, got %v", got)
	}
	if math.Abs(c.Metrics["E31"]) >= 0.009 {
		t.Fatalf("metric %v outside tolerance", c.Metrics["E31"])
	}
	if c.Reason != ReasonNone || c.Boundary != nil {
		t.Fatalf("unexpected boundary information: %q %+v", c.Reason, c.Boundary)
	}
	if c.Evaluations != model.calls {
		t.Fatalf("candidate reports %d evaluations, oracle saw %d", c.Evaluations, model.calls)
	}
	if c.Evaluations > DefaultTuning().MaxIterations+3 {
		t.Fatalf("too many evaluations: %d", c.Evaluations)
	}
}

func TestFindRootConvergesOnRisingMetric(t *testing.T) {
	model := &fakeModel{
		defaults: map[string]float64{"B11": 0},
		formulas: map[string]func(Vector) float64{
			"G22": func(v Vector) float64 { return v["B11"]*0.1 - 1000 },
		},
	}
	s := newTestSolver(model)

	c, err := s.FindRoot(context.Background(), RootRequest{
		Parameter: Parameter{Name: "B11", Range: Range{Min: 0, Max: 1e7}, Kind: "amount"},
		Metric:    Metric{Name: "G22", Target: 0, Tolerance: 0.009},
	})
	if err != nil {
		t.Fatalf("FindRoot returned error: %v", err)
	}
	if !c.Converged {
		t.Fatalf("expected convergence, got %+v", c)
	}
	if c.Parameters["B11"] != 10000 {
		t.Fatalf("expected B11 = 10000, got %v", c.Parameters["B11"])
	}
}

func TestFindRootFallsBackToBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		target    float64
		reason    Reason
		label     string
		parameter float64
		achieved  float64
	}{
		{
			name:      "target above reachable maximum",
			target:    50,
			reason:    ReasonTargetTooHigh,
			label:     LabelBoundaryLow,
			parameter: 0.85,
			achieved:  20,
		},
		{
			name:      "target below reachable minimum",
			target:    -50,
			reason:    ReasonTargetTooLow,
			label:     LabelBoundaryHigh,
			parameter: 1.0,
			achieved:  -10,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := declining()
			s := newTestSolver(model)
			c, err := s.FindRoot(context.Background(), RootRequest{
				Parameter: marginParameter(),
				Metric:    Metric{Name: "E31", Target: tc.target, Tolerance: 0.009},
			})
			if err != nil {
				t.Fatalf("FindRoot returned error: %v", err)
			}
			if c.Converged {
				t.Fatalf("boundary fallback must not report convergence")
			}
			if c.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, c.Reason)
			}
			if c.Label != tc.label {
				t.Fatalf("expected label %q, got %q", tc.label, c.Label)
			}
			if math.Abs(c.Parameters["G25"]-tc.parameter) > 1e-12 {
				t.Fatalf("expected parameter %v, got %v", tc.parameter, c.Parameters["G25"])
			}
			if c.Boundary == nil {
				t.Fatalf("expected boundary details")
			}
			if c.Boundary.Target != tc.target || math.Abs(c.Boundary.Achieved-tc.achieved) > 1e-9 {
				t.Fatalf("unexpected boundary %+v", c.Boundary)
			}
			if model.calls != 2 {
				t.Fatalf("boundary fallback should cost two evaluations, got %d", model.calls)
			}
		})
	}
}

func TestFindRootIsIdempotent(t *testing.T) {
	req := RootRequest{
		Parameter: marginParameter(),
		Metric:    Metric{Name: "E31", Target: 3, Tolerance: 0.009},
		Observe:   []string{"G25"},
	}
	s := newTestSolver(declining())

	first, err := s.FindRoot(context.Background(), req)
	if err != nil {
		t.Fatalf("first FindRoot: %v", err)
	}
	second, err := s.FindRoot(context.Background(), req)
	if err != nil {
		t.Fatalf("second FindRoot: %v", err)
	}
	if diff := cmp.Diff(first, second, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("repeated solve differs (-first +second):\n%s", diff)
	}
}

func TestFindRootRejectsBadRequestsBeforeEvaluating(t *testing.T) {
	cases := []struct {
		name string
		req  RootRequest
		want error
	}{
		{
			name: "inverted range",
			req: RootRequest{
				Parameter: Parameter{Name: "G25", Range: Range{Min: 1, Max: 0.85}},
				Metric:    Metric{Name: "E31", Tolerance: 0.009},
			},
			want: ErrInvalidRange,
		},
		{
			name: "empty range",
			req: RootRequest{
				Parameter: Parameter{Name: "G25", Range: Range{Min: 1, Max: 1}},
				Metric:    Metric{Name: "E31", Tolerance: 0.009},
			},
			want: ErrInvalidRange,
		},
		{
			name: "zero tolerance",
			req: RootRequest{
				Parameter: marginParameter(),
				Metric:    Metric{Name: "E31"},
			},
			want: ErrInvalidTolerance,
		},
		{
			name: "negative tolerance",
			req: RootRequest{
				Parameter: marginParameter(),
				Metric:    Metric{Name: "E31", Tolerance: -1},
			},
			want: ErrInvalidTolerance,
		},
		{
			name: "missing parameter name",
			req: RootRequest{
				Parameter: Parameter{Range: Range{Min: 0, Max: 1}},
				Metric:    Metric{Name: "E31", Tolerance: 0.009},
			},
			want: ErrInvalidRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := declining()
			s := newTestSolver(model)
			_, err := s.FindRoot(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if model.calls != 0 {
				t.Fatalf("oracle called %d times for an invalid request", model.calls)
			}
		})
	}
}

func TestFindRootPropagatesOracleErrors(t *testing.T) {
	boom := errors.New("workbook closed")
	model := declining()
	model.failWith = boom
	s := newTestSolver(model)

	_, err := s.FindRoot(context.Background(), RootRequest{
		Parameter: marginParameter(),
		Metric:    Metric{Name: "E31", Tolerance: 0.009},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected oracle error, got %v", err)
	}
}

func TestFindRootHoldsFixedOverrides(t *testing.T) {
	model := &fakeModel{
		defaults: map[string]float64{"G25": 1, "E18": 0},
		formulas: map[string]func(Vector) float64{
			"E31": func(v Vector) float64 { return 100 - 0.005*v["E18"] - 400*(v["G25"]-0.85) },
		},
	}
	s := newTestSolver(model)

	c, err := s.FindRoot(context.Background(), RootRequest{
		Parameter: marginParameter(),
		Metric:    Metric{Name: "E31", Target: 0, Tolerance: 0.009},
		Fixed:     Vector{"E18": 10000},
	})
	if err != nil {
		t.Fatalf("FindRoot returned error: %v", err)
	}
	if !c.Converged {
		t.Fatalf("expected convergence, got %+v", c)
	}
	if math.Abs(c.Parameters["G25"]-0.975) > 1e-4 {
		t.Fatalf("expected G25 near 0.975, got %v", c.Parameters["G25"])
	}
}

func TestFindRootReportsOffGridBoundsExactly(t *testing.T) {
	amount := Parameter{Name: "P", Value: 50, Range: Range{Min: 10.4, Max: 99.6}, Kind: "amount"}
	ratio := Parameter{Name: "P", Value: 0.5, Range: Range{Min: 0.123454, Max: 0.900006}, Kind: "ratio"}

	cases := []struct {
		name      string
		param     Parameter
		target    float64
		reason    Reason
		label     string
		parameter float64
	}{
		{name: "amount above reach", param: amount, target: 5000, reason: ReasonTargetTooHigh, label: LabelBoundaryHigh, parameter: 99.6},
		{name: "amount below reach", param: amount, target: -500, reason: ReasonTargetTooLow, label: LabelBoundaryLow, parameter: 10.4},
		{name: "amount reachable", param: amount, target: 500, label: LabelOptimal, parameter: 50},
		{name: "ratio above reach", param: ratio, target: 5, reason: ReasonTargetTooHigh, label: LabelBoundaryHigh, parameter: 0.900006},
		{name: "ratio below reach", param: ratio, target: -5, reason: ReasonTargetTooLow, label: LabelBoundaryLow, parameter: 0.123454},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := &fakeModel{
				defaults: map[string]float64{"P": tc.param.Value},
				formulas: map[string]func(Vector) float64{
					"R": func(v Vector) float64 { return 10 * v["P"] },
				},
			}
			c, err := newTestSolver(model).FindRoot(context.Background(), RootRequest{
				Parameter: tc.param,
				Metric:    Metric{Name: "R", Target: tc.target, Tolerance: 1},
			})
			if err != nil {
				t.Fatalf("FindRoot returned error: %v", err)
			}
			if c.Reason != tc.reason || c.Label != tc.label {
				t.Fatalf("expected %q/%q, got %q/%q", tc.reason, tc.label, c.Reason, c.Label)
			}
			if got := c.Parameters["P"]; got != tc.parameter {
				t.Fatalf("expected parameter %v, got %v", tc.parameter, got)
			}
			if !c.InRange["P"] || len(c.Violations) != 0 {
				t.Fatalf("recommendation left its safe range: %v %v", c.InRange, c.Violations)
			}
			if c.Boundary != nil && c.Boundary.Parameter != tc.parameter {
				t.Fatalf("boundary reports parameter %v, expected %v", c.Boundary.Parameter, tc.parameter)
			}
		})
	}
}
