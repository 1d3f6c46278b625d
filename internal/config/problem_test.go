package config

import (
	"strings"
	"testing"

	"github.com/iwvelando/goalseek/pkg/constants"
)

func TestCanonicalParameterKind(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty defaults to number", input: "", expected: constants.KindNumber},
		{name: "amount casing", input: "Amount", expected: constants.KindAmount},
		{name: "currency alias", input: "currency", expected: constants.KindAmount},
		{name: "rate alias", input: " RATE ", expected: constants.KindRatio},
		{name: "numeric alias", input: "numeric", expected: constants.KindNumber},
		{name: "unknown lowered", input: "Custom", expected: "custom"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := CanonicalParameterKind(tc.input)
			if actual != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, actual)
			}
		})
	}
}

func TestProblemNormalizeInfersKind(t *testing.T) {
	testCases := []struct {
		name     string
		problem  Problem
		expected string
	}{
		{
			name:     "single parameter",
			problem:  Problem{Parameters: []ParameterConfig{{Name: "a"}}},
			expected: ProblemKindRoot,
		},
		{
			name:     "two parameters",
			problem:  Problem{Parameters: []ParameterConfig{{Name: "a"}, {Name: "b"}}},
			expected: ProblemKindCoupled,
		},
		{
			name:     "steps",
			problem:  Problem{Steps: []StepConfig{{}}},
			expected: ProblemKindChain,
		},
		{
			name:     "explicit alias",
			problem:  Problem{Kind: "Pair"},
			expected: ProblemKindCoupled,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.problem.Normalize()
			if tc.problem.Kind != tc.expected {
				t.Fatalf("expected kind %q, got %q", tc.expected, tc.problem.Kind)
			}
		})
	}
}

func TestProblemNormalizeDefaults(t *testing.T) {
	p := Problem{
		Name:       " margin ",
		Parameters: []ParameterConfig{{Name: "a", Min: floatPtr(0), Max: floatPtr(1)}, {Name: "b", Min: floatPtr(0), Max: floatPtr(1)}},
		Metrics:    []MetricConfig{{Name: "x"}, {Name: "y", Tolerance: 2}},
	}
	p.Normalize()

	if p.Name != "margin" {
		t.Fatalf("expected trimmed name, got %q", p.Name)
	}
	if p.Metrics[0].Tolerance != constants.DefaultTolerance {
		t.Fatalf("expected default tolerance, got %v", p.Metrics[0].Tolerance)
	}
	if p.Metrics[1].Tolerance != 2 {
		t.Fatalf("explicit tolerance overwritten: %v", p.Metrics[1].Tolerance)
	}
	if p.MaxAlternatives == nil || *p.MaxAlternatives != constants.DefaultMaxAlternatives {
		t.Fatalf("expected default alternatives, got %v", p.MaxAlternatives)
	}
	if p.Parameters[0].Kind != constants.KindNumber {
		t.Fatalf("expected number kind, got %q", p.Parameters[0].Kind)
	}
}

func TestProblemValidate(t *testing.T) {
	param := func(name string) ParameterConfig {
		return ParameterConfig{Name: name, Min: floatPtr(0), Max: floatPtr(1)}
	}
	metric := func(name string) MetricConfig {
		return MetricConfig{Name: name}
	}
	negative := -1

	tests := []struct {
		name    string
		problem Problem
		wantErr string
	}{
		{
			name:    "valid root",
			problem: Problem{Name: "r", Parameters: []ParameterConfig{param("a")}, Metrics: []MetricConfig{metric("x")}},
		},
		{
			name: "valid coupled",
			problem: Problem{
				Name:       "c",
				Parameters: []ParameterConfig{param("a"), param("b")},
				Metrics:    []MetricConfig{metric("x"), metric("y")},
				Linear:     &LinearConfig{Metric: "y", Parameter: "b"},
			},
		},
		{
			name: "valid chain",
			problem: Problem{
				Name:  "s",
				Steps: []StepConfig{{Parameter: param("a"), Metric: metric("x")}, {Parameter: param("b"), Metric: metric("y")}},
			},
		},
		{
			name:    "missing name",
			problem: Problem{Parameters: []ParameterConfig{param("a")}, Metrics: []MetricConfig{metric("x")}},
			wantErr: "name cannot be empty",
		},
		{
			name:    "root without metric",
			problem: Problem{Name: "r", Parameters: []ParameterConfig{param("a")}},
			wantErr: "exactly one parameter and one metric",
		},
		{
			name:    "missing minimum",
			problem: Problem{Name: "r", Parameters: []ParameterConfig{{Name: "a", Max: floatPtr(1)}}, Metrics: []MetricConfig{metric("x")}},
			wantErr: "minimum bound",
		},
		{
			name:    "inverted range",
			problem: Problem{Name: "r", Parameters: []ParameterConfig{{Name: "a", Min: floatPtr(2), Max: floatPtr(1)}}, Metrics: []MetricConfig{metric("x")}},
			wantErr: "must be less than maximum",
		},
		{
			name:    "unsupported parameter kind",
			problem: Problem{Name: "r", Parameters: []ParameterConfig{{Name: "a", Kind: "date", Min: floatPtr(0), Max: floatPtr(1)}}, Metrics: []MetricConfig{metric("x")}},
			wantErr: "not supported",
		},
		{
			name:    "half metric range",
			problem: Problem{Name: "r", Parameters: []ParameterConfig{param("a")}, Metrics: []MetricConfig{{Name: "x", Min: floatPtr(0)}}},
			wantErr: "both minimum and maximum",
		},
		{
			name: "coupled duplicate parameters",
			problem: Problem{
				Name:       "c",
				Parameters: []ParameterConfig{param("a"), param("a")},
				Metrics:    []MetricConfig{metric("x"), metric("y")},
			},
			wantErr: "parameters must be distinct",
		},
		{
			name: "coupled unknown linear parameter",
			problem: Problem{
				Name:       "c",
				Parameters: []ParameterConfig{param("a"), param("b")},
				Metrics:    []MetricConfig{metric("x"), metric("y")},
				Linear:     &LinearConfig{Metric: "y", Parameter: "z"},
			},
			wantErr: "linear hint parameter",
		},
		{
			name: "coupled negative alternatives",
			problem: Problem{
				Name:            "c",
				Parameters:      []ParameterConfig{param("a"), param("b")},
				Metrics:         []MetricConfig{metric("x"), metric("y")},
				MaxAlternatives: &negative,
			},
			wantErr: "must not be negative",
		},
		{
			name:    "chain repeated parameter",
			problem: Problem{Name: "s", Steps: []StepConfig{{Parameter: param("a"), Metric: metric("x")}, {Parameter: param("a"), Metric: metric("y")}}},
			wantErr: "already adjusted",
		},
		{
			name:    "unknown kind",
			problem: Problem{Name: "u", Kind: "annealing"},
			wantErr: "not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.problem.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func floatPtr(value float64) *float64 {
	return &value
}
