package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/iwvelando/goalseek/pkg/constants"
)

const (
	ProblemKindRoot    = "root"
	ProblemKindCoupled = "coupled"
	ProblemKindChain   = "chain"
)

// Problem is one goal-seek directive: which parameters to adjust, which
// metrics to drive, and how.
type Problem struct {
	Name            string            `yaml:"name" mapstructure:"name"`
	Kind            string            `yaml:"kind,omitempty" mapstructure:"kind"`
	Parameters      []ParameterConfig `yaml:"parameters,omitempty" mapstructure:"parameters"`
	Metrics         []MetricConfig    `yaml:"metrics,omitempty" mapstructure:"metrics"`
	Steps           []StepConfig      `yaml:"steps,omitempty" mapstructure:"steps"`
	Linear          *LinearConfig     `yaml:"linear,omitempty" mapstructure:"linear"`
	MaxAlternatives *int              `yaml:"maxAlternatives,omitempty" mapstructure:"maxAlternatives"`
	Fixed           []Override        `yaml:"fixed,omitempty" mapstructure:"fixed"`
	Observe         []string          `yaml:"observe,omitempty" mapstructure:"observe"`
}

// ParameterConfig describes an adjustable cell and its safe range.
type ParameterConfig struct {
	Name      string   `yaml:"name" mapstructure:"name"`
	Kind      string   `yaml:"kind,omitempty" mapstructure:"kind"`
	Value     float64  `yaml:"value,omitempty" mapstructure:"value"`
	Min       *float64 `yaml:"min,omitempty" mapstructure:"min"`
	Max       *float64 `yaml:"max,omitempty" mapstructure:"max"`
	Precision float64  `yaml:"precision,omitempty" mapstructure:"precision"`
}

// MetricConfig describes a target cell. Min and Max form an optional safe range.
type MetricConfig struct {
	Name      string   `yaml:"name" mapstructure:"name"`
	Target    float64  `yaml:"target" mapstructure:"target"`
	Tolerance float64  `yaml:"tolerance,omitempty" mapstructure:"tolerance"`
	Kind      string   `yaml:"kind,omitempty" mapstructure:"kind"`
	Min       *float64 `yaml:"min,omitempty" mapstructure:"min"`
	Max       *float64 `yaml:"max,omitempty" mapstructure:"max"`
}

// StepConfig is one root find within a chain.
type StepConfig struct {
	Parameter ParameterConfig `yaml:"parameter" mapstructure:"parameter"`
	Metric    MetricConfig    `yaml:"metric" mapstructure:"metric"`
	Fixed     []Override      `yaml:"fixed,omitempty" mapstructure:"fixed"`
	Observe   []string        `yaml:"observe,omitempty" mapstructure:"observe"`
}

// LinearConfig marks a metric as near-linear in a parameter.
type LinearConfig struct {
	Metric    string `yaml:"metric" mapstructure:"metric"`
	Parameter string `yaml:"parameter" mapstructure:"parameter"`
}

// Override pins a cell to a value for the whole solve. Overrides are a list
// rather than a map because cell names are case-sensitive.
type Override struct {
	Name  string  `yaml:"name" mapstructure:"name"`
	Value float64 `yaml:"value" mapstructure:"value"`
}

// CanonicalParameterKind returns the canonical identifier for a parameter kind.
func CanonicalParameterKind(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return constants.KindNumber
	}
	switch strings.ToLower(trimmed) {
	case "amount", "money", "currency", "monetary":
		return constants.KindAmount
	case "ratio", "rate", "margin", "coefficient":
		return constants.KindRatio
	case "number", "numeric", "scalar":
		return constants.KindNumber
	default:
		return strings.ToLower(trimmed)
	}
}

// CanonicalProblemKind returns the canonical identifier for a problem kind.
// An empty value stays empty so Normalize can infer it.
func CanonicalProblemKind(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return ""
	case "root", "single", "bisection":
		return ProblemKindRoot
	case "coupled", "pair", "two-parameter", "two_parameter":
		return ProblemKindCoupled
	case "chain", "sequential", "combined":
		return ProblemKindChain
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

// Normalize ensures defaults and canonical values are applied before validation.
func (p *Problem) Normalize() {
	if p == nil {
		return
	}
	p.Name = strings.TrimSpace(p.Name)
	p.Kind = CanonicalProblemKind(p.Kind)
	if p.Kind == "" {
		switch {
		case len(p.Steps) > 0:
			p.Kind = ProblemKindChain
		case len(p.Parameters) == 2:
			p.Kind = ProblemKindCoupled
		default:
			p.Kind = ProblemKindRoot
		}
	}
	for i := range p.Parameters {
		p.Parameters[i].Normalize()
	}
	for i := range p.Metrics {
		p.Metrics[i].Normalize()
	}
	for i := range p.Steps {
		p.Steps[i].Parameter.Normalize()
		p.Steps[i].Metric.Normalize()
	}
	if p.Kind == ProblemKindCoupled && p.MaxAlternatives == nil {
		n := constants.DefaultMaxAlternatives
		p.MaxAlternatives = &n
	}
}

// Normalize canonicalizes the parameter kind.
func (pc *ParameterConfig) Normalize() {
	pc.Name = strings.TrimSpace(pc.Name)
	pc.Kind = CanonicalParameterKind(pc.Kind)
}

// Normalize applies the default tolerance. The kind only affects display and
// stays empty unless given.
func (mc *MetricConfig) Normalize() {
	mc.Name = strings.TrimSpace(mc.Name)
	if strings.TrimSpace(mc.Kind) != "" {
		mc.Kind = CanonicalParameterKind(mc.Kind)
	}
	if mc.Tolerance <= 0 {
		mc.Tolerance = constants.DefaultTolerance
	}
}

// Validate returns an error when the problem cannot be solved as configured.
func (p *Problem) Validate() error {
	if p == nil {
		return fmt.Errorf("problem cannot be nil")
	}

	p.Normalize()

	if p.Name == "" {
		return fmt.Errorf("problem name cannot be empty")
	}
	for _, o := range p.Fixed {
		if strings.TrimSpace(o.Name) == "" {
			return fmt.Errorf("fixed override name cannot be empty")
		}
	}

	switch p.Kind {
	case ProblemKindRoot:
		if len(p.Parameters) != 1 || len(p.Metrics) != 1 {
			return fmt.Errorf("root problems require exactly one parameter and one metric, got %d and %d",
				len(p.Parameters), len(p.Metrics))
		}
	case ProblemKindCoupled:
		if len(p.Parameters) != 2 || len(p.Metrics) != 2 {
			return fmt.Errorf("coupled problems require exactly two parameters and two metrics, got %d and %d",
				len(p.Parameters), len(p.Metrics))
		}
		if p.Parameters[0].Name == p.Parameters[1].Name {
			return fmt.Errorf("coupled parameters must be distinct")
		}
		if p.Metrics[0].Name == p.Metrics[1].Name {
			return fmt.Errorf("coupled metrics must be distinct")
		}
		if p.MaxAlternatives != nil && *p.MaxAlternatives < 0 {
			return fmt.Errorf("maximum alternatives %d must not be negative", *p.MaxAlternatives)
		}
		if p.Linear != nil {
			if !hasParameter(p.Parameters, p.Linear.Parameter) {
				return fmt.Errorf("linear hint parameter %q is not adjusted by this problem", p.Linear.Parameter)
			}
			if !hasMetric(p.Metrics, p.Linear.Metric) {
				return fmt.Errorf("linear hint metric %q is not targeted by this problem", p.Linear.Metric)
			}
		}
	case ProblemKindChain:
		if len(p.Steps) == 0 {
			return fmt.Errorf("chain problems require at least one step")
		}
		if len(p.Parameters) > 0 || len(p.Metrics) > 0 {
			return fmt.Errorf("chain problems declare parameters and metrics inside their steps")
		}
		seen := make(map[string]bool, len(p.Steps))
		for i, s := range p.Steps {
			if err := s.Parameter.Validate(); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
			if err := s.Metric.Validate(); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
			if seen[s.Parameter.Name] {
				return fmt.Errorf("step %d: parameter %q already adjusted by an earlier step", i+1, s.Parameter.Name)
			}
			seen[s.Parameter.Name] = true
		}
		return nil
	default:
		return fmt.Errorf("problem kind %q is not supported", p.Kind)
	}

	for _, pc := range p.Parameters {
		if err := pc.Validate(); err != nil {
			return err
		}
	}
	for _, mc := range p.Metrics {
		if err := mc.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the parameter's name, kind and range.
func (pc ParameterConfig) Validate() error {
	if pc.Name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}
	switch pc.Kind {
	case constants.KindAmount, constants.KindRatio, constants.KindNumber:
	default:
		return fmt.Errorf("parameter %s kind %q is not supported", pc.Name, pc.Kind)
	}
	if pc.Min == nil {
		return fmt.Errorf("parameter %s requires a minimum bound", pc.Name)
	}
	if pc.Max == nil {
		return fmt.Errorf("parameter %s requires a maximum bound", pc.Name)
	}
	if *pc.Min >= *pc.Max {
		return fmt.Errorf("parameter %s minimum %g must be less than maximum %g", pc.Name, *pc.Min, *pc.Max)
	}
	if pc.Precision < 0 {
		return fmt.Errorf("parameter %s precision %g must not be negative", pc.Name, pc.Precision)
	}
	return nil
}

// Validate checks the metric's name, target and optional safe range.
func (mc MetricConfig) Validate() error {
	if mc.Name == "" {
		return fmt.Errorf("metric name cannot be empty")
	}
	if math.IsNaN(mc.Target) || math.IsInf(mc.Target, 0) {
		return fmt.Errorf("metric %s target must be finite", mc.Name)
	}
	if (mc.Min == nil) != (mc.Max == nil) {
		return fmt.Errorf("metric %s safe range needs both minimum and maximum", mc.Name)
	}
	if mc.Min != nil && *mc.Min >= *mc.Max {
		return fmt.Errorf("metric %s minimum %g must be less than maximum %g", mc.Name, *mc.Min, *mc.Max)
	}
	return nil
}

func hasParameter(params []ParameterConfig, name string) bool {
	for _, p := range params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func hasMetric(metrics []MetricConfig, name string) bool {
	for _, m := range metrics {
		if m.Name == name {
			return true
		}
	}
	return false
}
