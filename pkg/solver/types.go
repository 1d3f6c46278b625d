// Package solver drives metrics computed by an expensive oracle to target values
// by adjusting one or two bounded parameters.
package solver

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/iwvelando/goalseek/pkg/constants"
	"github.com/iwvelando/goalseek/pkg/mathutil"
)

var (
	// ErrInvalidRange reports an empty, inverted or non-finite safe range.
	ErrInvalidRange = errors.New("invalid safe range")

	// ErrInvalidTolerance reports a non-positive or non-finite tolerance.
	ErrInvalidTolerance = errors.New("invalid tolerance")

	// ErrInvalidRequest reports a structurally unusable request.
	ErrInvalidRequest = errors.New("invalid request")
)

// Reason explains why a candidate sits on a boundary.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonTargetTooLow  Reason = "target_too_low"
	ReasonTargetTooHigh Reason = "target_too_high"
)

// Candidate labels.
const (
	LabelOptimal      = "optimal"
	LabelBestEffort   = "best-effort"
	LabelBoundaryLow  = "boundary-low"
	LabelBoundaryHigh = "boundary-high"
	LabelCurrent      = "current"
	LabelVerification = "verification"
)

// Range is an inclusive safe interval.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Span returns Max-Min.
func (r Range) Span() float64 {
	return r.Max - r.Min
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	return mathutil.Clamp(v, r.Min, r.Max)
}

// Validate rejects empty, inverted and non-finite ranges.
func (r Range) Validate(name string) error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
		return fmt.Errorf("%s: %w: bounds must be finite", name, ErrInvalidRange)
	}
	if r.Min >= r.Max {
		return fmt.Errorf("%s: %w: minimum %g must be less than maximum %g", name, ErrInvalidRange, r.Min, r.Max)
	}
	return nil
}

// Parameter is an adjustable oracle input.
type Parameter struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Range     Range   `json:"range"`
	Kind      string  `json:"kind,omitempty"`
	Precision float64 `json:"precision,omitempty"`
}

// Step returns the absolute resolution of the parameter. Amounts resolve to
// whole units, ratios to five decimals, anything else relative to its span.
func (p Parameter) Step() float64 {
	if p.Precision > 0 {
		return p.Precision
	}
	switch p.Kind {
	case constants.KindAmount:
		return constants.AmountPrecision
	case constants.KindRatio:
		return constants.RatioPrecision
	default:
		return mathutil.DefaultStep(p.Range.Span(), constants.NumberPrecisionDigits)
	}
}

func (p Parameter) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: parameter name cannot be empty", ErrInvalidRequest)
	}
	if err := p.Range.Validate(p.Name); err != nil {
		return err
	}
	if p.Precision < 0 || math.IsNaN(p.Precision) {
		return fmt.Errorf("%w: parameter %s precision must not be negative", ErrInvalidRequest, p.Name)
	}
	return nil
}

// Metric is an oracle output driven toward Target.
type Metric struct {
	Name      string  `json:"name"`
	Target    float64 `json:"target"`
	Tolerance float64 `json:"tolerance"`
	Range     *Range  `json:"range,omitempty"`
	Kind      string  `json:"kind,omitempty"`
}

// Deviation returns the signed distance of value from the target.
func (m Metric) Deviation(value float64) float64 {
	return value - m.Target
}

// Satisfied reports whether value is strictly within tolerance of the target.
func (m Metric) Satisfied(value float64) bool {
	return math.Abs(value-m.Target) < m.Tolerance
}

func (m Metric) validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: metric name cannot be empty", ErrInvalidRequest)
	}
	if math.IsNaN(m.Target) || math.IsInf(m.Target, 0) {
		return fmt.Errorf("%w: metric %s target must be finite", ErrInvalidRequest, m.Name)
	}
	if !(m.Tolerance > 0) || math.IsInf(m.Tolerance, 0) {
		return fmt.Errorf("metric %s: %w: %g", m.Name, ErrInvalidTolerance, m.Tolerance)
	}
	if m.Range != nil {
		if err := m.Range.Validate(m.Name); err != nil {
			return err
		}
	}
	return nil
}

// Vector maps cell names to values.
type Vector map[string]float64

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// With returns a copy of v with name set to value.
func (v Vector) With(name string, value float64) Vector {
	out := v.Clone()
	out[name] = value
	return out
}

// Names returns the keys of v in sorted order.
func (v Vector) Names() []string {
	names := make([]string, 0, len(v))
	for k := range v {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Violation describes a value outside its safe range.
type Violation struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Bound   float64 `json:"bound"`
	Below   bool    `json:"below"`
	Message string  `json:"message"`
}

// Boundary records what a boundary fallback actually achieved.
type Boundary struct {
	Target    float64 `json:"target"`
	Achieved  float64 `json:"achieved"`
	Parameter float64 `json:"parameter"`
}

// Candidate is one proposed parameter assignment with its oracle response.
type Candidate struct {
	Label       string          `json:"label"`
	Parameters  Vector          `json:"parameters"`
	Metrics     Vector          `json:"metrics"`
	Satisfied   map[string]bool `json:"satisfied"`
	InRange     map[string]bool `json:"inRange"`
	Violations  []Violation     `json:"violations,omitempty"`
	Reason      Reason          `json:"reason,omitempty"`
	Boundary    *Boundary       `json:"boundary,omitempty"`
	Score       float64         `json:"score"`
	Iterations  int             `json:"iterations"`
	Evaluations int             `json:"evaluations"`
	Converged   bool            `json:"converged"`
}

// Stats aggregates the cost of a solve.
type Stats struct {
	Evaluations int           `json:"evaluations"`
	CacheHits   int           `json:"cacheHits"`
	Iterations  int           `json:"iterations"`
	Converged   bool          `json:"converged"`
	Duration    time.Duration `json:"duration"`
}

// Outcome is the result of a coupled solve.
type Outcome struct {
	SessionID    string      `json:"sessionId"`
	Current      Candidate   `json:"current"`
	Best         Candidate   `json:"best"`
	Alternatives []Candidate `json:"alternatives,omitempty"`
	Stats        Stats       `json:"stats"`
}

// RootRequest asks for a single parameter value hitting a single metric target.
// Fixed holds overrides kept constant during the search. Observe names extra
// cells reported alongside the metric.
type RootRequest struct {
	Parameter Parameter
	Metric    Metric
	Fixed     Vector
	Observe   []string
}

func (r RootRequest) validate() error {
	if err := r.Parameter.validate(); err != nil {
		return err
	}
	return r.Metric.validate()
}

// LinearHint declares that Metric varies near-linearly in Parameter when the
// other parameter is held fixed.
type LinearHint struct {
	Metric    string `json:"metric"`
	Parameter string `json:"parameter"`
}

// CoupledRequest asks for two parameters jointly hitting two metric targets.
// Metrics[i] is paired with Parameters[i] during local bisection.
type CoupledRequest struct {
	Parameters      [2]Parameter
	Metrics         [2]Metric
	Linear          *LinearHint
	MaxAlternatives int
	Fixed           Vector
	Observe         []string
}

func (r CoupledRequest) validate() error {
	for _, p := range r.Parameters {
		if err := p.validate(); err != nil {
			return err
		}
	}
	for _, m := range r.Metrics {
		if err := m.validate(); err != nil {
			return err
		}
	}
	if r.Parameters[0].Name == r.Parameters[1].Name {
		return fmt.Errorf("%w: parameters must be distinct", ErrInvalidRequest)
	}
	if r.Metrics[0].Name == r.Metrics[1].Name {
		return fmt.Errorf("%w: metrics must be distinct", ErrInvalidRequest)
	}
	if r.MaxAlternatives < 0 {
		return fmt.Errorf("%w: maximum alternatives must not be negative", ErrInvalidRequest)
	}
	if r.Linear != nil {
		if r.parameterIndex(r.Linear.Parameter) < 0 {
			return fmt.Errorf("%w: linear hint parameter %q is not adjusted", ErrInvalidRequest, r.Linear.Parameter)
		}
		if r.metricIndex(r.Linear.Metric) < 0 {
			return fmt.Errorf("%w: linear hint metric %q is not targeted", ErrInvalidRequest, r.Linear.Metric)
		}
	}
	return nil
}

func (r CoupledRequest) parameterIndex(name string) int {
	for i, p := range r.Parameters {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (r CoupledRequest) metricIndex(name string) int {
	for i, m := range r.Metrics {
		if m.Name == name {
			return i
		}
	}
	return -1
}
