// Package optimization flattens solver candidates into per-cell summaries for
// reporting.
package optimization

import (
	"fmt"
	"sort"

	"github.com/iwvelando/goalseek/pkg/format"
	"github.com/iwvelando/goalseek/pkg/solver"
)

// Summary roles.
const (
	RoleParameter = "parameter"
	RoleMetric    = "metric"
	RoleObserved  = "observed"
)

// Summary captures one cell of a candidate next to its value before the solve.
type Summary struct {
	Problem         string   `json:"problem"`
	Candidate       string   `json:"candidate"`
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	Kind            string   `json:"kind,omitempty"`
	Original        float64  `json:"original"`
	Value           float64  `json:"value"`
	Target          *float64 `json:"target,omitempty"`
	Tolerance       float64  `json:"tolerance,omitempty"`
	Satisfied       bool     `json:"satisfied"`
	InRange         bool     `json:"inRange"`
	Converged       bool     `json:"converged"`
	Notes           []string `json:"notes,omitempty"`
	OriginalDisplay string   `json:"originalDisplay,omitempty"`
	ValueDisplay    string   `json:"valueDisplay,omitempty"`
	TargetDisplay   string   `json:"targetDisplay,omitempty"`
	ChangeDisplay   string   `json:"changeDisplay,omitempty"`
}

// Summarize lists the parameters, the targeted metrics and then the observed
// cells of c. Original values come from current; a name missing there falls
// back to the parameter's configured value, or to the candidate's own value.
func Summarize(problem string, params []solver.Parameter, metrics []solver.Metric, current solver.Vector, c solver.Candidate) []Summary {
	notes := make(map[string][]string)
	for _, v := range c.Violations {
		notes[v.Name] = append(notes[v.Name], v.Message)
	}

	out := make([]Summary, 0, len(c.Parameters)+len(c.Metrics))
	seen := make(map[string]bool)
	for _, p := range params {
		value, ok := c.Parameters[p.Name]
		if !ok {
			continue
		}
		original, ok := current[p.Name]
		if !ok {
			original = p.Value
		}
		seen[p.Name] = true
		out = append(out, Summary{
			Problem:         problem,
			Candidate:       c.Label,
			Name:            p.Name,
			Role:            RoleParameter,
			Kind:            p.Kind,
			Original:        original,
			Value:           value,
			Satisfied:       true,
			InRange:         inRange(c, p.Name),
			Converged:       c.Converged,
			Notes:           notes[p.Name],
			OriginalDisplay: format.Value(p.Kind, original),
			ValueDisplay:    format.Value(p.Kind, value),
			ChangeDisplay:   format.Change(p.Kind, original, value),
		})
	}

	for _, m := range metrics {
		value, ok := c.Metrics[m.Name]
		if !ok {
			continue
		}
		original, ok := current[m.Name]
		if !ok {
			original = value
		}
		seen[m.Name] = true
		target := m.Target
		s := Summary{
			Problem:         problem,
			Candidate:       c.Label,
			Name:            m.Name,
			Role:            RoleMetric,
			Kind:            m.Kind,
			Original:        original,
			Value:           value,
			Target:          &target,
			Tolerance:       m.Tolerance,
			Satisfied:       c.Satisfied[m.Name],
			InRange:         inRange(c, m.Name),
			Converged:       c.Converged,
			Notes:           notes[m.Name],
			OriginalDisplay: format.Value(m.Kind, original),
			ValueDisplay:    format.Value(m.Kind, value),
			TargetDisplay:   format.Value(m.Kind, target),
			ChangeDisplay:   format.Change(m.Kind, original, value),
		}
		if note := boundaryNote(c, m); note != "" {
			s.Notes = append(s.Notes, note)
		}
		out = append(out, s)
	}

	observed := make([]string, 0)
	for name := range c.Metrics {
		if !seen[name] {
			observed = append(observed, name)
		}
	}
	sort.Strings(observed)
	for _, name := range observed {
		value := c.Metrics[name]
		original, ok := current[name]
		if !ok {
			original = value
		}
		out = append(out, Summary{
			Problem:         problem,
			Candidate:       c.Label,
			Name:            name,
			Role:            RoleObserved,
			Original:        original,
			Value:           value,
			Satisfied:       true,
			InRange:         true,
			Converged:       c.Converged,
			OriginalDisplay: format.Value("", original),
			ValueDisplay:    format.Value("", value),
			ChangeDisplay:   format.Change("", original, value),
		})
	}
	return out
}

func inRange(c solver.Candidate, name string) bool {
	ok, present := c.InRange[name]
	return !present || ok
}

func boundaryNote(c solver.Candidate, m solver.Metric) string {
	if c.Boundary == nil || c.Boundary.Target != m.Target {
		return ""
	}
	switch c.Reason {
	case solver.ReasonTargetTooHigh:
		return fmt.Sprintf("target %s is above the best reachable value %s within the safe range",
			format.Value(m.Kind, m.Target), format.Value(m.Kind, c.Boundary.Achieved))
	case solver.ReasonTargetTooLow:
		return fmt.Sprintf("target %s is below the lowest reachable value %s within the safe range",
			format.Value(m.Kind, m.Target), format.Value(m.Kind, c.Boundary.Achieved))
	default:
		return ""
	}
}
