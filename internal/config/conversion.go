package config

import (
	"fmt"

	"github.com/iwvelando/goalseek/pkg/solver"
)

// ToParameter converts the configuration into a solver parameter.
func (pc ParameterConfig) ToParameter() solver.Parameter {
	p := solver.Parameter{
		Name:      pc.Name,
		Value:     pc.Value,
		Kind:      pc.Kind,
		Precision: pc.Precision,
	}
	if pc.Min != nil {
		p.Range.Min = *pc.Min
	}
	if pc.Max != nil {
		p.Range.Max = *pc.Max
	}
	return p
}

// ToMetric converts the configuration into a solver metric.
func (mc MetricConfig) ToMetric() solver.Metric {
	m := solver.Metric{
		Name:      mc.Name,
		Target:    mc.Target,
		Tolerance: mc.Tolerance,
		Kind:      mc.Kind,
	}
	if mc.Min != nil && mc.Max != nil {
		m.Range = &solver.Range{Min: *mc.Min, Max: *mc.Max}
	}
	return m
}

// mergeOverrides folds override lists into one vector; later lists win.
func mergeOverrides(lists ...[]Override) solver.Vector {
	out := solver.Vector{}
	for _, list := range lists {
		for _, o := range list {
			out[o.Name] = o.Value
		}
	}
	return out
}

// RootRequest converts a root problem into a solver request.
func (p Problem) RootRequest() (solver.RootRequest, error) {
	if p.Kind != ProblemKindRoot || len(p.Parameters) != 1 || len(p.Metrics) != 1 {
		return solver.RootRequest{}, fmt.Errorf("problem %q is not a root problem", p.Name)
	}
	return solver.RootRequest{
		Parameter: p.Parameters[0].ToParameter(),
		Metric:    p.Metrics[0].ToMetric(),
		Fixed:     mergeOverrides(p.Fixed),
		Observe:   append([]string(nil), p.Observe...),
	}, nil
}

// CoupledRequest converts a coupled problem into a solver request.
func (p Problem) CoupledRequest() (solver.CoupledRequest, error) {
	if p.Kind != ProblemKindCoupled || len(p.Parameters) != 2 || len(p.Metrics) != 2 {
		return solver.CoupledRequest{}, fmt.Errorf("problem %q is not a coupled problem", p.Name)
	}
	req := solver.CoupledRequest{
		Parameters: [2]solver.Parameter{p.Parameters[0].ToParameter(), p.Parameters[1].ToParameter()},
		Metrics:    [2]solver.Metric{p.Metrics[0].ToMetric(), p.Metrics[1].ToMetric()},
		Fixed:      mergeOverrides(p.Fixed),
		Observe:    append([]string(nil), p.Observe...),
	}
	if p.MaxAlternatives != nil {
		req.MaxAlternatives = *p.MaxAlternatives
	}
	if p.Linear != nil {
		req.Linear = &solver.LinearHint{Metric: p.Linear.Metric, Parameter: p.Linear.Parameter}
	}
	return req, nil
}

// ChainRequests converts a chain problem into ordered root requests. Problem
// level overrides and observed cells apply to every step.
func (p Problem) ChainRequests() ([]solver.RootRequest, error) {
	if p.Kind != ProblemKindChain || len(p.Steps) == 0 {
		return nil, fmt.Errorf("problem %q is not a chain problem", p.Name)
	}
	steps := make([]solver.RootRequest, 0, len(p.Steps))
	for _, s := range p.Steps {
		observe := append(append([]string(nil), p.Observe...), s.Observe...)
		steps = append(steps, solver.RootRequest{
			Parameter: s.Parameter.ToParameter(),
			Metric:    s.Metric.ToMetric(),
			Fixed:     mergeOverrides(p.Fixed, s.Fixed),
			Observe:   observe,
		})
	}
	return steps, nil
}
