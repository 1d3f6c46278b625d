package solver

import (
	"context"
	"fmt"

	"github.com/iwvelando/goalseek/pkg/oracle"
	"go.uber.org/zap"
)

// fakeModel is a deterministic oracle over plain Go functions.
type fakeModel struct {
	defaults map[string]float64
	formulas map[string]func(Vector) float64
	nulls    map[string]bool
	failWith error
	calls    int
}

func (f *fakeModel) Evaluate(_ context.Context, overrides map[string]float64, cells []string) (map[string]*float64, error) {
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	inputs := make(Vector, len(f.defaults))
	for k, v := range f.defaults {
		inputs[k] = v
	}
	for k, v := range overrides {
		inputs[k] = v
	}
	out := make(map[string]*float64, len(cells))
	for _, cell := range cells {
		if f.nulls[cell] {
			out[cell] = nil
			continue
		}
		if fn, ok := f.formulas[cell]; ok {
			v := fn(inputs)
			out[cell] = &v
			continue
		}
		if v, ok := inputs[cell]; ok {
			out[cell] = &v
			continue
		}
		return nil, fmt.Errorf("cell %s: %w", cell, oracle.ErrUnknownCell)
	}
	return out, nil
}

func newTestSolver(o oracle.Oracle, opts ...Option) *Solver {
	s, err := NewSolver(zap.NewNop(), o, DefaultTuning(), opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// declining goes from 20 at 0.85 to -10 at 1.00.
func declining() *fakeModel {
	return &fakeModel{
		defaults: map[string]float64{"G25": 1},
		formulas: map[string]func(Vector) float64{
			"E31": func(v Vector) float64 { return 20 - 200*(v["G25"]-0.85) },
		},
	}
}

func marginParameter() Parameter {
	return Parameter{Name: "G25", Value: 1, Range: Range{Min: 0.85, Max: 1.00}, Kind: "ratio"}
}
