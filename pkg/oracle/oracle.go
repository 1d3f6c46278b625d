// Package oracle defines the contract between the solver and the external
// evaluation oracle that recomputes a dependency graph of named cells.
package oracle

import (
	"context"
	"errors"
)

// ErrUnknownCell is returned by an Oracle asked for a cell it cannot resolve.
var ErrUnknownCell = errors.New("unknown cell")

// Oracle maps parameter overrides to metric values.
//
// Evaluate must be deterministic for fixed overrides and fixed background state.
// Overrides are partial: cells not listed keep their model values. The result
// holds one entry per requested cell; a nil pointer marks a cell that exists but
// has no value.
type Oracle interface {
	Evaluate(ctx context.Context, overrides map[string]float64, cells []string) (map[string]*float64, error)
}

// Lifecycle brackets a solve session. Callers invoke Load before the first
// evaluation and Unload after the last; the solver never calls either.
type Lifecycle interface {
	Load(ctx context.Context) error
	Unload(persist bool) error
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, overrides map[string]float64, cells []string) (map[string]*float64, error)

// Evaluate calls f.
func (f Func) Evaluate(ctx context.Context, overrides map[string]float64, cells []string) (map[string]*float64, error) {
	return f(ctx, overrides, cells)
}
