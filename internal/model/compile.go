package model

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

// compiled is a workbook with its formulas checked and ordered.
type compiled struct {
	cells    map[string]Cell
	deps     map[string][]string
	programs map[string]cel.Program
	order    []string
}

func compile(wb Workbook) (*compiled, error) {
	opts := make([]cel.EnvOption, 0, len(wb.Cells)+1)
	for _, c := range wb.Cells {
		opts = append(opts, cel.Variable(c.Name, cel.DoubleType))
	}
	opts = append(opts, ext.Math())
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build formula environment: %w", err)
	}

	cm := &compiled{
		cells:    make(map[string]Cell, len(wb.Cells)),
		deps:     make(map[string][]string),
		programs: make(map[string]cel.Program),
	}
	for _, c := range wb.Cells {
		cm.cells[c.Name] = c
	}
	for _, c := range wb.Cells {
		if c.Formula == "" {
			continue
		}
		ast, iss := env.Compile(c.Formula)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("cell %s: %w", c.Name, iss.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("cell %s: %w", c.Name, err)
		}
		cm.programs[c.Name] = prg
		cm.deps[c.Name] = references(ast, cm.cells)
	}

	order, err := topoSort(wb, cm.deps)
	if err != nil {
		return nil, err
	}
	cm.order = order
	return cm, nil
}

// references lists the cells a checked formula reads, in source order. Only
// resolved identifiers count, so string literals and function names such as
// math.abs never become dependencies.
func references(ast *cel.Ast, cells map[string]Cell) []string {
	refs := ast.NativeRep().ReferenceMap()
	ids := make([]int64, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []string
	seen := make(map[string]bool)
	for _, id := range ids {
		name := refs[id].Name
		if _, ok := cells[name]; ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// topoSort orders cells so every formula follows its inputs, preserving
// declaration order where dependencies allow.
func topoSort(wb Workbook, deps map[string][]string) ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(wb.Cells))
	order := make([]string, 0, len(wb.Cells))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("circular reference: %s -> %s", strings.Join(path, " -> "), name)
		}
		state[name] = visiting
		for _, dep := range deps[name] {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, c := range wb.Cells {
		if err := visit(c.Name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// closure returns every cell needed to answer cells. Overridden cells are
// leaves: their formulas are not consulted.
func (cm *compiled) closure(cells []string, overrides map[string]float64) map[string]bool {
	needed := make(map[string]bool)
	stack := append([]string(nil), cells...)
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if needed[name] {
			continue
		}
		needed[name] = true
		if _, ok := overrides[name]; ok {
			continue
		}
		stack = append(stack, cm.deps[name]...)
	}
	return needed
}

func toFloat(v ref.Val) (float64, error) {
	switch n := v.Value().(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return math.NaN(), fmt.Errorf("formula produced %s, expected a number", v.Type().TypeName())
	}
}
