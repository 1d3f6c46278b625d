// Package model implements a reference evaluation oracle: a workbook of named
// cells whose formulas are CEL expressions over other cells.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/iwvelando/goalseek/pkg/oracle"
	"go.uber.org/zap"
)

// ErrNotLoaded is returned when a model is evaluated outside a Load/Unload session.
var ErrNotLoaded = errors.New("model not loaded")

// Model is a workbook oracle. It is not safe for concurrent use.
type Model struct {
	logger   *zap.Logger
	path     string
	book     Workbook
	compiled *compiled
	applied  map[string]float64
}

var (
	_ oracle.Oracle    = (*Model)(nil)
	_ oracle.Lifecycle = (*Model)(nil)
)

// Open returns a model backed by the workbook file at path. The file is read on Load.
func Open(logger *zap.Logger, path string) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{logger: logger, path: path}
}

// New returns an in-memory model. Persisting updates the in-memory workbook only.
func New(logger *zap.Logger, wb Workbook) *Model {
	m := Open(logger, "")
	m.book = wb.clone()
	return m
}

// Load reads and compiles the workbook.
func (m *Model) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.path != "" {
		wb, err := ReadFile(m.path)
		if err != nil {
			return err
		}
		m.book = wb
	} else if err := m.book.Validate(); err != nil {
		return err
	}

	cm, err := compile(m.book)
	if err != nil {
		return fmt.Errorf("failed to compile workbook: %w", err)
	}
	m.compiled = cm
	m.applied = nil

	m.logger.Info("model loaded",
		zap.String("op", "model.Load"),
		zap.String("path", m.path),
		zap.Int("cells", len(m.book.Cells)),
		zap.Int("formulas", len(cm.programs)),
	)
	return nil
}

// Apply records values to write back on Unload(true). Every name must be a cell.
func (m *Model) Apply(values map[string]float64) error {
	if m.compiled == nil {
		return ErrNotLoaded
	}
	for name := range values {
		if _, ok := m.compiled.cells[name]; !ok {
			return fmt.Errorf("cell %s: %w", name, oracle.ErrUnknownCell)
		}
	}
	if m.applied == nil {
		m.applied = make(map[string]float64, len(values))
	}
	for name, v := range values {
		m.applied[name] = v
	}
	return nil
}

// Unload ends the session. With persist set, applied values replace the
// corresponding cells and the workbook is written back to its file.
func (m *Model) Unload(persist bool) error {
	if m.compiled == nil {
		return ErrNotLoaded
	}
	defer func() {
		m.compiled = nil
		m.applied = nil
	}()
	if !persist || len(m.applied) == 0 {
		return nil
	}

	book := m.book.clone()
	for i, c := range book.Cells {
		v, ok := m.applied[c.Name]
		if !ok {
			continue
		}
		c.Value = &v
		c.Formula = ""
		book.Cells[i] = c
	}
	if m.path != "" {
		if err := book.writeFile(m.path); err != nil {
			return err
		}
	}
	m.book = book

	names := make([]string, 0, len(m.applied))
	for name := range m.applied {
		names = append(names, name)
	}
	sort.Strings(names)
	m.logger.Info("model persisted",
		zap.String("op", "model.Unload"),
		zap.String("path", m.path),
		zap.Strings("cells", names),
	)
	return nil
}

// Workbook returns a copy of the current workbook, including persisted values.
func (m *Model) Workbook() Workbook {
	return m.book.clone()
}

// Evaluate recomputes the cells needed for the request with overrides applied.
// Overrides replace a cell's value or formula for this call only.
func (m *Model) Evaluate(ctx context.Context, overrides map[string]float64, cells []string) (map[string]*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cm := m.compiled
	if cm == nil {
		return nil, ErrNotLoaded
	}
	for name := range overrides {
		if _, ok := cm.cells[name]; !ok {
			return nil, fmt.Errorf("override %s: %w", name, oracle.ErrUnknownCell)
		}
	}
	for _, name := range cells {
		if _, ok := cm.cells[name]; !ok {
			return nil, fmt.Errorf("cell %s: %w", name, oracle.ErrUnknownCell)
		}
	}

	needed := cm.closure(cells, overrides)
	values := make(map[string]*float64, len(needed))
	for _, name := range cm.order {
		if !needed[name] {
			continue
		}
		v, err := m.resolve(name, overrides, values)
		if err != nil {
			return nil, err
		}
		values[name] = v
	}

	out := make(map[string]*float64, len(cells))
	for _, name := range cells {
		out[name] = values[name]
	}
	return out, nil
}

// resolve computes one cell given its already resolved inputs. A formula with a
// null input, or a non-finite result, is null.
func (m *Model) resolve(name string, overrides map[string]float64, values map[string]*float64) (*float64, error) {
	if v, ok := overrides[name]; ok {
		return &v, nil
	}
	cm := m.compiled
	prg, ok := cm.programs[name]
	if !ok {
		if c := cm.cells[name]; c.Value != nil {
			v := *c.Value
			return &v, nil
		}
		return nil, nil
	}

	vars := make(map[string]any, len(cm.deps[name]))
	for _, dep := range cm.deps[name] {
		v := values[dep]
		if v == nil {
			return nil, nil
		}
		vars[dep] = *v
	}
	res, _, err := prg.Eval(vars)
	if err != nil {
		return nil, fmt.Errorf("cell %s: %w", name, err)
	}
	f, err := toFloat(res)
	if err != nil {
		return nil, fmt.Errorf("cell %s: %w", name, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, nil
	}
	return &f, nil
}
