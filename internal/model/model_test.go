package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iwvelando/goalseek/pkg/oracle"
	"github.com/iwvelando/goalseek/pkg/solver"
	"go.uber.org/zap"
)

func loadTestModel(t *testing.T) *Model {
	t.Helper()
	m := Open(zap.NewNop(), filepath.Join("testdata", "workbook.yaml"))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("failed to load workbook: %v", err)
	}
	t.Cleanup(func() { _ = m.Unload(false) })
	return m
}

func value(t *testing.T, res map[string]*float64, name string) float64 {
	t.Helper()
	v, ok := res[name]
	if !ok {
		t.Fatalf("result missing cell %s", name)
	}
	if v == nil {
		t.Fatalf("cell %s unexpectedly null", name)
	}
	return *v
}

func TestEvaluateFormulas(t *testing.T) {
	m := loadTestModel(t)

	res, err := m.Evaluate(context.Background(), nil, []string{"cost", "profit", "tax", "margin"})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if got := value(t, res, "cost"); got != 108000 {
		t.Fatalf("cost = %v, expected 108000", got)
	}
	if got := value(t, res, "profit"); got != 142000 {
		t.Fatalf("profit = %v, expected 142000", got)
	}
	if got := value(t, res, "tax"); got != 28400 {
		t.Fatalf("tax = %v, expected 28400", got)
	}
	if got := value(t, res, "margin"); got != 0.9 {
		t.Fatalf("margin = %v, expected 0.9", got)
	}
}

func TestEvaluateOverrides(t *testing.T) {
	m := loadTestModel(t)
	ctx := context.Background()

	res, err := m.Evaluate(ctx, map[string]float64{"margin": 0.5}, []string{"profit"})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if got := value(t, res, "profit"); got != 190000 {
		t.Fatalf("profit = %v, expected 190000", got)
	}

	// Overriding a formula cell replaces the formula.
	res, err = m.Evaluate(ctx, map[string]float64{"cost": 100000}, []string{"profit"})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if got := value(t, res, "profit"); got != 150000 {
		t.Fatalf("profit = %v, expected 150000", got)
	}

	// Overrides do not leak into later calls.
	res, err = m.Evaluate(ctx, nil, []string{"profit"})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if got := value(t, res, "profit"); got != 142000 {
		t.Fatalf("profit = %v, expected 142000", got)
	}
}

func TestEvaluateNullCells(t *testing.T) {
	m := loadTestModel(t)

	res, err := m.Evaluate(context.Background(), nil, []string{"notes", "noted_profit", "per_adjustment"})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	for _, name := range []string{"notes", "noted_profit", "per_adjustment"} {
		v, ok := res[name]
		if !ok {
			t.Fatalf("result missing cell %s", name)
		}
		if v != nil {
			t.Fatalf("cell %s = %v, expected null", name, *v)
		}
	}

	res, err = m.Evaluate(context.Background(), map[string]float64{"notes": 8000, "adjustment": 2000}, []string{"noted_profit", "per_adjustment"})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if got := value(t, res, "noted_profit"); got != 148000 {
		t.Fatalf("noted_profit = %v, expected 148000", got)
	}
	if got := value(t, res, "per_adjustment"); got != 70 {
		t.Fatalf("per_adjustment = %v, expected 70", got)
	}
}

func TestEvaluateUnknownCells(t *testing.T) {
	m := loadTestModel(t)
	ctx := context.Background()

	if _, err := m.Evaluate(ctx, nil, []string{"missing"}); !errors.Is(err, oracle.ErrUnknownCell) {
		t.Fatalf("expected ErrUnknownCell for requested cell, got %v", err)
	}
	if _, err := m.Evaluate(ctx, map[string]float64{"missing": 1}, []string{"profit"}); !errors.Is(err, oracle.ErrUnknownCell) {
		t.Fatalf("expected ErrUnknownCell for override, got %v", err)
	}
}

func TestEvaluateRequiresLoad(t *testing.T) {
	m := Open(zap.NewNop(), filepath.Join("testdata", "workbook.yaml"))
	if _, err := m.Evaluate(context.Background(), nil, []string{"profit"}); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
	if err := m.Unload(false); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded from Unload, got %v", err)
	}

	m = loadTestModel(t)
	if err := m.Unload(false); err != nil {
		t.Fatalf("Unload returned error: %v", err)
	}
	if _, err := m.Evaluate(context.Background(), nil, []string{"profit"}); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded after Unload, got %v", err)
	}
}

func TestLoadRejectsBadWorkbooks(t *testing.T) {
	num := func(v float64) *float64 { return &v }
	tests := []struct {
		name    string
		book    Workbook
		wantErr string
	}{
		{
			name:    "empty",
			book:    Workbook{},
			wantErr: "no cells",
		},
		{
			name:    "invalid name",
			book:    Workbook{Cells: []Cell{{Name: "gross-margin", Value: num(1)}}},
			wantErr: "not a valid identifier",
		},
		{
			name:    "reserved name",
			book:    Workbook{Cells: []Cell{{Name: "in", Value: num(1)}}},
			wantErr: "reserved",
		},
		{
			name:    "duplicate name",
			book:    Workbook{Cells: []Cell{{Name: "a", Value: num(1)}, {Name: "a", Value: num(2)}}},
			wantErr: "more than once",
		},
		{
			name:    "value and formula",
			book:    Workbook{Cells: []Cell{{Name: "a", Value: num(1), Formula: "2.0"}}},
			wantErr: "both a value and a formula",
		},
		{
			name: "circular reference",
			book: Workbook{Cells: []Cell{
				{Name: "a", Formula: "b + 1.0"},
				{Name: "b", Formula: "a * 2.0"},
			}},
			wantErr: "circular reference",
		},
		{
			name:    "self reference",
			book:    Workbook{Cells: []Cell{{Name: "a", Formula: "a + 1.0"}}},
			wantErr: "circular reference",
		},
		{
			name:    "undeclared reference",
			book:    Workbook{Cells: []Cell{{Name: "a", Formula: "b + 1.0"}}},
			wantErr: "cell a",
		},
		{
			name:    "mixed int and double",
			book:    Workbook{Cells: []Cell{{Name: "a", Value: num(1)}, {Name: "b", Formula: "a - 1"}}},
			wantErr: "cell b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(zap.NewNop(), tt.book).Load(context.Background())
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("cells:\n  - name: a\n    valu: 3\n"))
	if err == nil {
		t.Fatalf("expected error for misspelled field")
	}
}

func TestUnloadPersistsAppliedValues(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("testdata", "workbook.yaml"))
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "workbook.yaml")
	if err := os.WriteFile(path, src, 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	m := Open(zap.NewNop(), path)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := m.Apply(map[string]float64{"margin": 0.85, "cost": 99000}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if err := m.Apply(map[string]float64{"missing": 1}); !errors.Is(err, oracle.ErrUnknownCell) {
		t.Fatalf("expected ErrUnknownCell, got %v", err)
	}
	if err := m.Unload(true); err != nil {
		t.Fatalf("Unload returned error: %v", err)
	}

	wb, err := ReadFile(path)
	if err != nil {
		t.Fatalf("failed to re-read workbook: %v", err)
	}
	cells := make(map[string]Cell, len(wb.Cells))
	for _, c := range wb.Cells {
		cells[c.Name] = c
	}
	if c := cells["margin"]; c.Value == nil || *c.Value != 0.85 {
		t.Fatalf("margin not persisted: %+v", c)
	}
	if c := cells["cost"]; c.Formula != "" || c.Value == nil || *c.Value != 99000 {
		t.Fatalf("cost formula not replaced by value: %+v", c)
	}
	if c := cells["profit"]; c.Formula != "revenue - cost - adjustment" {
		t.Fatalf("untouched formula changed: %+v", c)
	}
	if cells["revenue"].Description != "Gross revenue for the period" {
		t.Fatalf("description lost: %+v", cells["revenue"])
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("failed to list directory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the workbook to remain, found %d entries", len(entries))
	}
}

func TestUnloadWithoutPersistLeavesFile(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("testdata", "workbook.yaml"))
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "workbook.yaml")
	if err := os.WriteFile(path, src, 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	m := Open(zap.NewNop(), path)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := m.Apply(map[string]float64{"margin": 0.5}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if err := m.Unload(false); err != nil {
		t.Fatalf("Unload returned error: %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to re-read workbook: %v", err)
	}
	if string(after) != string(src) {
		t.Fatalf("workbook modified without persist")
	}
}

func TestInMemoryModelPersistsToWorkbook(t *testing.T) {
	wb, err := ReadFile(filepath.Join("testdata", "workbook.yaml"))
	if err != nil {
		t.Fatalf("ReadFile returned error: %v", err)
	}
	m := New(zap.NewNop(), wb)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := m.Apply(map[string]float64{"adjustment": 1200}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if err := m.Unload(true); err != nil {
		t.Fatalf("Unload returned error: %v", err)
	}
	for _, c := range m.Workbook().Cells {
		if c.Name == "adjustment" && (c.Value == nil || *c.Value != 1200) {
			t.Fatalf("adjustment not persisted in memory: %+v", c)
		}
	}
	for _, c := range wb.Cells {
		if c.Name == "adjustment" && *c.Value != 0 {
			t.Fatalf("caller's workbook was modified")
		}
	}
}

func TestModelDrivesSolver(t *testing.T) {
	m := loadTestModel(t)
	s, err := solver.NewSolver(zap.NewNop(), m, solver.DefaultTuning())
	if err != nil {
		t.Fatalf("NewSolver returned error: %v", err)
	}

	c, err := s.FindRoot(context.Background(), solver.RootRequest{
		Parameter: solver.Parameter{Name: "adjustment", Range: solver.Range{Min: 0, Max: 100000}, Kind: "amount"},
		Metric:    solver.Metric{Name: "profit", Target: 100000, Tolerance: 0.009},
		Observe:   []string{"tax"},
	})
	if err != nil {
		t.Fatalf("FindRoot returned error: %v", err)
	}
	if !c.Converged {
		t.Fatalf("expected convergence, got %+v", c)
	}
	if c.Parameters["adjustment"] != 42000 {
		t.Fatalf("adjustment = %v, expected 42000", c.Parameters["adjustment"])
	}
	if c.Metrics["tax"] != 20000 {
		t.Fatalf("tax = %v, expected 20000", c.Metrics["tax"])
	}
}

func TestStringLiteralsAreNotDependencies(t *testing.T) {
	wb := Workbook{Cells: []Cell{
		{Name: "notes"},
		{Name: "profit", Value: floatPtr(100)},
		{Name: "labelled", Formula: `"notes" != "" ? profit : 0.0`},
		{Name: "self_named", Formula: `size("self_named") > 0 ? 1.0 : 0.0`},
		{Name: "absolute", Formula: `math.abs(profit - 150.0)`},
	}}
	m := New(zap.NewNop(), wb)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	res, err := m.Evaluate(context.Background(), nil, []string{"labelled", "self_named", "absolute"})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if got := value(t, res, "labelled"); got != 100 {
		t.Fatalf("labelled = %v, expected 100", got)
	}
	if got := value(t, res, "self_named"); got != 1 {
		t.Fatalf("self_named = %v, expected 1", got)
	}
	if got := value(t, res, "absolute"); got != 50 {
		t.Fatalf("absolute = %v, expected 50", got)
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
