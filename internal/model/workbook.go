package model

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CEL keywords and reserved words that cannot name a variable.
var reserved = map[string]bool{
	"true": true, "false": true, "null": true, "in": true, "as": true,
	"break": true, "const": true, "continue": true, "else": true, "for": true,
	"function": true, "if": true, "import": true, "let": true, "loop": true,
	"package": true, "namespace": true, "return": true, "var": true,
	"void": true, "while": true,
}

// Workbook is the on-disk form of a model: an ordered list of named cells.
type Workbook struct {
	Cells []Cell `yaml:"cells"`
}

// Cell holds either a literal value or a formula over other cells. A cell with
// neither evaluates to null.
type Cell struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Value       *float64 `yaml:"value,omitempty"`
	Formula     string   `yaml:"formula,omitempty"`
}

// Parse decodes a YAML workbook and validates its cell names.
func Parse(data []byte) (Workbook, error) {
	var wb Workbook
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&wb); err != nil {
		return Workbook{}, fmt.Errorf("failed to decode workbook: %w", err)
	}
	if err := wb.Validate(); err != nil {
		return Workbook{}, err
	}
	return wb, nil
}

// ReadFile loads and validates the workbook stored at path.
func ReadFile(path string) (Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Workbook{}, fmt.Errorf("failed to read workbook %s: %w", path, err)
	}
	wb, err := Parse(data)
	if err != nil {
		return Workbook{}, fmt.Errorf("%s: %w", path, err)
	}
	return wb, nil
}

// Validate checks that every cell has a unique identifier name and at most one
// of value and formula.
func (wb Workbook) Validate() error {
	if len(wb.Cells) == 0 {
		return fmt.Errorf("workbook defines no cells")
	}
	seen := make(map[string]bool, len(wb.Cells))
	for i, c := range wb.Cells {
		if !identPattern.MatchString(c.Name) {
			return fmt.Errorf("cell %d: name %q is not a valid identifier", i+1, c.Name)
		}
		if reserved[c.Name] {
			return fmt.Errorf("cell %d: name %q is reserved", i+1, c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("cell %q defined more than once", c.Name)
		}
		seen[c.Name] = true
		if c.Value != nil && c.Formula != "" {
			return fmt.Errorf("cell %q has both a value and a formula", c.Name)
		}
	}
	return nil
}

// clone returns a deep copy so applied values never alias the caller's cells.
func (wb Workbook) clone() Workbook {
	out := Workbook{Cells: make([]Cell, len(wb.Cells))}
	for i, c := range wb.Cells {
		if c.Value != nil {
			v := *c.Value
			c.Value = &v
		}
		out.Cells[i] = c
	}
	return out
}

// writeFile replaces path atomically with the YAML encoding of wb.
func (wb Workbook) writeFile(path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(wb); err != nil {
		return fmt.Errorf("failed to encode workbook: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode workbook: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary workbook: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace workbook %s: %w", path, err)
	}
	return nil
}
