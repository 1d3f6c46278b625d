package solver

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/iwvelando/goalseek/pkg/mathutil"
	"github.com/iwvelando/goalseek/pkg/oracle"
	"go.uber.org/zap"
)

// Sample is one memoized oracle evaluation.
type Sample struct {
	Parameters Vector
	Metrics    Vector
}

// Cache memoizes oracle evaluations for one solve. Parameters are rounded to
// their precision and then clamped to their safe range before lookup, and those
// values are what the oracle receives, so a hit always returns exactly what a
// fresh call would.
type Cache struct {
	oracle    oracle.Oracle
	steps     map[string]float64
	ranges    map[string]Range
	cells     []string
	fixed     Vector
	nullValue float64
	observer  Observer
	logger    *zap.Logger

	entries     map[string]int
	samples     []Sample
	evaluations int
	hits        int
}

// NewCache builds a session cache requesting cells from o. Fixed overrides are
// sent with every evaluation.
func NewCache(o oracle.Oracle, params []Parameter, cells []string, fixed Vector, nullValue float64) *Cache {
	steps := make(map[string]float64, len(params))
	ranges := make(map[string]Range, len(params))
	for _, p := range params {
		steps[p.Name] = p.Step()
		ranges[p.Name] = p.Range
	}
	if fixed == nil {
		fixed = Vector{}
	}
	return &Cache{
		oracle:    o,
		steps:     steps,
		ranges:    ranges,
		cells:     append([]string(nil), cells...),
		fixed:     fixed.Clone(),
		nullValue: nullValue,
		observer:  nopObserver{},
		logger:    zap.NewNop(),
		entries:   make(map[string]int),
	}
}

func (s *Solver) newCache(params []Parameter, cells []string, fixed Vector) *Cache {
	c := NewCache(s.oracle, params, cells, fixed, s.tuning.NullValue)
	c.observer = s.observer
	c.logger = s.logger
	return c
}

// Round snaps each known parameter in params to its precision. A bound that is
// not a multiple of the precision stays reachable: values rounded past it are
// clamped to the bound itself.
func (c *Cache) Round(params Vector) Vector {
	out := make(Vector, len(params))
	for name, value := range params {
		if step, ok := c.steps[name]; ok {
			value = c.ranges[name].Clamp(mathutil.RoundTo(value, step))
		}
		out[name] = value
	}
	return out
}

func (c *Cache) key(overrides Vector) string {
	var b strings.Builder
	for i, name := range overrides.Names() {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(name)
		b.WriteByte('=')
		value := overrides[name]
		// off-grid values (clamped bounds, fixed cells) are keyed exactly
		if n, ok := mathutil.Steps(value, c.steps[name]); ok && mathutil.RoundTo(value, c.steps[name]) == value {
			b.WriteString(strconv.FormatInt(n, 10))
		} else {
			b.WriteString(strconv.FormatFloat(value, 'g', -1, 64))
		}
	}
	return b.String()
}

// Evaluate returns the metrics for params, calling the oracle only on a miss.
func (c *Cache) Evaluate(ctx context.Context, params Vector) (Vector, error) {
	rounded := c.Round(params)
	overrides := c.fixed.Clone()
	for name, value := range rounded {
		overrides[name] = value
	}

	key := c.key(overrides)
	if idx, ok := c.entries[key]; ok {
		c.hits++
		c.observer.ObserveLookup(true)
		return c.samples[idx].Metrics.Clone(), nil
	}
	c.observer.ObserveLookup(false)

	result, err := c.oracle.Evaluate(ctx, overrides, c.cells)
	c.evaluations++
	if err != nil {
		return nil, fmt.Errorf("oracle evaluation failed: %w", err)
	}

	metrics := make(Vector, len(c.cells))
	for _, cell := range c.cells {
		value, ok := result[cell]
		if !ok {
			return nil, fmt.Errorf("oracle did not return cell %s: %w", cell, oracle.ErrUnknownCell)
		}
		if value == nil {
			metrics[cell] = c.nullValue
			continue
		}
		if math.IsNaN(*value) || math.IsInf(*value, 0) {
			c.logger.Warn("oracle returned a non-finite value; using the null value",
				zap.String("op", "solver.cache"),
				zap.String("cell", cell),
				zap.Float64("value", *value),
			)
			metrics[cell] = c.nullValue
			continue
		}
		metrics[cell] = *value
	}

	c.entries[key] = len(c.samples)
	c.samples = append(c.samples, Sample{Parameters: rounded, Metrics: metrics})

	c.logger.Debug("oracle evaluated",
		zap.String("op", "solver.cache"),
		zap.Any("overrides", overrides),
		zap.Int("evaluations", c.evaluations),
	)
	return metrics.Clone(), nil
}

// Evaluations returns the number of oracle calls made.
func (c *Cache) Evaluations() int {
	return c.evaluations
}

// Hits returns the number of lookups answered from the cache.
func (c *Cache) Hits() int {
	return c.hits
}

// Len returns the number of distinct evaluated points.
func (c *Cache) Len() int {
	return len(c.samples)
}

// Samples returns every evaluated point in evaluation order.
func (c *Cache) Samples() []Sample {
	out := make([]Sample, len(c.samples))
	for i, s := range c.samples {
		out[i] = Sample{Parameters: s.Parameters.Clone(), Metrics: s.Metrics.Clone()}
	}
	return out
}
