package solver

import (
	"fmt"
	"math"

	"github.com/iwvelando/goalseek/pkg/constants"
)

// Tuning holds the search constants. The defaults were tuned against one model's
// sensitivities; other models may need different values.
type Tuning struct {
	MaxIterations        int     `json:"maxIterations" yaml:"maxIterations,omitempty" mapstructure:"maxIterations"`
	CoarseSamples        int     `json:"coarseSamples" yaml:"coarseSamples,omitempty" mapstructure:"coarseSamples"`
	RefineSamples        int     `json:"refineSamples" yaml:"refineSamples,omitempty" mapstructure:"refineSamples"`
	RefineSpan           float64 `json:"refineSpan" yaml:"refineSpan,omitempty" mapstructure:"refineSpan"`
	PolishRounds         int     `json:"polishRounds" yaml:"polishRounds,omitempty" mapstructure:"polishRounds"`
	GradientIterations   int     `json:"gradientIterations" yaml:"gradientIterations,omitempty" mapstructure:"gradientIterations"`
	GradientStepFraction float64 `json:"gradientStepFraction" yaml:"gradientStepFraction,omitempty" mapstructure:"gradientStepFraction"`
	DifferenceFraction   float64 `json:"differenceFraction" yaml:"differenceFraction,omitempty" mapstructure:"differenceFraction"`
	NullValue            float64 `json:"nullValue" yaml:"nullValue,omitempty" mapstructure:"nullValue"`
}

// DefaultTuning returns the stock search constants.
func DefaultTuning() Tuning {
	return Tuning{
		MaxIterations:        constants.DefaultMaxIterations,
		CoarseSamples:        constants.DefaultCoarseSamples,
		RefineSamples:        constants.DefaultRefineSamples,
		RefineSpan:           constants.DefaultRefineSpan,
		PolishRounds:         constants.DefaultPolishRounds,
		GradientIterations:   constants.DefaultGradientIterations,
		GradientStepFraction: constants.DefaultGradientStepFraction,
		DifferenceFraction:   constants.DefaultDifferenceFraction,
	}
}

// Normalize fills zero fields with defaults.
func (t *Tuning) Normalize() {
	def := DefaultTuning()
	if t.MaxIterations <= 0 {
		t.MaxIterations = def.MaxIterations
	}
	if t.CoarseSamples <= 0 {
		t.CoarseSamples = def.CoarseSamples
	}
	if t.RefineSamples <= 0 {
		t.RefineSamples = def.RefineSamples
	}
	if t.RefineSpan <= 0 {
		t.RefineSpan = def.RefineSpan
	}
	if t.PolishRounds <= 0 {
		t.PolishRounds = def.PolishRounds
	}
	if t.GradientIterations <= 0 {
		t.GradientIterations = def.GradientIterations
	}
	if t.GradientStepFraction <= 0 {
		t.GradientStepFraction = def.GradientStepFraction
	}
	if t.DifferenceFraction <= 0 {
		t.DifferenceFraction = def.DifferenceFraction
	}
}

// Validate rejects tunings the solver cannot run with.
func (t Tuning) Validate() error {
	if t.CoarseSamples < constants.MinCoarseSamples || t.CoarseSamples > constants.MaxCoarseSamples {
		return fmt.Errorf("coarse samples %d must be between %d and %d",
			t.CoarseSamples, constants.MinCoarseSamples, constants.MaxCoarseSamples)
	}
	if t.RefineSamples < 2 {
		return fmt.Errorf("refine samples %d must be at least 2", t.RefineSamples)
	}
	if t.GradientStepFraction >= 1 {
		return fmt.Errorf("gradient step fraction %g must be below 1", t.GradientStepFraction)
	}
	if t.DifferenceFraction >= 1 {
		return fmt.Errorf("difference fraction %g must be below 1", t.DifferenceFraction)
	}
	if math.IsNaN(t.NullValue) || math.IsInf(t.NullValue, 0) {
		return fmt.Errorf("null value %g must be finite", t.NullValue)
	}
	return nil
}
