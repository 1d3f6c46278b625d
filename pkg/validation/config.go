package validation

import "fmt"

// ConfigValidator collects the problems of a configuration for advisory checks.
// Nothing here rejects a configuration; hard errors belong to the config package.
type ConfigValidator struct {
	Problems []ProblemConfig
}

type ProblemConfig struct {
	Name       string
	Parameters []ParameterConfig
	Metrics    []MetricConfig
	Fixed      []string
}

type ParameterConfig struct {
	Name      string
	Value     float64
	Min       float64
	Max       float64
	Precision float64
}

type MetricConfig struct {
	Name      string
	Target    float64
	Tolerance float64
	Min       *float64
	Max       *float64
}

// ValidateParameterValue warns when a parameter's current value lies outside
// its safe range. A zero value means the value was not configured.
func ValidateParameterValue(name string, value, min, max float64) string {
	if value == 0 || (value >= min && value <= max) {
		return ""
	}
	return fmt.Sprintf("Parameter '%s' current value %g lies outside its safe range [%g, %g]",
		name, value, min, max)
}

// ValidateMetricTarget warns when a target can only be met outside the metric's
// own safe range.
func ValidateMetricTarget(name string, target float64, min, max *float64) string {
	if min == nil || max == nil {
		return ""
	}
	if target < *min || target > *max {
		return fmt.Sprintf("Metric '%s' target %g lies outside its safe range [%g, %g]",
			name, target, *min, *max)
	}
	return ""
}

// ValidateFixedOverrides warns about fixed overrides naming adjusted parameters,
// since the search replaces those values.
func ValidateFixedOverrides(problem string, fixed []string, adjusted []string) []string {
	var warnings []string
	isAdjusted := make(map[string]bool, len(adjusted))
	for _, name := range adjusted {
		isAdjusted[name] = true
	}
	for _, name := range fixed {
		if isAdjusted[name] {
			warnings = append(warnings, fmt.Sprintf("Problem '%s' fixes '%s', which the search also adjusts; the fixed value is ignored",
				problem, name))
		}
	}
	return warnings
}

// ValidatePrecision warns when a parameter's precision is coarser than a tenth
// of its range, which leaves the search only a handful of distinct values.
func ValidatePrecision(name string, precision, min, max float64) string {
	if precision <= 0 || max <= min {
		return ""
	}
	if precision > (max-min)/10 {
		return fmt.Sprintf("Parameter '%s' precision %g is coarse for its range [%g, %g]",
			name, precision, min, max)
	}
	return ""
}

// ValidateAll validates every problem and returns warnings
func (cv *ConfigValidator) ValidateAll() []string {
	var warnings []string

	for _, problem := range cv.Problems {
		adjusted := make([]string, 0, len(problem.Parameters))
		for _, p := range problem.Parameters {
			adjusted = append(adjusted, p.Name)
			label := fmt.Sprintf("%s/%s", problem.Name, p.Name)
			if w := ValidateParameterValue(label, p.Value, p.Min, p.Max); w != "" {
				warnings = append(warnings, w)
			}
			if w := ValidatePrecision(label, p.Precision, p.Min, p.Max); w != "" {
				warnings = append(warnings, w)
			}
		}
		for _, m := range problem.Metrics {
			if w := ValidateMetricTarget(fmt.Sprintf("%s/%s", problem.Name, m.Name), m.Target, m.Min, m.Max); w != "" {
				warnings = append(warnings, w)
			}
		}
		warnings = append(warnings, ValidateFixedOverrides(problem.Name, problem.Fixed, adjusted)...)
	}

	return warnings
}
