package solver

import "fmt"

// CheckRange compares value against r and returns a violation when it falls
// outside. The bool is true when the value is safe.
func CheckRange(name string, value float64, r Range) (bool, *Violation) {
	if value < r.Min {
		return false, &Violation{
			Name:    name,
			Value:   value,
			Bound:   r.Min,
			Below:   true,
			Message: fmt.Sprintf("%s (%.4f) is below the safe minimum (%g)", name, value, r.Min),
		}
	}
	if value > r.Max {
		return false, &Violation{
			Name:    name,
			Value:   value,
			Bound:   r.Max,
			Message: fmt.Sprintf("%s (%.4f) is above the safe maximum (%g)", name, value, r.Max),
		}
	}
	return true, nil
}

// Validate records, for every parameter and every metric with a safe range,
// whether the candidate's value lies in range. Violations are attached to the
// candidate as data; nothing is rejected.
func Validate(c *Candidate, params []Parameter, metrics []Metric) {
	c.InRange = make(map[string]bool, len(params)+len(metrics))
	c.Violations = nil

	for _, p := range params {
		value, ok := c.Parameters[p.Name]
		if !ok {
			continue
		}
		safe, v := CheckRange(p.Name, value, p.Range)
		c.InRange[p.Name] = safe
		if v != nil {
			c.Violations = append(c.Violations, *v)
		}
	}
	for _, m := range metrics {
		if m.Range == nil {
			continue
		}
		value, ok := c.Metrics[m.Name]
		if !ok {
			continue
		}
		safe, v := CheckRange(m.Name, value, *m.Range)
		c.InRange[m.Name] = safe
		if v != nil {
			c.Violations = append(c.Violations, *v)
		}
	}
}

// Messages returns the human-readable violation messages.
func (c Candidate) Messages() []string {
	if len(c.Violations) == 0 {
		return nil
	}
	out := make([]string, len(c.Violations))
	for i, v := range c.Violations {
		out[i] = v.Message
	}
	return out
}
