package solver

import "math"

// problem is the set of parameters and metrics a search is judged against.
type problem struct {
	params  []Parameter
	metrics []Metric
	observe []string
}

func (p problem) cells() []string {
	names := make([]string, 0, len(p.metrics)+len(p.observe))
	seen := make(map[string]bool)
	for _, m := range p.metrics {
		names = append(names, m.Name)
		seen[m.Name] = true
	}
	for _, name := range p.observe {
		if !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	return names
}

// score is the weighted scalar error: each deviation is divided by its
// tolerance so the tighter metric dominates.
func (p problem) score(metrics Vector) float64 {
	total := 0.0
	for _, m := range p.metrics {
		total += math.Abs(m.Deviation(metrics[m.Name])) / m.Tolerance
	}
	return total
}

func (p problem) satisfied(metrics Vector) bool {
	for _, m := range p.metrics {
		if !m.Satisfied(metrics[m.Name]) {
			return false
		}
	}
	return true
}

func (p problem) candidate(label string, params, metrics Vector) Candidate {
	c := Candidate{
		Label:      label,
		Parameters: params.Clone(),
		Metrics:    metrics.Clone(),
		Satisfied:  make(map[string]bool, len(p.metrics)),
		Score:      p.score(metrics),
	}
	converged := true
	for _, m := range p.metrics {
		ok := m.Satisfied(metrics[m.Name])
		c.Satisfied[m.Name] = ok
		converged = converged && ok
	}
	c.Converged = converged
	Validate(&c, p.params, p.metrics)
	return c
}

// point is an evaluated location during the coupled search.
type point struct {
	params  Vector
	metrics Vector
	score   float64
}

// better orders points by score. An unevaluated point loses to anything, and a
// NaN score ranks as infinitely bad.
func (p point) better(o point) bool {
	if p.params == nil {
		return false
	}
	if o.params == nil {
		return true
	}
	return rank(p.score) < rank(o.score)
}

func rank(score float64) float64 {
	if math.IsNaN(score) {
		return math.Inf(1)
	}
	return score
}
