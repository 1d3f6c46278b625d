package journal

import (
	"encoding/json"
	"fmt"

	"github.com/iwvelando/goalseek/pkg/solver"
)

// FromCandidate builds an entry for a single root find.
func FromCandidate(problem, sessionID string, c solver.Candidate) (Entry, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return Entry{}, fmt.Errorf("encode candidate: %w", err)
	}
	return Entry{
		SessionID:   sessionID,
		Problem:     problem,
		Kind:        "root",
		Label:       c.Label,
		Converged:   c.Converged,
		Evaluations: c.Evaluations,
		Iterations:  c.Iterations,
		Parameters:  c.Parameters,
		Metrics:     c.Metrics,
		Outcome:     raw,
	}, nil
}

// FromOutcome builds an entry for a coupled solve, keyed on its best candidate.
func FromOutcome(problem string, out solver.Outcome) (Entry, error) {
	raw, err := json.Marshal(out)
	if err != nil {
		return Entry{}, fmt.Errorf("encode outcome: %w", err)
	}
	return Entry{
		SessionID:   out.SessionID,
		Problem:     problem,
		Kind:        "coupled",
		Label:       out.Best.Label,
		Converged:   out.Stats.Converged,
		Evaluations: out.Stats.Evaluations,
		Iterations:  out.Stats.Iterations,
		Duration:    out.Stats.Duration,
		Parameters:  out.Best.Parameters,
		Metrics:     out.Best.Metrics,
		Outcome:     raw,
	}, nil
}

// FromChain builds an entry for a chained solve, keyed on its verification.
func FromChain(problem string, out solver.ChainOutcome) (Entry, error) {
	raw, err := json.Marshal(out)
	if err != nil {
		return Entry{}, fmt.Errorf("encode chain outcome: %w", err)
	}
	return Entry{
		SessionID:   out.SessionID,
		Problem:     problem,
		Kind:        "chain",
		Label:       out.Verification.Label,
		Converged:   out.Stats.Converged,
		Evaluations: out.Stats.Evaluations,
		Iterations:  out.Stats.Iterations,
		Duration:    out.Stats.Duration,
		Parameters:  out.Verification.Parameters,
		Metrics:     out.Verification.Metrics,
		Outcome:     raw,
	}, nil
}
