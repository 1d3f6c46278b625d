// Package testutil provides common utility functions for testing.
package testutil

import (
	"github.com/iwvelando/goalseek/internal/optimizer"
	"github.com/iwvelando/goalseek/pkg/optimization"
	"github.com/iwvelando/goalseek/pkg/solver"
)

// FindResult finds a result by problem name in the results slice.
// Returns a pointer to the result if found, nil otherwise.
func FindResult(results []optimizer.Result, problem string) *optimizer.Result {
	for i := range results {
		if results[i].Problem == problem {
			return &results[i]
		}
	}
	return nil
}

// FindSummary finds the summary of a cell by name.
func FindSummary(summaries []optimization.Summary, name string) *optimization.Summary {
	for i := range summaries {
		if summaries[i].Name == name {
			return &summaries[i]
		}
	}
	return nil
}

// FindCandidate finds a candidate by label.
func FindCandidate(candidates []solver.Candidate, label string) *solver.Candidate {
	for i := range candidates {
		if candidates[i].Label == label {
			return &candidates[i]
		}
	}
	return nil
}
