// Package output renders solve results for the command line.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iwvelando/goalseek/internal/optimizer"
	"github.com/iwvelando/goalseek/pkg/constants"
	"github.com/iwvelando/goalseek/pkg/format"
	"github.com/iwvelando/goalseek/pkg/optimization"
	"github.com/iwvelando/goalseek/pkg/solver"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Write renders results in the named format.
func Write(w io.Writer, outputFormat string, results []optimizer.Result) error {
	switch outputFormat {
	case constants.OutputFormatPretty:
		PrettyFormat(w, results)
		return nil
	case constants.OutputFormatCSV:
		return CsvFormat(w, results)
	case constants.OutputFormatJSON:
		return JSONFormat(w, results)
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}
}

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(w io.Writer, results []optimizer.Result) {
	p := message.NewPrinter(language.English)
	for i, result := range results {
		_, _ = fmt.Fprintf(w, "--- Results for problem %s (%s) ---\n", result.Problem, result.Kind)
		_, _ = fmt.Fprintf(w, "Name | Role | Current | Recommended | Target | Status | Notes\n")
		_, _ = fmt.Fprintf(w, "____ | ____ | _______ | ___________ | ______ | ______ | _____\n")
		for _, s := range result.Summaries {
			_, _ = fmt.Fprintf(w, "%s | %s | %s | %s | %s | %s | %s\n",
				s.Name, s.Role, s.OriginalDisplay, s.ValueDisplay, targetText(s), status(s), strings.Join(s.Notes, ","))
		}

		best := result.Best()
		stats := result.Stats()
		verdict := "did not converge"
		if best.Converged {
			verdict = "converged"
		}
		_, _ = p.Fprintf(w, "Outcome: %s, %s after %d iterations and %d evaluations", best.Label, verdict, stats.Iterations, stats.Evaluations)
		if stats.CacheHits > 0 {
			_, _ = p.Fprintf(w, " (%d cache hits)", stats.CacheHits)
		}
		_, _ = fmt.Fprintln(w)

		if steps := result.Steps(); len(steps) > 0 {
			_, _ = fmt.Fprintf(w, "Steps:\n")
			for n, c := range steps {
				_, _ = fmt.Fprintf(w, "  %d. %s | %s | %s\n", n+1, c.Label, vectorText(c.Parameters), vectorText(c.Metrics))
			}
		}
		if alts := result.Alternatives(); len(alts) > 0 {
			_, _ = fmt.Fprintf(w, "Alternatives:\n")
			for _, c := range alts {
				_, _ = p.Fprintf(w, "  %s | %s | %s | score %.4f\n", c.Label, vectorText(c.Parameters), vectorText(c.Metrics), c.Score)
			}
		}
		if i < len(results)-1 {
			_, _ = fmt.Fprintln(w)
		}
	}
}

// CsvFormat outputs one row per summarized cell in comma-separated value format.
func CsvFormat(w io.Writer, results []optimizer.Result) error {
	cw := csv.NewWriter(w)
	header := []string{"problem", "kind", "candidate", "name", "role", "current", "recommended",
		"target", "tolerance", "satisfied", "in range", "converged", "notes"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, result := range results {
		for _, s := range result.Summaries {
			target, tolerance := "", ""
			if s.Target != nil {
				target = number(*s.Target)
				tolerance = number(s.Tolerance)
			}
			row := []string{
				s.Problem, result.Kind, s.Candidate, s.Name, s.Role,
				number(s.Original), number(s.Value), target, tolerance,
				strconv.FormatBool(s.Satisfied), strconv.FormatBool(s.InRange), strconv.FormatBool(s.Converged),
				strings.Join(s.Notes, ","),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// JSONFormat outputs the full results as indented JSON.
func JSONFormat(w io.Writer, results []optimizer.Result) error {
	if results == nil {
		results = []optimizer.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func targetText(s optimization.Summary) string {
	if s.Target == nil {
		return ""
	}
	return s.TargetDisplay + " ± " + number(s.Tolerance)
}

func status(s optimization.Summary) string {
	var parts []string
	switch s.Role {
	case optimization.RoleMetric:
		if s.Satisfied {
			parts = append(parts, "satisfied")
		} else {
			parts = append(parts, "missed")
		}
	case optimization.RoleObserved:
		return ""
	}
	if s.InRange {
		parts = append(parts, "in range")
	} else {
		parts = append(parts, "out of range")
	}
	return strings.Join(parts, ", ")
}

func vectorText(v solver.Vector) string {
	names := v.Names()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+format.Number(v[name]))
	}
	return strings.Join(parts, ", ")
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
