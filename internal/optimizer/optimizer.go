// Package optimizer runs configured goal-seek problems against a solver and
// collects their outcomes for reporting and journaling.
package optimizer

import (
	"context"
	"fmt"

	"github.com/iwvelando/goalseek/internal/config"
	"github.com/iwvelando/goalseek/internal/journal"
	"github.com/iwvelando/goalseek/pkg/optimization"
	"github.com/iwvelando/goalseek/pkg/solver"
	"go.uber.org/zap"
)

// Recorder persists a finished solve and returns its identifier.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) (int64, error)
}

// Runner executes problems one after another on a single solver session.
type Runner struct {
	logger   *zap.Logger
	solver   *solver.Solver
	recorder Recorder
}

// Option customises a Runner.
type Option func(*Runner)

// WithRecorder journals every finished solve.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// Result is the outcome of one problem. Exactly one of Root, Coupled and Chain
// is set, matching Kind.
type Result struct {
	Problem   string                 `json:"problem"`
	Kind      string                 `json:"kind"`
	SessionID string                 `json:"sessionId"`
	Current   solver.Candidate       `json:"current"`
	Root      *solver.Candidate      `json:"root,omitempty"`
	Coupled   *solver.Outcome        `json:"coupled,omitempty"`
	Chain     *solver.ChainOutcome   `json:"chain,omitempty"`
	Summaries []optimization.Summary `json:"summaries"`
	JournalID int64                  `json:"journalId,omitempty"`
}

// Best returns the candidate the problem recommends.
func (r Result) Best() solver.Candidate {
	switch {
	case r.Root != nil:
		return *r.Root
	case r.Coupled != nil:
		return r.Coupled.Best
	case r.Chain != nil:
		return r.Chain.Verification
	default:
		return solver.Candidate{}
	}
}

// Alternatives returns the trade-off candidates of a coupled solve.
func (r Result) Alternatives() []solver.Candidate {
	if r.Coupled == nil {
		return nil
	}
	return r.Coupled.Alternatives
}

// Steps returns the per-step candidates of a chained solve.
func (r Result) Steps() []solver.Candidate {
	if r.Chain == nil {
		return nil
	}
	return r.Chain.Steps
}

// Stats returns the cost of the solve.
func (r Result) Stats() solver.Stats {
	switch {
	case r.Root != nil:
		return solver.Stats{
			Evaluations: r.Root.Evaluations,
			Iterations:  r.Root.Iterations,
			Converged:   r.Root.Converged,
		}
	case r.Coupled != nil:
		return r.Coupled.Stats
	case r.Chain != nil:
		return r.Chain.Stats
	default:
		return solver.Stats{}
	}
}

// Converged reports whether every targeted metric was met.
func (r Result) Converged() bool {
	return r.Best().Converged
}

// Recommended collects the parameters of every converged result. Later
// results win when two problems adjust the same cell.
func Recommended(results []Result) map[string]float64 {
	values := make(map[string]float64)
	for _, res := range results {
		if !res.Converged() {
			continue
		}
		for name, v := range res.Best().Parameters {
			values[name] = v
		}
	}
	return values
}

// NewRunner constructs a Runner over the provided solver.
func NewRunner(logger *zap.Logger, s *solver.Solver, opts ...Option) (*Runner, error) {
	if s == nil {
		return nil, fmt.Errorf("solver cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{logger: logger, solver: s}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run solves each problem in order and stops at the first failure.
func (r *Runner) Run(ctx context.Context, problems []config.Problem) ([]Result, error) {
	results := make([]Result, 0, len(problems))
	for _, p := range problems {
		res, err := r.RunProblem(ctx, p)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// RunProblem validates and solves a single problem.
func (r *Runner) RunProblem(ctx context.Context, p config.Problem) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, fmt.Errorf("problem %s: %w", p.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var (
		res Result
		err error
	)
	switch p.Kind {
	case config.ProblemKindRoot:
		res, err = r.runRoot(ctx, p)
	case config.ProblemKindCoupled:
		res, err = r.runCoupled(ctx, p)
	case config.ProblemKindChain:
		res, err = r.runChain(ctx, p)
	default:
		err = fmt.Errorf("kind %q is not supported", p.Kind)
	}
	if err != nil {
		return Result{}, fmt.Errorf("problem %s: %w", p.Name, err)
	}
	res.Problem = p.Name
	res.Kind = p.Kind
	res.SessionID = r.solver.SessionID()

	r.record(ctx, &res)

	best := res.Best()
	stats := res.Stats()
	r.logger.Info("problem solved",
		zap.String("op", "optimizer.RunProblem"),
		zap.String("problem", p.Name),
		zap.String("kind", p.Kind),
		zap.String("label", best.Label),
		zap.Any("parameters", best.Parameters),
		zap.Int("evaluations", stats.Evaluations),
		zap.Bool("converged", best.Converged),
	)
	return res, nil
}

func (r *Runner) runRoot(ctx context.Context, p config.Problem) (Result, error) {
	req, err := p.RootRequest()
	if err != nil {
		return Result{}, err
	}
	params := []solver.Parameter{req.Parameter}
	metrics := []solver.Metric{req.Metric}
	current, err := r.solver.Current(ctx, params, metrics, req.Fixed, req.Observe)
	if err != nil {
		return Result{}, err
	}
	c, err := r.solver.FindRoot(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Current:   current,
		Root:      &c,
		Summaries: optimization.Summarize(p.Name, params, metrics, merged(current), c),
	}, nil
}

func (r *Runner) runCoupled(ctx context.Context, p config.Problem) (Result, error) {
	req, err := p.CoupledRequest()
	if err != nil {
		return Result{}, err
	}
	out, err := r.solver.SolveCoupled(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Current:   out.Current,
		Coupled:   &out,
		Summaries: optimization.Summarize(p.Name, req.Parameters[:], req.Metrics[:], merged(out.Current), out.Best),
	}, nil
}

func (r *Runner) runChain(ctx context.Context, p config.Problem) (Result, error) {
	steps, err := p.ChainRequests()
	if err != nil {
		return Result{}, err
	}
	params := make([]solver.Parameter, 0, len(steps))
	metrics := make([]solver.Metric, 0, len(steps))
	fixed := solver.Vector{}
	var observe []string
	for _, step := range steps {
		params = append(params, step.Parameter)
		metrics = append(metrics, step.Metric)
		for name, value := range step.Fixed {
			fixed[name] = value
		}
		observe = append(observe, step.Observe...)
	}

	current, err := r.solver.Current(ctx, params, metrics, fixed, observe)
	if err != nil {
		return Result{}, err
	}
	out, err := r.solver.SolveChain(ctx, steps)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Current:   current,
		Chain:     &out,
		Summaries: optimization.Summarize(p.Name, params, metrics, merged(current), out.Verification),
	}, nil
}

func (r *Runner) record(ctx context.Context, res *Result) {
	if r.recorder == nil {
		return
	}
	var (
		entry journal.Entry
		err   error
	)
	switch {
	case res.Root != nil:
		entry, err = journal.FromCandidate(res.Problem, res.SessionID, *res.Root)
	case res.Coupled != nil:
		entry, err = journal.FromOutcome(res.Problem, *res.Coupled)
	case res.Chain != nil:
		entry, err = journal.FromChain(res.Problem, *res.Chain)
	}
	if err == nil {
		res.JournalID, err = r.recorder.Record(ctx, entry)
	}
	if err != nil {
		r.logger.Warn("failed to journal solve",
			zap.String("op", "optimizer.record"),
			zap.String("problem", res.Problem),
			zap.Error(err),
		)
	}
}

// merged flattens a current-state candidate into one vector of cell values.
func merged(c solver.Candidate) solver.Vector {
	out := c.Metrics.Clone()
	for name, value := range c.Parameters {
		out[name] = value
	}
	return out
}
