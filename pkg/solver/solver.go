package solver

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/iwvelando/goalseek/pkg/oracle"
	"go.uber.org/zap"
)

// Solver runs searches against one oracle session. A Solver is not safe for
// concurrent use, since the oracle behind it is assumed single-writer.
type Solver struct {
	logger   *zap.Logger
	oracle   oracle.Oracle
	tuning   Tuning
	progress ProgressFunc
	observer Observer
	id       string
}

// Option customises a Solver.
type Option func(*Solver)

// WithProgress registers a progress sink.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Solver) {
		s.progress = fn
	}
}

// WithObserver registers an instrumentation sink.
func WithObserver(o Observer) Option {
	return func(s *Solver) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) Option {
	return func(s *Solver) {
		if id != "" {
			s.id = id
		}
	}
}

// NewSolver constructs a Solver for the provided oracle.
func NewSolver(logger *zap.Logger, o oracle.Oracle, tuning Tuning, opts ...Option) (*Solver, error) {
	if o == nil {
		return nil, fmt.Errorf("oracle cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	tuning.Normalize()
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid solver tuning: %w", err)
	}

	s := &Solver{
		logger:   logger,
		oracle:   o,
		tuning:   tuning,
		observer: nopObserver{},
		id:       uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.id))
	return s, nil
}

// SessionID identifies the solver's session in logs and journals.
func (s *Solver) SessionID() string {
	return s.id
}

// Tuning returns the normalized search constants.
func (s *Solver) Tuning() Tuning {
	return s.tuning
}
