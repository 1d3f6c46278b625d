// Package journal records solve outcomes in a SQLite database so past
// recommendations can be listed and compared.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iwvelando/goalseek/pkg/solver"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS solves (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT NOT NULL,
    problem      TEXT NOT NULL,
    kind         TEXT NOT NULL,
    label        TEXT NOT NULL,
    converged    INTEGER NOT NULL,
    evaluations  INTEGER NOT NULL,
    iterations   INTEGER NOT NULL,
    duration_ms  INTEGER NOT NULL,
    parameters   TEXT NOT NULL,
    metrics      TEXT NOT NULL,
    outcome      TEXT NOT NULL,
    created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_solves_problem ON solves(problem, id);
`

// Entry is one journaled solve. Parameters and Metrics hold the recommended
// candidate; Outcome holds the full result as JSON.
type Entry struct {
	ID          int64           `json:"id"`
	SessionID   string          `json:"sessionId"`
	Problem     string          `json:"problem"`
	Kind        string          `json:"kind"`
	Label       string          `json:"label"`
	Converged   bool            `json:"converged"`
	Evaluations int             `json:"evaluations"`
	Iterations  int             `json:"iterations"`
	Duration    time.Duration   `json:"duration"`
	Parameters  solver.Vector   `json:"parameters"`
	Metrics     solver.Vector   `json:"metrics"`
	Outcome     json.RawMessage `json:"outcome,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Store manages the solves table.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	owned  bool
}

// NewStore creates the schema on db and returns a Store.
func NewStore(logger *zap.Logger, db *sql.DB) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Open opens (creating if needed) the SQLite journal at path.
func Open(logger *zap.Logger, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)
	s, err := NewStore(logger, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close releases the database when the Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Record inserts e and returns its id. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	params, err := json.Marshal(nonNil(e.Parameters))
	if err != nil {
		return 0, fmt.Errorf("encode parameters: %w", err)
	}
	metrics, err := json.Marshal(nonNil(e.Metrics))
	if err != nil {
		return 0, fmt.Errorf("encode metrics: %w", err)
	}
	outcome := e.Outcome
	if len(outcome) == 0 {
		outcome = json.RawMessage("null")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO solves (session_id, problem, kind, label, converged, evaluations, iterations,
		                     duration_ms, parameters, metrics, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Problem, e.Kind, e.Label, e.Converged, e.Evaluations, e.Iterations,
		e.Duration.Milliseconds(), string(params), string(metrics), string(outcome),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("record solve: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record solve: %w", err)
	}

	s.logger.Debug("solve journaled",
		zap.String("op", "journal.Record"),
		zap.Int64("id", id),
		zap.String("problem", e.Problem),
		zap.String("session", e.SessionID),
	)
	return id, nil
}

// List returns up to limit entries, newest first. An empty problem lists all
// problems; a non-positive limit lists everything.
func (s *Store) List(ctx context.Context, problem string, limit int) ([]Entry, error) {
	query := `SELECT id, session_id, problem, kind, label, converged, evaluations, iterations,
	                 duration_ms, parameters, metrics, outcome, created_at
	          FROM solves`
	var args []any
	if problem != "" {
		query += ` WHERE problem = ?`
		args = append(args, problem)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list solves: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMS int64
		var params, metrics, outcome, createdAt string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Problem, &e.Kind, &e.Label, &e.Converged,
			&e.Evaluations, &e.Iterations, &durationMS, &params, &metrics, &outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(params), &e.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters of solve %d: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(metrics), &e.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics of solve %d: %w", e.ID, err)
		}
		e.Outcome = json.RawMessage(outcome)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nonNil(v solver.Vector) solver.Vector {
	if v == nil {
		return solver.Vector{}
	}
	return v
}
