package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSolved  = "solved"
	RunStatusFailed  = "failed"
)

// RunRecord is one resolution run, from start to outcome.
type RunRecord struct {
	ID           string
	RootQuestion string
	Strategy     string
	Status       string
	Answer       string
	ErrorMessage string
	NodeCount    int
	SolvedCount  int
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// RunRepo provides access to recorded runs.
type RunRepo interface {
	// Create inserts a run in the running state.
	Create(ctx context.Context, rec RunRecord) error

	// Finish records a run's outcome.
	Finish(ctx context.Context, id, status, answer, errorMessage string, nodeCount, solvedCount int) error

	// Get returns one run, or nil if unknown.
	Get(ctx context.Context, id string) (*RunRecord, error)

	// List returns the most recent runs, newest first.
	List(ctx context.Context, limit int) ([]RunRecord, error)
}

type runRepo struct {
	db *sql.DB
}

func (r *runRepo) Create(ctx context.Context, rec RunRecord) error {
	started := rec.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	status := rec.Status
	if status == "" {
		status = RunStatusRunning
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, root_question, strategy, status, node_count, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RootQuestion, rec.Strategy, status, rec.NodeCount, started,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *runRepo) Finish(ctx context.Context, id, status, answer, errorMessage string, nodeCount, solvedCount int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs
		 SET status = ?, answer = ?, error_message = ?, node_count = ?, solved_count = ?, finished_at = ?
		 WHERE id = ?`,
		status, answer, errorMessage, nodeCount, solvedCount, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("finish run: run %q not found", id)
	}
	return nil
}

func (r *runRepo) Get(ctx context.Context, id string) (*RunRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, root_question, strategy, status, answer, error_message,
		        node_count, solved_count, started_at, finished_at
		 FROM runs WHERE id = ?`, id)

	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &rec, nil
}

func (r *runRepo) List(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT id, root_question, strategy, status, answer, error_message,
	                 node_count, solved_count, started_at, finished_at
	          FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var finished sql.NullTime
	err := row.Scan(&rec.ID, &rec.RootQuestion, &rec.Strategy, &rec.Status,
		&rec.Answer, &rec.ErrorMessage, &rec.NodeCount, &rec.SolvedCount,
		&rec.StartedAt, &finished)
	if err != nil {
		return RunRecord{}, err
	}
	if finished.Valid {
		rec.FinishedAt = &finished.Time
	}
	return rec, nil
}
