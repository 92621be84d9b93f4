package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/abhisek/quandary/internal/llm"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit int    // max results (0 = unlimited)
	After int64  // sequence > After
	RunID string // restrict to one run ("" = all)
}

// NodeEventData captures one solved node for persistence.
type NodeEventData struct {
	RunID    string
	NodeID   string
	Question string
	Answer   string
	Depth    int
}

// NodeEventRecord is a stored node event.
type NodeEventRecord struct {
	ID        int
	Sequence  int64
	RunID     string
	NodeID    string
	Question  string
	Answer    string
	Depth     int
	Timestamp time.Time
}

// LLMEventRecord is a stored LLM request.
type LLMEventRecord struct {
	ID           int
	Sequence     int64
	RunID        string
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
	Timestamp    time.Time
}

// LLMPurposeUsage aggregates LLM usage for one purpose label.
type LLMPurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// LLMModelUsage aggregates LLM usage for one model.
type LLMModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EventRepo provides append and query access to run events. It also
// implements llm.Recorder, so a store can be plugged straight into the
// provider middleware.
type EventRepo interface {
	llm.Recorder

	// AppendNodeEvent records one solved node.
	AppendNodeEvent(ctx context.Context, data NodeEventData) error

	// QueryNodeEvents returns node events oldest first.
	QueryNodeEvents(ctx context.Context, opts QueryOpts) ([]NodeEventRecord, error)

	// QueryLLMEvents returns LLM requests newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEventRecord, error)

	// GetLLMEvent returns one LLM request with its full bodies, or nil.
	GetLLMEvent(ctx context.Context, id int) (*LLMEventRecord, error)

	// LLMUsageByPurpose aggregates token usage per purpose label.
	LLMUsageByPurpose(ctx context.Context) ([]LLMPurposeUsage, error)

	// LLMUsageByModel aggregates token usage per model.
	LLMUsageByModel(ctx context.Context) ([]LLMModelUsage, error)
}

type eventRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *eventRepo) AppendNodeEvent(ctx context.Context, data NodeEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO node_events (sequence, run_id, node_id, question, answer, depth, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		seqNum, data.RunID, data.NodeID, data.Question, data.Answer, data.Depth, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save node event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryNodeEvents(ctx context.Context, opts QueryOpts) ([]NodeEventRecord, error) {
	query := `SELECT id, sequence, run_id, node_id, question, answer, depth, timestamp
	          FROM node_events WHERE 1=1`
	var args []any
	if opts.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, opts.RunID)
	}
	if opts.After > 0 {
		query += " AND sequence > ?"
		args = append(args, opts.After)
	}
	query += " ORDER BY sequence ASC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query node events: %w", err)
	}
	defer rows.Close()

	var records []NodeEventRecord
	for rows.Next() {
		var rec NodeEventRecord
		if err := rows.Scan(&rec.ID, &rec.Sequence, &rec.RunID, &rec.NodeID,
			&rec.Question, &rec.Answer, &rec.Depth, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan node event: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecordLLMRequest implements llm.Recorder.
func (r *eventRepo) RecordLLMRequest(ctx context.Context, rec llm.RequestRecord) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO llm_requests (sequence, run_id, provider, model, purpose,
		   input_tokens, output_tokens, latency_ms, success, error_message,
		   request_body, response_body, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seqNum, rec.RunID, rec.Provider, rec.Model, rec.Purpose,
		rec.InputTokens, rec.OutputTokens, rec.LatencyMs, rec.Success,
		rec.ErrorMessage, rec.RequestBody, rec.ResponseBody, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save LLM request: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEventRecord, error) {
	query := `SELECT id, sequence, run_id, provider, model, purpose,
	                 input_tokens, output_tokens, latency_ms, success, error_message, timestamp
	          FROM llm_requests WHERE 1=1`
	var args []any
	if opts.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, opts.RunID)
	}
	if opts.After > 0 {
		query += " AND sequence > ?"
		args = append(args, opts.After)
	}
	query += " ORDER BY sequence DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query LLM events: %w", err)
	}
	defer rows.Close()

	var records []LLMEventRecord
	for rows.Next() {
		var rec LLMEventRecord
		if err := rows.Scan(&rec.ID, &rec.Sequence, &rec.RunID, &rec.Provider,
			&rec.Model, &rec.Purpose, &rec.InputTokens, &rec.OutputTokens,
			&rec.LatencyMs, &rec.Success, &rec.ErrorMessage, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan LLM event: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *eventRepo) GetLLMEvent(ctx context.Context, id int) (*LLMEventRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, sequence, run_id, provider, model, purpose,
		        input_tokens, output_tokens, latency_ms, success, error_message,
		        request_body, response_body, timestamp
		 FROM llm_requests WHERE id = ?`, id)

	var rec LLMEventRecord
	err := row.Scan(&rec.ID, &rec.Sequence, &rec.RunID, &rec.Provider,
		&rec.Model, &rec.Purpose, &rec.InputTokens, &rec.OutputTokens,
		&rec.LatencyMs, &rec.Success, &rec.ErrorMessage,
		&rec.RequestBody, &rec.ResponseBody, &rec.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get LLM event: %w", err)
	}
	return &rec, nil
}

func (r *eventRepo) LLMUsageByPurpose(ctx context.Context) ([]LLMPurposeUsage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT purpose, COUNT(*), SUM(input_tokens), SUM(output_tokens),
		        CAST(AVG(latency_ms) AS INTEGER)
		 FROM llm_requests GROUP BY purpose ORDER BY purpose`)
	if err != nil {
		return nil, fmt.Errorf("query usage by purpose: %w", err)
	}
	defer rows.Close()

	var usage []LLMPurposeUsage
	for rows.Next() {
		var u LLMPurposeUsage
		if err := rows.Scan(&u.Purpose, &u.Calls, &u.InputTokens, &u.OutputTokens, &u.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

func (r *eventRepo) LLMUsageByModel(ctx context.Context) ([]LLMModelUsage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT model, COUNT(*), SUM(input_tokens), SUM(output_tokens)
		 FROM llm_requests GROUP BY model ORDER BY model`)
	if err != nil {
		return nil, fmt.Errorf("query usage by model: %w", err)
	}
	defer rows.Close()

	var usage []LLMModelUsage
	for rows.Next() {
		var u LLMModelUsage
		if err := rows.Scan(&u.Model, &u.Calls, &u.InputTokens, &u.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
