package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mediabridge/internal/node"
)

// ErrNotFound is returned when no run matches the requested identifier.
var ErrNotFound = errors.New("history: run not found")

// DBTX is the pgx surface the store needs; satisfied by *pgxpool.Pool.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists finished node runs in Postgres. The core task client keeps
// no job state of its own; this is service-level bookkeeping layered on top.
type Store struct {
	db DBTX
}

// Run is one persisted invocation record.
type Run struct {
	ID        string          `json:"id"`
	Node      string          `json:"node"`
	TaskID    string          `json:"task_id,omitempty"`
	Status    string          `json:"status"`
	URLs      []string        `json:"urls,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewStore constructs a Store over the given connection.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the runs table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS node_runs (
	id          UUID PRIMARY KEY,
	node        TEXT NOT NULL,
	task_id     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	urls        JSONB NOT NULL DEFAULT '[]',
	output      JSONB,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("history: ensure schema: %w", err)
	}
	return nil
}

// Record stores the outcome of one adapter invocation.
func (s *Store) Record(ctx context.Context, run node.Run) error {
	urls, err := json.Marshal(run.URLs)
	if err != nil {
		return fmt.Errorf("history: encode urls: %w", err)
	}
	var output []byte
	if len(run.Output) > 0 {
		output = run.Output
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO node_runs (id, node, task_id, status, urls, output, error, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.Node, run.TaskID, run.Status, urls, output, run.Error,
		run.Duration.Milliseconds(), run.StartedAt)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	return nil
}

// Get returns one run by id.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRow(ctx, `
SELECT id, node, task_id, status, urls, output, error, duration_ms, created_at
FROM node_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("history: get run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
SELECT id, node, task_id, status, urls, output, error, duration_ms, created_at
FROM node_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var (
		run        Run
		urls       []byte
		output     []byte
		durationMS int64
	)
	if err := row.Scan(&run.ID, &run.Node, &run.TaskID, &run.Status, &urls, &output, &run.Error, &durationMS, &run.CreatedAt); err != nil {
		return nil, err
	}
	if len(urls) > 0 {
		_ = json.Unmarshal(urls, &run.URLs)
	}
	if len(output) > 0 {
		run.Output = json.RawMessage(output)
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

var _ node.Recorder = (*Store)(nil)
