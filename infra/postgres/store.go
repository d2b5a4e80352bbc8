// Package postgres keeps step records in PostgreSQL. A cycle re-planned
// under the same id replaces its earlier rows.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/kilianp07/thermompc/core/factory"
	"github.com/kilianp07/thermompc/core/results"
)

const schema = `CREATE TABLE IF NOT EXISTS mpc_steps (
	cycle_id   TEXT NOT NULL,
	band       TEXT NOT NULL,
	step       INTEGER NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	energy     DOUBLE PRECISION NOT NULL,
	slack      DOUBLE PRECISION NOT NULL,
	switching  DOUBLE PRECISION NOT NULL,
	record     JSONB NOT NULL,
	PRIMARY KEY (cycle_id, band, step)
);
CREATE INDEX IF NOT EXISTS mpc_steps_ts ON mpc_steps (ts);`

const upsert = `INSERT INTO mpc_steps (cycle_id, band, step, ts, energy, slack, switching, record)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (cycle_id, band, step) DO UPDATE SET
		ts = EXCLUDED.ts,
		energy = EXCLUDED.energy,
		slack = EXCLUDED.slack,
		switching = EXCLUDED.switching,
		record = EXCLUDED.record`

// Config holds the connection string.
type Config struct {
	DSN string `json:"dsn"`
}

// Store implements results.Store.
type Store struct {
	db *sql.DB
}

// Open connects and creates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Write upserts recs in one transaction.
func (s *Store) Write(ctx context.Context, recs []results.StepRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("postgres: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, r := range recs {
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.CycleID, r.Band, r.Step, r.Start, r.Energy, r.Slack, r.Switching, string(b)); err != nil {
			return fmt.Errorf("postgres: insert %s/%s/%d: %w", r.CycleID, r.Band, r.Step, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// buildQuery returns the SELECT for q with numbered placeholders.
func buildQuery(q results.Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !q.Start.IsZero() {
		add("ts >= $%d", q.Start)
	}
	if !q.End.IsZero() {
		add("ts <= $%d", q.End)
	}
	if q.CycleID != "" {
		add("cycle_id = $%d", q.CycleID)
	}
	if q.Band != "" {
		add("band = $%d", q.Band)
	}
	query := "SELECT record FROM mpc_steps"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY ts, cycle_id, step", args
}

// Query implements results.Store.
func (s *Store) Query(ctx context.Context, q results.Query) ([]results.StepRecord, error) {
	query, args := buildQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []results.StepRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r results.StepRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("postgres: decode record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

func init() {
	_ = results.Register("postgres", func(conf map[string]any) (results.Sink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.DSN == "" {
			return nil, fmt.Errorf("postgres: dsn required")
		}
		return Open(context.Background(), c.DSN)
	})
}
