// Package kpi persists the daily control KPIs in SQLite so that they
// survive restarts.
package kpi

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/thermompc/core/metrics/daily"
)

// SQLiteStore implements daily.Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS daily_kpi (
        day INTEGER PRIMARY KEY,
        cycles INTEGER,
        fallbacks INTEGER,
        slack_cycles INTEGER,
        electricity_kwh REAL
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Add merges r into the row of its day.
func (s *SQLiteStore) Add(r daily.Record) error {
	d := daily.Day(r.Date)
	_, err := s.db.Exec(`INSERT INTO daily_kpi (day, cycles, fallbacks, slack_cycles, electricity_kwh)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(day) DO UPDATE SET
            cycles = cycles + excluded.cycles,
            fallbacks = fallbacks + excluded.fallbacks,
            slack_cycles = slack_cycles + excluded.slack_cycles,
            electricity_kwh = electricity_kwh + excluded.electricity_kwh`,
		d.Unix(), r.Cycles, r.Fallbacks, r.SlackCycles, r.ElectricityKWh)
	return err
}

// Query returns the days in [start,end] in order.
func (s *SQLiteStore) Query(start, end time.Time) ([]daily.Record, error) {
	start = daily.Day(start)
	end = daily.Day(end)
	rows, err := s.db.Query(`SELECT day, cycles, fallbacks, slack_cycles, electricity_kwh
        FROM daily_kpi WHERE day >= ? AND day <= ? ORDER BY day`,
		start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []daily.Record
	for rows.Next() {
		var ts int64
		var r daily.Record
		if err := rows.Scan(&ts, &r.Cycles, &r.Fallbacks, &r.SlackCycles, &r.ElectricityKWh); err != nil {
			return nil, err
		}
		r.Date = time.Unix(ts, 0).UTC()
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
