// Package sqlstore persists detection results in SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	sio "github.com/hed1ad/gostatsig/pkg/io"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var schemas = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS scores (
	run_id TEXT NOT NULL,
	ts TIMESTAMP NOT NULL,
	column_name TEXT NOT NULL,
	score REAL NOT NULL,
	stat_sig REAL NOT NULL,
	magnitude REAL NOT NULL,
	is_anomaly BOOLEAN NOT NULL
	);`,
		`CREATE INDEX IF NOT EXISTS idx_scores_run ON scores(run_id);`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS scores (
	run_id UUID NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	column_name TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	stat_sig DOUBLE PRECISION NOT NULL,
	magnitude DOUBLE PRECISION NOT NULL,
	is_anomaly BOOLEAN NOT NULL
	);`,
		`CREATE INDEX IF NOT EXISTS idx_scores_run ON scores(run_id);`,
	},
}

// Store writes results to the scores table. Every Store tags its rows with
// a run id generated when it is opened.
type Store struct {
	db     *sql.DB
	driver string
	runID  uuid.UUID
}

var _ sio.Writer = (*Store)(nil)

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if _, ok := schemas[driver]; !ok {
		return nil, fmt.Errorf("unsupported driver %q (use %s or %s)", driver, DriverSQLite, DriverPostgres)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driver, runID: uuid.New()}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, q := range schemas[s.driver] {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// RunID returns the id stored with every row written by s.
func (s *Store) RunID() uuid.UUID { return s.runID }

// Write outputs a single result.
func (s *Store) Write(r sio.Result) error {
	return s.WriteAll([]sio.Result{r})
}

// WriteAll inserts results in one transaction.
func (s *Store) WriteAll(results []sio.Result) error {
	return s.WriteAllContext(context.Background(), results)
}

// WriteAllContext is WriteAll with a context.
func (s *Store) WriteAllContext(ctx context.Context, results []sio.Result) error {
	return s.WriteRun(ctx, s.runID, results)
}

// WriteRun inserts results under an explicit run id in one transaction.
func (s *Store) WriteRun(ctx context.Context, runID uuid.UUID, results []sio.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO scores(run_id,ts,column_name,score,stat_sig,magnitude,is_anomaly) VALUES(?,?,?,?,?,?,?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	run := runID.String()
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, run, r.Timestamp.UTC(), r.Column, r.Score, r.StatSig, r.Magnitude, r.IsAnomaly); err != nil {
			return fmt.Errorf("insert %s@%s: %w", r.Column, r.Timestamp.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

// Results returns the rows of a run ordered by time, then column.
func (s *Store) Results(ctx context.Context, runID uuid.UUID) ([]sio.Result, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT ts,column_name,score,stat_sig,magnitude,is_anomaly FROM scores WHERE run_id = ? ORDER BY ts, column_name`),
		runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sio.Result
	for rows.Next() {
		var r sio.Result
		if err := rows.Scan(&r.Timestamp, &r.Column, &r.Score, &r.StatSig, &r.Magnitude, &r.IsAnomaly); err != nil {
			return nil, err
		}
		r.Timestamp = r.Timestamp.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, ch := range q {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
