// Package store persists solved runs (capacities and dispatch) in
// PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"go.uber.org/zap"

	"github.com/devskill-org/gridplan/network"
	"github.com/devskill-org/gridplan/timeseries"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	name        TEXT PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL,
	status      TEXT NOT NULL,
	termination TEXT NOT NULL,
	objective   DOUBLE PRECISION NOT NULL,
	iterations  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS capacities (
	run_name   TEXT NOT NULL REFERENCES runs(name) ON DELETE CASCADE,
	component  TEXT NOT NULL,
	name       TEXT NOT NULL,
	carrier    TEXT NOT NULL,
	p_nom_opt  DOUBLE PRECISION NOT NULL,
	energy     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_name, component, name)
);
CREATE TABLE IF NOT EXISTS dispatch (
	run_name  TEXT NOT NULL REFERENCES runs(name) ON DELETE CASCADE,
	series    TEXT NOT NULL,
	snapshot  TIMESTAMPTZ NOT NULL,
	value     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_name, series, snapshot)
);`

// Run describes one solve.
type Run struct {
	Name       string
	CreatedAt  time.Time
	Status     string
	Condition  string
	Objective  float64
	Iterations int
}

// Store reads and writes runs.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New wraps an open database handle.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Open connects to the database at dsn and checks the connection.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db, logger), nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection not available")
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun stores run together with the capacities and dispatch of n,
// replacing an earlier run of the same name.
func (s *Store) SaveRun(ctx context.Context, run Run, n *network.Network) error {
	if s.db == nil {
		return fmt.Errorf("database connection not available")
	}
	if run.Name == "" {
		return fmt.Errorf("run name cannot be empty")
	}
	frame, err := n.DispatchFrame()
	if err != nil {
		return fmt.Errorf("failed to collect dispatch: %w", err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (name, created_at, status, termination, objective, iterations)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			status = EXCLUDED.status,
			termination = EXCLUDED.termination,
			objective = EXCLUDED.objective,
			iterations = EXCLUDED.iterations
	`, run.Name, run.CreatedAt, run.Status, run.Condition, run.Objective, run.Iterations)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	for _, table := range []string{"capacities", "dispatch"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_name = $1", run.Name); err != nil {
			return fmt.Errorf("failed to delete existing %s: %w", table, err)
		}
	}

	capStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO capacities (run_name, component, name, carrier, p_nom_opt, energy)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer capStmt.Close()

	caps := n.Capacities()
	for _, c := range caps {
		if _, err := capStmt.ExecContext(ctx, run.Name, c.Component, c.Name, c.Carrier, c.PNomOpt, c.Energy); err != nil {
			return fmt.Errorf("failed to insert capacity of %s %s: %w", c.Component, c.Name, err)
		}
	}

	dispStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dispatch (run_name, series, snapshot, value)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer dispStmt.Close()

	rows := 0
	for _, name := range frame.Columns {
		col, err := frame.Column(name)
		if err != nil {
			return err
		}
		for i, t := range col.Index {
			if _, err := dispStmt.ExecContext(ctx, run.Name, name, t, col.Values[i]); err != nil {
				return fmt.Errorf("failed to insert dispatch of %s at %s: %w", name, t.Format(time.RFC3339), err)
			}
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Saved run",
		zap.String("run", run.Name),
		zap.Int("capacities", len(caps)),
		zap.Int("dispatch_rows", rows))
	return nil
}

// LoadRun returns the named run, or sql.ErrNoRows.
func (s *Store) LoadRun(ctx context.Context, name string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	run := &Run{Name: name}
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at, status, termination, objective, iterations
		FROM runs WHERE name = $1
	`, name).Scan(&run.CreatedAt, &run.Status, &run.Condition, &run.Objective, &run.Iterations)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", name, err)
	}
	return run, nil
}

// LoadCapacities returns the stored capacities of a run.
func (s *Store) LoadCapacities(ctx context.Context, runName string) ([]network.Capacity, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT component, name, carrier, p_nom_opt, energy
		FROM capacities
		WHERE run_name = $1
		ORDER BY component, name
	`, runName)
	if err != nil {
		return nil, fmt.Errorf("failed to query capacities: %w", err)
	}
	defer rows.Close()

	var caps []network.Capacity
	for rows.Next() {
		var c network.Capacity
		if err := rows.Scan(&c.Component, &c.Name, &c.Carrier, &c.PNomOpt, &c.Energy); err != nil {
			return nil, fmt.Errorf("failed to scan capacity: %w", err)
		}
		caps = append(caps, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating capacities: %w", err)
	}
	return caps, nil
}

// LoadDispatch returns the stored dispatch of a run as a frame. Series are
// ordered by name.
func (s *Store) LoadDispatch(ctx context.Context, runName string) (*timeseries.Frame, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT series, snapshot, value
		FROM dispatch
		WHERE run_name = $1
		ORDER BY series, snapshot
	`, runName)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch: %w", err)
	}
	defer rows.Close()

	var names []string
	data := make(map[string]*timeseries.Series)
	for rows.Next() {
		var name string
		var t time.Time
		var v float64
		if err := rows.Scan(&name, &t, &v); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		series, ok := data[name]
		if !ok {
			series = &timeseries.Series{Name: name}
			data[name] = series
			names = append(names, name)
		}
		series.Index = append(series.Index, t.UTC())
		series.Values = append(series.Values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dispatch: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no dispatch stored for run %s", runName)
	}

	frame := timeseries.NewFrame(data[names[0]].Index)
	for _, name := range names {
		if err := frame.Set(name, data[name].Values); err != nil {
			return nil, err
		}
	}
	return frame, nil
}
