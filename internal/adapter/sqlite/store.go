// Package sqlite persists results tables in a SQLite database so a run can
// be rerun later by id.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/storm-peakflow/internal/domain"
)

// ErrNotFound is returned when no run matches the lookup.
var ErrNotFound = domain.ErrRunNotFound

// Store wraps a SQLite database of runs and their rows.
type Store struct {
	db *sql.DB
}

// RunSummary describes a stored run without its rows.
type RunSummary struct {
	ID          string            `json:"run_id"`
	SourceRunID string            `json:"source_run_id,omitempty"`
	Scenario    string            `json:"scenario,omitempty"`
	Units       domain.UnitSystem `json:"units"`
	Rows        int               `json:"rows"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA foreign_keys=ON`} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness reports whether the database answers.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id               TEXT PRIMARY KEY,
			source_run_id    TEXT NOT NULL DEFAULT '',
			scenario         TEXT NOT NULL DEFAULT '',
			pour_point_field TEXT NOT NULL DEFAULT 'id',
			units            TEXT NOT NULL,
			frequencies      TEXT NOT NULL,
			created_at       INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_rows (
			run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq           INTEGER NOT NULL,
			id            TEXT NOT NULL,
			pour_point_id TEXT NOT NULL DEFAULT '',
			discharge     TEXT NOT NULL,
			avg_slope     REAL NOT NULL,
			avg_cn        REAL NOT NULL,
			area_upstream REAL NOT NULL,
			max_fl        REAL NOT NULL,
			tc_hr         REAL NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun stores a results table and its rows in one transaction.
func (s *Store) SaveRun(ctx context.Context, t *domain.ResultsTable) error {
	if t.RunID == "" {
		return errors.New("save run: run id is required")
	}
	freqs, err := json.Marshal(t.Frequencies)
	if err != nil {
		return fmt.Errorf("encode frequencies: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, source_run_id, scenario, pour_point_field, units, frequencies, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		t.RunID, t.SourceRunID, t.Scenario, t.PourPointField, string(t.Units), string(freqs), t.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", t.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_rows (run_id, seq, id, pour_point_id, discharge, avg_slope, avg_cn, area_upstream, max_fl, tc_hr)
		VALUES (?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range t.Rows {
		q, err := json.Marshal(r.Discharge)
		if err != nil {
			return fmt.Errorf("encode discharge for %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, t.RunID, i, r.ID, r.PourPointID, string(q),
			r.AvgSlopePct, r.AvgCurveNumber, r.AreaUpstream, r.MaxFlowLength, r.TimeOfConcentrationHr); err != nil {
			return fmt.Errorf("insert row %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// LoadRun returns the stored table with the given run id.
func (s *Store) LoadRun(ctx context.Context, runID string) (*domain.ResultsTable, error) {
	t := &domain.ResultsTable{RunID: runID}
	var units, freqs string
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT source_run_id, scenario, pour_point_field, units, frequencies, created_at
		FROM runs WHERE id = ?`, runID,
	).Scan(&t.SourceRunID, &t.Scenario, &t.PourPointField, &units, &freqs, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	t.Units = domain.UnitSystem(units)
	t.CreatedAt = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(freqs), &t.Frequencies); err != nil {
		return nil, fmt.Errorf("decode frequencies of run %s: %w", runID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pour_point_id, discharge, avg_slope, avg_cn, area_upstream, max_fl, tc_hr
		FROM run_rows WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query rows of run %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.ResultRow
		var q string
		if err := rows.Scan(&r.ID, &r.PourPointID, &q, &r.AvgSlopePct, &r.AvgCurveNumber,
			&r.AreaUpstream, &r.MaxFlowLength, &r.TimeOfConcentrationHr); err != nil {
			return nil, fmt.Errorf("scan row of run %s: %w", runID, err)
		}
		if err := json.Unmarshal([]byte(q), &r.Discharge); err != nil {
			return nil, fmt.Errorf("decode discharge of %s: %w", r.ID, err)
		}
		t.Rows = append(t.Rows, r)
	}
	return t, rows.Err()
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.source_run_id, r.scenario, r.units, r.created_at,
		       (SELECT COUNT(*) FROM run_rows WHERE run_id = r.id)
		FROM runs r ORDER BY r.created_at DESC, r.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var units string
		var created int64
		if err := rows.Scan(&rs.ID, &rs.SourceRunID, &rs.Scenario, &units, &created, &rs.Rows); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rs.Units = domain.UnitSystem(units)
		rs.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, rs)
	}
	return out, rows.Err()
}

// LatestBaseRun returns the most recent run that was not produced by a rerun.
func (s *Store) LatestBaseRun(ctx context.Context) (*domain.ResultsTable, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM runs WHERE source_run_id = ''
		ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	return s.LoadRun(ctx, id)
}

// DeleteRun removes a run and its rows.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return nil
}
