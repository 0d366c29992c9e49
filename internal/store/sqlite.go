// Package store provides SQLite-backed persistence for respec's run history.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scbrown/respec/internal/model"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath.
// It auto-creates the parent directory (e.g. ~/.respec/) and runs
// schema migrations to ensure the database is up to date.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for WAL mode simplicity.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate runs schema migrations up to the current version.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	var ver int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&ver)
	if err == sql.ErrNoRows {
		ver = 0
	} else if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if ver > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", ver, schemaVersion)
	}

	if ver < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteStore) migrateV1() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			started_at  TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			command     TEXT NOT NULL,
			dir         TEXT,
			exit_code   INTEGER NOT NULL,
			tracked     INTEGER NOT NULL DEFAULT 0,
			rerun       INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_dir ON runs(dir)`,
		`CREATE TABLE IF NOT EXISTS run_failures (
			run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			location TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_failures_location ON run_failures(location)`,
		`INSERT INTO schema_version (version) VALUES (1)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate v1: %w", err)
		}
	}
	return nil
}

// RecordRun persists a finished run and its failures in one transaction.
func (s *SQLiteStore) RecordRun(ctx context.Context, r model.Run) error {
	command, err := json.Marshal(r.Command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, duration_ms, command, dir, exit_code, tracked, rerun)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.StartedAt.UTC().Format(timeFormat),
		r.Duration.Milliseconds(),
		string(command),
		nullableString(r.Dir),
		r.ExitCode,
		boolInt(r.Tracked),
		boolInt(r.Rerun),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, loc := range r.Failures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_failures (run_id, position, location) VALUES (?, ?, ?)`,
			r.ID, i, loc,
		); err != nil {
			return fmt.Errorf("insert failure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRuns returns runs matching the given filter options, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, opts ListOpts) ([]model.Run, error) {
	query := "SELECT id, started_at, duration_ms, command, dir, exit_code, tracked, rerun FROM runs WHERE 1=1"
	var args []any

	if !opts.Since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, opts.Since.UTC().Format(timeFormat))
	}
	if opts.Dir != "" {
		query += " AND dir = ?"
		args = append(args, opts.Dir)
	}
	if opts.FailedOnly {
		query += " AND exit_code != 0"
	}
	query += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var startedAt, command string
		var durationMS int64
		var dir sql.NullString
		var tracked, rerun int
		if err := rows.Scan(&r.ID, &startedAt, &durationMS, &command, &dir, &r.ExitCode, &tracked, &rerun); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		t, err := time.Parse(timeFormat, startedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse started_at %q: %w", startedAt, err)
		}
		if err := json.Unmarshal([]byte(command), &r.Command); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse command: %w", err)
		}
		r.StartedAt = t
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Dir = dir.String
		r.Tracked = tracked != 0
		r.Rerun = rerun != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range runs {
		locs, err := s.runFailures(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Failures = locs
	}
	return runs, nil
}

func (s *SQLiteStore) runFailures(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT location FROM run_failures WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var locs []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

// FlakyLocations returns locations ranked by failure count, most recent
// failure breaking ties.
func (s *SQLiteStore) FlakyLocations(ctx context.Context, opts FlakyOpts) ([]model.FlakyLocation, error) {
	query := `SELECT
		f.location,
		COUNT(*) AS cnt,
		COUNT(DISTINCT f.run_id) AS runs,
		MAX(r.started_at) AS last_failed
	FROM run_failures f
	JOIN runs r ON r.id = f.run_id`

	var conds []string
	var args []any
	if !opts.Since.IsZero() {
		conds = append(conds, "r.started_at >= ?")
		args = append(args, opts.Since.UTC().Format(timeFormat))
	}
	if opts.Dir != "" {
		conds = append(conds, "r.dir = ?")
		args = append(args, opts.Dir)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " GROUP BY f.location ORDER BY cnt DESC, last_failed DESC, f.location"
	if opts.Top > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Top)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("flaky locations: %w", err)
	}
	defer rows.Close()

	var out []model.FlakyLocation
	for rows.Next() {
		var fl model.FlakyLocation
		var last string
		if err := rows.Scan(&fl.Location, &fl.Count, &fl.Runs, &last); err != nil {
			return nil, fmt.Errorf("scan flaky location: %w", err)
		}
		fl.LastFailed, _ = time.Parse(timeFormat, last)
		out = append(out, fl)
	}
	return out, rows.Err()
}

// Stats returns summary statistics over all recorded runs.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var durationMS int64
	var earliest, latest sql.NullString

	if err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(exit_code = 0), 0),
		COALESCE(SUM(rerun), 0),
		COALESCE(SUM(duration_ms), 0),
		MIN(started_at),
		MAX(started_at)
	FROM runs`).Scan(&st.TotalRuns, &st.PassedRuns, &st.RerunRuns, &durationMS, &earliest, &latest); err != nil {
		return st, fmt.Errorf("count runs: %w", err)
	}
	st.FailedRuns = st.TotalRuns - st.PassedRuns
	st.TotalDuration = time.Duration(durationMS) * time.Millisecond
	if earliest.Valid {
		st.Earliest, _ = time.Parse(timeFormat, earliest.String)
	}
	if latest.Valid {
		st.Latest, _ = time.Parse(timeFormat, latest.String)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT location) FROM run_failures").Scan(&st.UniqueLocations); err != nil {
		return st, fmt.Errorf("count locations: %w", err)
	}

	// Time-window counts.
	now := time.Now().UTC()
	for _, w := range []struct {
		dur time.Duration
		dst *int
	}{
		{24 * time.Hour, &st.Last24h},
		{7 * 24 * time.Hour, &st.Last7d},
		{30 * 24 * time.Hour, &st.Last30d},
	} {
		since := now.Add(-w.dur).Format(timeFormat)
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM runs WHERE started_at >= ?", since).Scan(w.dst); err != nil {
			return st, fmt.Errorf("count since %v: %w", w.dur, err)
		}
	}

	return st, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
