package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS query_runs (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	latitude        REAL NOT NULL,
	longitude       REAL NOT NULL,
	requested_years TEXT NOT NULL,
	succeeded       INTEGER NOT NULL,
	failed          INTEGER NOT NULL,
	result          TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS query_years (
	run_id           TEXT NOT NULL REFERENCES query_runs(id) ON DELETE CASCADE,
	year             INTEGER NOT NULL,
	ok               INTEGER NOT NULL,
	density          REAL NOT NULL DEFAULT 0,
	pixel_population REAL NOT NULL DEFAULT 0,
	error_kind       TEXT,
	error_detail     TEXT,
	PRIMARY KEY (run_id, year)
);

CREATE INDEX IF NOT EXISTS idx_query_runs_created_at ON query_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_query_runs_location ON query_runs(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_query_years_year ON query_years(year);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, rec *RunRecord) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	yearsJSON, err := json.Marshal(rec.RequestedYears)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal requested years")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin save run")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO query_runs (id, kind, latitude, longitude, requested_years, succeeded, failed, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(rec.Kind), rec.Latitude, rec.Longitude, string(yearsJSON), rec.Succeeded, rec.Failed, string(rec.Result), now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert run")
	}

	for _, y := range rec.Years {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO query_years (run_id, year, ok, density, pixel_population, error_kind, error_detail)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, y.Year, y.OK, y.Density, y.PixelPopulation, nullString(y.ErrorKind), nullString(y.ErrorDetail),
		)
		if err != nil {
			return "", eris.Wrapf(err, "sqlite: insert year %d for run %s", y.Year, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit save run")
	}
	rec.ID = id
	rec.CreatedAt = now
	return id, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, latitude, longitude, requested_years, succeeded, failed, created_at, result
		 FROM query_runs WHERE id = ?`,
		id,
	)
	var resultJSON string
	rec, err := scanRun(row, &resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", id)
	}
	if err != nil {
		return nil, err
	}
	rec.Result = json.RawMessage(resultJSON)

	rows, err := s.db.QueryContext(ctx,
		`SELECT year, ok, density, pixel_population, error_kind, error_detail
		 FROM query_years WHERE run_id = ? ORDER BY year`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list years for run %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var y YearRow
		var kind, detail sql.NullString
		if err := rows.Scan(&y.Year, &y.OK, &y.Density, &y.PixelPopulation, &kind, &detail); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan year")
		}
		y.ErrorKind = kind.String
		y.ErrorDetail = detail.String
		rec.Years = append(rec.Years, y)
	}
	return rec, eris.Wrap(rows.Err(), "sqlite: list years iterate")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := `SELECT id, kind, latitude, longitude, requested_years, succeeded, failed, created_at
	          FROM query_runs WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Year != 0 {
		query += ` AND EXISTS (SELECT 1 FROM query_years y WHERE y.run_id = query_runs.id AND y.year = ?)`
		args = append(args, filter.Year)
	}
	if filter.Near != nil {
		query += ` AND ABS(latitude - ?) <= ? AND ABS(longitude - ?) <= ?`
		tol := filter.tolerance()
		args = append(args, filter.Near.Latitude, tol, filter.Near.Longitude, tol)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows, nil)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

// scanRun reads the summary columns, plus result when extra is non-nil.
func scanRun(row scannable, extra *string) (*RunRecord, error) {
	var r RunRecord
	var kind, yearsJSON string

	dest := []any{&r.ID, &kind, &r.Latitude, &r.Longitude, &yearsJSON, &r.Succeeded, &r.Failed, &r.CreatedAt}
	if extra != nil {
		dest = append(dest, extra)
	}
	err := row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Kind = RunKind(kind)
	if err := json.Unmarshal([]byte(yearsJSON), &r.RequestedYears); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal requested years")
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
