package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/popdensity-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run": `INSERT INTO query_runs (id, kind, latitude, longitude, requested_years, succeeded, failed, result, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"get_run":    `SELECT id, kind, latitude, longitude, requested_years, succeeded, failed, created_at, result FROM query_runs WHERE id = $1`,
	"get_years":  `SELECT year, ok, density, pixel_population, error_kind, error_detail FROM query_years WHERE run_id = $1 ORDER BY year`,
}

var yearColumns = []string{"run_id", "year", "ok", "density", "pixel_population", "error_kind", "error_detail"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS query_runs (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind            TEXT NOT NULL,
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	requested_years JSONB NOT NULL,
	succeeded       INTEGER NOT NULL,
	failed          INTEGER NOT NULL,
	result          JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS query_years (
	run_id           TEXT NOT NULL REFERENCES query_runs(id) ON DELETE CASCADE,
	year             INTEGER NOT NULL,
	ok               BOOLEAN NOT NULL,
	density          DOUBLE PRECISION NOT NULL DEFAULT 0,
	pixel_population DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_kind       TEXT,
	error_detail     TEXT,
	PRIMARY KEY (run_id, year)
);

CREATE INDEX IF NOT EXISTS idx_query_runs_created_at ON query_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_query_runs_location ON query_runs(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_query_years_year ON query_years(year);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveRun inserts the run and bulk-loads its years with COPY in one
// transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, rec *RunRecord) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	yearsJSON, err := json.Marshal(rec.RequestedYears)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal requested years")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: begin save run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO query_runs (id, kind, latitude, longitude, requested_years, succeeded, failed, result, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, string(rec.Kind), rec.Latitude, rec.Longitude, yearsJSON, rec.Succeeded, rec.Failed, []byte(rec.Result), now,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert run")
	}

	rows := make([][]any, 0, len(rec.Years))
	for _, y := range rec.Years {
		rows = append(rows, []any{id, y.Year, y.OK, y.Density, y.PixelPopulation, nullable(y.ErrorKind), nullable(y.ErrorDetail)})
	}
	if _, err := db.CopyFrom(ctx, tx, "query_years", yearColumns, rows); err != nil {
		return "", eris.Wrapf(err, "postgres: copy years for run %s", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "postgres: commit save run")
	}
	rec.ID = id
	rec.CreatedAt = now
	return id, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var r RunRecord
	var kind string
	var yearsJSON, resultJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, latitude, longitude, requested_years, succeeded, failed, created_at, result FROM query_runs WHERE id = $1`,
		id,
	).Scan(&r.ID, &kind, &r.Latitude, &r.Longitude, &yearsJSON, &r.Succeeded, &r.Failed, &r.CreatedAt, &resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	r.Kind = RunKind(kind)
	r.Result = json.RawMessage(resultJSON)
	if err := json.Unmarshal(yearsJSON, &r.RequestedYears); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal requested years")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT year, ok, density, pixel_population, error_kind, error_detail FROM query_years WHERE run_id = $1 ORDER BY year`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list years for run %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var y YearRow
		var kind, detail *string
		if err := rows.Scan(&y.Year, &y.OK, &y.Density, &y.PixelPopulation, &kind, &detail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan year")
		}
		if kind != nil {
			y.ErrorKind = *kind
		}
		if detail != nil {
			y.ErrorDetail = *detail
		}
		r.Years = append(r.Years, y)
	}
	return &r, eris.Wrap(rows.Err(), "postgres: list years iterate")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := `SELECT id, kind, latitude, longitude, requested_years, succeeded, failed, created_at FROM query_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.Year != 0 {
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM query_years y WHERE y.run_id = query_runs.id AND y.year = $%d)`, argIdx)
		args = append(args, filter.Year)
		argIdx++
	}
	if filter.Near != nil {
		query += fmt.Sprintf(` AND abs(latitude - $%d) <= $%d AND abs(longitude - $%d) <= $%d`, argIdx, argIdx+1, argIdx+2, argIdx+1)
		args = append(args, filter.Near.Latitude, filter.tolerance(), filter.Near.Longitude)
		argIdx += 3
	}
	query += ` ORDER BY created_at DESC, id`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var kind string
		var yearsJSON []byte
		if err := rows.Scan(&r.ID, &kind, &r.Latitude, &r.Longitude, &yearsJSON, &r.Succeeded, &r.Failed, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Kind = RunKind(kind)
		if err := json.Unmarshal(yearsJSON, &r.RequestedYears); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal requested years")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
