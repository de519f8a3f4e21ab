// Package postgres stores pipeline run history in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"se-assistant/pkg/api"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	customer_input TEXT NOT NULL,
	project_title TEXT NOT NULL DEFAULT '',
	pattern TEXT NOT NULL DEFAULT '',
	service_count INTEGER NOT NULL DEFAULT 0,
	total_monthly_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_annual_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
	success BOOLEAN NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	stage_errors TEXT[] NOT NULL DEFAULT '{}',
	started_at TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	document JSONB
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at DESC);
`

const runColumns = `id, customer_input, project_title, pattern, service_count,
	total_monthly_cost, total_annual_cost, success, error, stage_errors,
	started_at, duration_ms, document`

// MaxListLimit caps ListRuns.
const MaxListLimit = 500

// Store keeps run records in a pipeline_runs table
type Store struct {
	db *sql.DB
}

// NewStore opens dsn, which may be a postgres:// URL or a key=value
// connection string, and creates the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	conn, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithDB wraps an open database. The schema is not created.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the runs table if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("init runs schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun upserts a run record by ID
func (s *Store) SaveRun(ctx context.Context, rec api.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO pipeline_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			success = EXCLUDED.success,
			error = EXCLUDED.error,
			stage_errors = EXCLUDED.stage_errors,
			duration_ms = EXCLUDED.duration_ms,
			document = EXCLUDED.document`,
		rec.ID,
		rec.CustomerInput,
		rec.ProjectTitle,
		rec.Pattern,
		rec.ServiceCount,
		rec.TotalMonthlyCost,
		rec.TotalAnnualCost,
		rec.Success,
		rec.Error,
		pq.Array(api.NonNil(rec.StageErrors)),
		rec.StartedAt,
		rec.DurationMS,
		documentArg(rec.Document),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun loads one run. A missing run returns nil, nil.
func (s *Store) GetRun(ctx context.Context, id string) (*api.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = $1`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs first, without documents.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]api.RunRecord, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]api.RunRecord, 0)
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Document = nil
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*api.RunRecord, error) {
	var (
		rec         api.RunRecord
		stageErrors pq.StringArray
		document    []byte
	)
	err := row.Scan(
		&rec.ID, &rec.CustomerInput, &rec.ProjectTitle, &rec.Pattern, &rec.ServiceCount,
		&rec.TotalMonthlyCost, &rec.TotalAnnualCost, &rec.Success, &rec.Error, &stageErrors,
		&rec.StartedAt, &rec.DurationMS, &document,
	)
	if err != nil {
		return nil, err
	}
	rec.StageErrors = api.NonNil([]string(stageErrors))
	if len(document) > 0 {
		rec.Document = document
	}
	return &rec, nil
}

// documentArg stores an empty document as NULL.
func documentArg(doc []byte) any {
	if len(doc) == 0 {
		return nil
	}
	return string(doc)
}

// NormalizeDSN converts postgres:// URLs to the key=value form lib/pq
// accepts everywhere. Other strings pass through unchanged.
func NormalizeDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", fmt.Errorf("postgres dsn is empty")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		conn, err := pq.ParseURL(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid postgres url: %w", err)
		}
		return conn, nil
	}
	return dsn, nil
}
