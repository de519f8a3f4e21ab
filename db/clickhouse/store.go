// Package clickhouse stores pipeline run history and ingested retail price
// snapshots in ClickHouse.
package clickhouse

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"se-assistant/pkg/api"
)

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "seassist",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store keeps runs and price snapshots in ClickHouse
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewStore opens a ClickHouse connection
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// =============================================================================
// SCHEMA
// =============================================================================

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		id String,
		customer_input String,
		project_title String,
		pattern String,
		service_count UInt32,
		total_monthly_cost Float64,
		total_annual_cost Float64,
		success UInt8,
		error String,
		stage_errors Array(String),
		started_at DateTime64(3),
		duration_ms Int64,
		document String
	) ENGINE = MergeTree ORDER BY (started_at, id)`,
	`CREATE TABLE IF NOT EXISTS price_snapshots (
		id UUID,
		source String,
		service_name String,
		region String,
		fetched_at DateTime64(3),
		record_count UInt32,
		hash String
	) ENGINE = MergeTree ORDER BY (service_name, region, fetched_at)`,
	`CREATE TABLE IF NOT EXISTS price_records (
		snapshot_id UUID,
		service_name String,
		sku_name String,
		region String,
		unit_price Float64,
		unit_of_measure String,
		retail_price Float64,
		currency_code String,
		tier_minimum_units Nullable(Float64),
		product_name String,
		meter_name String
	) ENGINE = MergeTree ORDER BY (snapshot_id, service_name, sku_name)`,
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// =============================================================================
// RUN OPERATIONS
// =============================================================================

const runColumns = `id, customer_input, project_title, pattern, service_count,
	total_monthly_cost, total_annual_cost, success, error, stage_errors,
	started_at, duration_ms, document`

// SaveRun inserts a pipeline run record
func (s *Store) SaveRun(ctx context.Context, rec api.RunRecord) error {
	query := `INSERT INTO pipeline_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	err := s.conn.Exec(ctx, query,
		rec.ID,
		rec.CustomerInput,
		rec.ProjectTitle,
		rec.Pattern,
		uint32(rec.ServiceCount),
		rec.TotalMonthlyCost,
		rec.TotalAnnualCost,
		boolToUInt8(rec.Success),
		rec.Error,
		api.NonNil(rec.StageErrors),
		rec.StartedAt,
		rec.DurationMS,
		string(rec.Document),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun retrieves a run by ID. A missing run returns nil, nil.
func (s *Store) GetRun(ctx context.Context, id string) (*api.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = ? LIMIT 1`
	row := s.conn.QueryRow(ctx, query, id)

	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs first. Documents are not loaded.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]api.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`
	rows, err := s.conn.Query(ctx, query, uint64(clampLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]api.RunRecord, 0)
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
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
		rec          api.RunRecord
		serviceCount uint32
		success      uint8
		document     string
	)
	err := row.Scan(
		&rec.ID, &rec.CustomerInput, &rec.ProjectTitle, &rec.Pattern, &serviceCount,
		&rec.TotalMonthlyCost, &rec.TotalAnnualCost, &success, &rec.Error, &rec.StageErrors,
		&rec.StartedAt, &rec.DurationMS, &document,
	)
	if err != nil {
		return nil, err
	}
	rec.ServiceCount = int(serviceCount)
	rec.Success = success == 1
	if document != "" {
		rec.Document = []byte(document)
	}
	return &rec, nil
}

// =============================================================================
// SNAPSHOT OPERATIONS
// =============================================================================

const snapshotColumns = `id, source, service_name, region, fetched_at, record_count, hash`

// CreateSnapshot inserts a new price snapshot header
func (s *Store) CreateSnapshot(ctx context.Context, snap *api.PriceSnapshot) error {
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return fmt.Errorf("invalid snapshot id %q: %w", snap.ID, err)
	}
	query := `INSERT INTO price_snapshots (` + snapshotColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	return s.conn.Exec(ctx, query,
		id,
		snap.Source,
		snap.ServiceName,
		snap.Region,
		snap.FetchedAt,
		uint32(snap.RecordCount),
		snap.Hash,
	)
}

// FindSnapshotByHash finds a snapshot for service/region with the given
// content hash. A miss returns nil, nil.
func (s *Store) FindSnapshotByHash(ctx context.Context, serviceName, region, hash string) (*api.PriceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM price_snapshots
		WHERE service_name = ? AND region = ? AND hash = ?
		LIMIT 1`
	snap, err := scanSnapshot(s.conn.QueryRow(ctx, query, serviceName, region, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find snapshot: %w", err)
	}
	return snap, nil
}

// LatestSnapshot returns the newest snapshot for service/region, or nil.
func (s *Store) LatestSnapshot(ctx context.Context, serviceName, region string) (*api.PriceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM price_snapshots
		WHERE service_name = ? AND region = ?
		ORDER BY fetched_at DESC
		LIMIT 1`
	snap, err := scanSnapshot(s.conn.QueryRow(ctx, query, serviceName, region))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots lists snapshots, newest first. An empty region lists all.
func (s *Store) ListSnapshots(ctx context.Context, region string, limit int) ([]api.PriceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM price_snapshots
		WHERE (? = '' OR region = ?)
		ORDER BY fetched_at DESC
		LIMIT ?`
	rows, err := s.conn.Query(ctx, query, region, region, uint64(clampLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]api.PriceSnapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, rows.Err()
}

func scanSnapshot(row scanner) (*api.PriceSnapshot, error) {
	var (
		snap  api.PriceSnapshot
		id    uuid.UUID
		count uint32
	)
	if err := row.Scan(&id, &snap.Source, &snap.ServiceName, &snap.Region, &snap.FetchedAt, &count, &snap.Hash); err != nil {
		return nil, err
	}
	snap.ID = id.String()
	snap.RecordCount = int(count)
	return &snap, nil
}

// =============================================================================
// PRICE RECORD OPERATIONS
// =============================================================================

const recordColumns = `service_name, sku_name, region, unit_price, unit_of_measure,
	retail_price, currency_code, tier_minimum_units, product_name, meter_name`

// BulkInsertRecords inserts price records for a snapshot in one batch
func (s *Store) BulkInsertRecords(ctx context.Context, snapshotID string, records []api.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	id, err := uuid.Parse(snapshotID)
	if err != nil {
		return fmt.Errorf("invalid snapshot id %q: %w", snapshotID, err)
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO price_records (snapshot_id, `+recordColumns+`)`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, r := range records {
		if err := batch.Append(
			id,
			r.ServiceName,
			r.SKUName,
			r.Region,
			r.UnitPrice,
			r.UnitOfMeasure,
			r.RetailPrice,
			r.CurrencyCode,
			r.TierMinimumUnits,
			r.ProductName,
			r.MeterName,
		); err != nil {
			return fmt.Errorf("failed to append record: %w", err)
		}
	}

	return batch.Send()
}

// SearchRecords returns records from the newest snapshot of serviceName in
// region. A non-empty sku filters by case-sensitive substring on sku_name,
// matching the retail API's contains() filter.
func (s *Store) SearchRecords(ctx context.Context, serviceName, region, sku string, limit int) ([]api.PriceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM price_records
		WHERE snapshot_id = (
			SELECT id FROM price_snapshots
			WHERE service_name = ? AND region = ?
			ORDER BY fetched_at DESC
			LIMIT 1
		)
		AND (? = '' OR position(sku_name, ?) > 0)
		LIMIT ?`
	rows, err := s.conn.Query(ctx, query, serviceName, region, sku, sku, uint64(clampLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to search prices: %w", err)
	}
	defer rows.Close()

	records := make([]api.PriceRecord, 0)
	for rows.Next() {
		var r api.PriceRecord
		if err := rows.Scan(
			&r.ServiceName, &r.SKUName, &r.Region, &r.UnitPrice, &r.UnitOfMeasure,
			&r.RetailPrice, &r.CurrencyCode, &r.TierMinimumUnits, &r.ProductName, &r.MeterName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan price record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// HashRecords fingerprints a record set independent of its order, so an
// unchanged price list is not ingested twice.
func HashRecords(records []api.PriceRecord) string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		tier := ""
		if r.TierMinimumUnits != nil {
			tier = strconv.FormatFloat(*r.TierMinimumUnits, 'g', -1, 64)
		}
		lines = append(lines, strings.Join([]string{
			r.ServiceName,
			r.SKUName,
			r.Region,
			strconv.FormatFloat(r.UnitPrice, 'g', -1, 64),
			r.UnitOfMeasure,
			strconv.FormatFloat(r.RetailPrice, 'g', -1, 64),
			r.CurrencyCode,
			tier,
			r.ProductName,
			r.MeterName,
		}, "|"))
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MaxListLimit caps list and search queries.
const MaxListLimit = 500

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
