// Package ingestion copies retail price lists into snapshot storage so
// pipeline runs can price from a fixed, reviewable catalog.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"se-assistant/db/clickhouse"
	"se-assistant/internal/pricing"
	"se-assistant/pkg/api"
)

// BatchSize is the number of records sent per insert batch.
const BatchSize = 1000

// Source fetches price records. The retail client satisfies it.
type Source interface {
	Search(ctx context.Context, q pricing.Query) []api.PriceRecord
}

// SnapshotStore is the storage surface ingestion writes to. The ClickHouse
// store satisfies it.
type SnapshotStore interface {
	FindSnapshotByHash(ctx context.Context, serviceName, region, hash string) (*api.PriceSnapshot, error)
	CreateSnapshot(ctx context.Context, snap *api.PriceSnapshot) error
	BulkInsertRecords(ctx context.Context, snapshotID string, records []api.PriceRecord) error
}

// ClickHouseAdapter ingests retail prices into snapshot storage
type ClickHouseAdapter struct {
	source Source
	store  SnapshotStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewClickHouseAdapter creates a new adapter
func NewClickHouseAdapter(source Source, store SnapshotStore) *ClickHouseAdapter {
	return &ClickHouseAdapter{
		source: source,
		store:  store,
		now:    time.Now,
		logger: log.Logger.With().Str("component", "ingestion").Logger(),
	}
}

// IngestionInput selects the price list to ingest
type IngestionInput struct {
	ServiceName string
	Region      string
	SKU         string
	Source      string
}

// IngestionResult tracks the result of a price ingestion
type IngestionResult struct {
	SnapshotID   string        `json:"snapshot_id"`
	ServiceName  string        `json:"service_name"`
	Region       string        `json:"region"`
	RecordCount  int           `json:"record_count"`
	Unchanged    bool          `json:"unchanged"`
	Duration     time.Duration `json:"duration"`
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// IngestPricing fetches the price list for input and stores it as a new
// snapshot. A price list identical to an existing snapshot is not stored
// again; the existing snapshot is reported with Unchanged set.
func (a *ClickHouseAdapter) IngestPricing(ctx context.Context, input IngestionInput) (*IngestionResult, error) {
	startTime := a.now()
	result := &IngestionResult{
		ServiceName: input.ServiceName,
		Region:      input.Region,
	}
	if input.ServiceName == "" || input.Region == "" {
		err := fmt.Errorf("service name and region are required")
		result.ErrorMessage = err.Error()
		return result, err
	}

	records := a.source.Search(ctx, pricing.Query{
		ServiceName: input.ServiceName,
		Region:      input.Region,
		SKU:         input.SKU,
	})
	if len(records) == 0 {
		err := fmt.Errorf("no prices found for %s in %s", input.ServiceName, input.Region)
		result.ErrorMessage = err.Error()
		return result, err
	}
	result.RecordCount = len(records)

	hash := clickhouse.HashRecords(records)
	existing, err := a.store.FindSnapshotByHash(ctx, input.ServiceName, input.Region, hash)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to check existing snapshots: %v", err)
		return result, err
	}
	if existing != nil {
		result.SnapshotID = existing.ID
		result.Unchanged = true
		result.Success = true
		result.Duration = a.now().Sub(startTime)
		a.logger.Info().Str("snapshot_id", existing.ID).Str("service", input.ServiceName).Msg("price list unchanged")
		return result, nil
	}

	source := input.Source
	if source == "" {
		source = "azure-retail"
	}
	snapshot := &api.PriceSnapshot{
		ID:          uuid.New().String(),
		Source:      source,
		ServiceName: input.ServiceName,
		Region:      input.Region,
		FetchedAt:   startTime,
		RecordCount: len(records),
		Hash:        hash,
	}

	// Records go in before the header so a half-written snapshot is never
	// visible to LatestSnapshot.
	for i := 0; i < len(records); i += BatchSize {
		end := i + BatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := a.store.BulkInsertRecords(ctx, snapshot.ID, records[i:end]); err != nil {
			result.ErrorMessage = fmt.Sprintf("failed to insert records at batch %d: %v", i/BatchSize, err)
			return result, err
		}
	}

	if err := a.store.CreateSnapshot(ctx, snapshot); err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to create snapshot: %v", err)
		return result, err
	}

	result.SnapshotID = snapshot.ID
	result.Success = true
	result.Duration = a.now().Sub(startTime)
	a.logger.Info().
		Str("snapshot_id", snapshot.ID).
		Str("service", input.ServiceName).
		Str("region", input.Region).
		Int("records", len(records)).
		Msg("price snapshot ingested")
	return result, nil
}
