package clickhouse

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"se-assistant/internal/pricing"
	"se-assistant/pkg/api"
)

// RecordSearcher is the query surface SnapshotLookup reads from.
type RecordSearcher interface {
	SearchRecords(ctx context.Context, serviceName, region, sku string, limit int) ([]api.PriceRecord, error)
}

// SnapshotLookup answers price lookups from ingested snapshots instead of
// the live retail API. Query failures are logged and read as misses.
type SnapshotLookup struct {
	store  RecordSearcher
	logger zerolog.Logger
}

// NewSnapshotLookup creates a lookup over store. The lookup does not own the
// store; Close is a no-op.
func NewSnapshotLookup(store RecordSearcher) *SnapshotLookup {
	return &SnapshotLookup{
		store:  store,
		logger: log.Logger.With().Str("component", "snapshot-prices").Logger(),
	}
}

// Search returns snapshot records for q. Currency is not filtered on since
// snapshots are ingested in a single currency.
func (l *SnapshotLookup) Search(ctx context.Context, q pricing.Query) []api.PriceRecord {
	records, err := l.store.SearchRecords(ctx, q.ServiceName, q.Region, q.SKU, pricing.MaxItems)
	if err != nil {
		l.logger.Warn().Err(err).Str("service", q.ServiceName).Str("region", q.Region).Msg("snapshot price search failed")
		return []api.PriceRecord{}
	}
	return records
}

// VMPrice returns the first Virtual Machines record for size in region.
func (l *SnapshotLookup) VMPrice(ctx context.Context, size, region string) (api.PriceRecord, bool) {
	return firstRecord(l.Search(ctx, pricing.Query{ServiceName: pricing.ServiceVirtualMachines, Region: region, SKU: size}))
}

// AppServicePrice returns the first App Service record for sku in region.
func (l *SnapshotLookup) AppServicePrice(ctx context.Context, sku, region string) (api.PriceRecord, bool) {
	return firstRecord(l.Search(ctx, pricing.Query{ServiceName: pricing.ServiceAppService, Region: region, SKU: sku}))
}

// SQLPrice returns the first SQL Database record for sku in region.
func (l *SnapshotLookup) SQLPrice(ctx context.Context, sku, region string) (api.PriceRecord, bool) {
	return firstRecord(l.Search(ctx, pricing.Query{ServiceName: pricing.ServiceSQLDatabase, Region: region, SKU: sku}))
}

// Close implements the lookup contract.
func (l *SnapshotLookup) Close() error { return nil }

func firstRecord(records []api.PriceRecord) (api.PriceRecord, bool) {
	if len(records) == 0 {
		return api.PriceRecord{}, false
	}
	return records[0], true
}
