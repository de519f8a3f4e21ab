package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"se-assistant/db/clickhouse"
	"se-assistant/internal/pricing"
	"se-assistant/pkg/api"
)

type staticSource struct {
	records []api.PriceRecord
	queries []pricing.Query
}

func (s *staticSource) Search(_ context.Context, q pricing.Query) []api.PriceRecord {
	s.queries = append(s.queries, q)
	return s.records
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindSnapshotByHash(ctx context.Context, serviceName, region, hash string) (*api.PriceSnapshot, error) {
	args := m.Called(serviceName, region, hash)
	snap, _ := args.Get(0).(*api.PriceSnapshot)
	return snap, args.Error(1)
}

func (m *mockStore) CreateSnapshot(ctx context.Context, snap *api.PriceSnapshot) error {
	return m.Called(snap).Error(0)
}

func (m *mockStore) BulkInsertRecords(ctx context.Context, snapshotID string, records []api.PriceRecord) error {
	return m.Called(snapshotID, len(records)).Error(0)
}

func vmRecords(n int) []api.PriceRecord {
	out := make([]api.PriceRecord, n)
	for i := range out {
		out[i] = api.PriceRecord{ServiceName: "Virtual Machines", SKUName: "D2s v3", Region: "eastus", UnitPrice: float64(i) / 100}
	}
	return out
}

func TestIngestPricing(t *testing.T) {
	src := &staticSource{records: vmRecords(3)}
	store := &mockStore{}
	hash := clickhouse.HashRecords(src.records)
	store.On("FindSnapshotByHash", "Virtual Machines", "eastus", hash).Return(nil, nil)
	store.On("BulkInsertRecords", mock.AnythingOfType("string"), 3).Return(nil).Once()
	store.On("CreateSnapshot", mock.MatchedBy(func(s *api.PriceSnapshot) bool {
		return s.Hash == hash && s.RecordCount == 3 && s.Source == "azure-retail"
	})).Return(nil)

	res, err := NewClickHouseAdapter(src, store).IngestPricing(context.Background(), IngestionInput{
		ServiceName: "Virtual Machines",
		Region:      "eastus",
		SKU:         "D2s",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Unchanged)
	assert.Equal(t, 3, res.RecordCount)
	assert.NotEmpty(t, res.SnapshotID)
	assert.Equal(t, "D2s", src.queries[0].SKU)
	store.AssertExpectations(t)
}

func TestIngestPricingUnchanged(t *testing.T) {
	src := &staticSource{records: vmRecords(2)}
	store := &mockStore{}
	store.On("FindSnapshotByHash", "Virtual Machines", "eastus", mock.Anything).
		Return(&api.PriceSnapshot{ID: "existing"}, nil)

	res, err := NewClickHouseAdapter(src, store).IngestPricing(context.Background(), IngestionInput{ServiceName: "Virtual Machines", Region: "eastus"})
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Equal(t, "existing", res.SnapshotID)
	store.AssertNotCalled(t, "CreateSnapshot", mock.Anything)
}

func TestIngestPricingBatches(t *testing.T) {
	src := &staticSource{records: vmRecords(BatchSize + 5)}
	store := &mockStore{}
	store.On("FindSnapshotByHash", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	store.On("BulkInsertRecords", mock.Anything, BatchSize).Return(nil).Once()
	store.On("BulkInsertRecords", mock.Anything, 5).Return(nil).Once()
	store.On("CreateSnapshot", mock.Anything).Return(nil)

	res, err := NewClickHouseAdapter(src, store).IngestPricing(context.Background(), IngestionInput{ServiceName: "Virtual Machines", Region: "eastus"})
	require.NoError(t, err)
	assert.Equal(t, BatchSize+5, res.RecordCount)
	store.AssertExpectations(t)
}

func TestIngestPricingFailures(t *testing.T) {
	ctx := context.Background()

	_, err := NewClickHouseAdapter(&staticSource{}, &mockStore{}).IngestPricing(ctx, IngestionInput{Region: "eastus"})
	assert.Error(t, err)

	res, err := NewClickHouseAdapter(&staticSource{}, &mockStore{}).IngestPricing(ctx, IngestionInput{ServiceName: "Virtual Machines", Region: "eastus"})
	assert.Error(t, err)
	assert.Contains(t, res.ErrorMessage, "no prices found")

	store := &mockStore{}
	store.On("FindSnapshotByHash", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	store.On("BulkInsertRecords", mock.Anything, 1).Return(errors.New("too many parts"))
	res, err = NewClickHouseAdapter(&staticSource{records: vmRecords(1)}, store).IngestPricing(ctx, IngestionInput{ServiceName: "Virtual Machines", Region: "eastus"})
	assert.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "too many parts")
	store.AssertNotCalled(t, "CreateSnapshot", mock.Anything)
}
