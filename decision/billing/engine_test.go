package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"se-assistant/internal/pricing"
	"se-assistant/pkg/api"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) Search(ctx context.Context, q pricing.Query) []api.PriceRecord {
	args := m.Called(q)
	out, _ := args.Get(0).([]api.PriceRecord)
	return out
}

func (m *mockLookup) VMPrice(ctx context.Context, size, region string) (api.PriceRecord, bool) {
	args := m.Called(size, region)
	return args.Get(0).(api.PriceRecord), args.Bool(1)
}

func (m *mockLookup) AppServicePrice(ctx context.Context, sku, region string) (api.PriceRecord, bool) {
	args := m.Called(sku, region)
	return args.Get(0).(api.PriceRecord), args.Bool(1)
}

func (m *mockLookup) SQLPrice(ctx context.Context, sku, region string) (api.PriceRecord, bool) {
	args := m.Called(sku, region)
	return args.Get(0).(api.PriceRecord), args.Bool(1)
}

func (m *mockLookup) Close() error { return nil }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"Azure App Service", KindAppService},
		{"Azure SQL Database", KindSQL},
		{"Azure Virtual Machines", KindVirtualMachine},
		{"Jumpbox VM", KindVirtualMachine},
		{"Azure Cosmos DB", KindGeneric},
		{"Azure API Management", KindGeneric},
		{"SQL on App Service", KindAppService},
		{"azure sql database", KindGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.name))
		})
	}
}

func TestResolveDispatchesByKind(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("AppServicePrice", "P1v3", "eastus").
		Return(api.PriceRecord{UnitPrice: 0.2, UnitOfMeasure: "1 Hour"}, true)
	lookup.On("SQLPrice", "S1", "eastus").
		Return(api.PriceRecord{UnitPrice: 0.0202, UnitOfMeasure: "1/Day"}, true)
	lookup.On("VMPrice", "D2s v5", "westus").
		Return(api.PriceRecord{}, false)
	lookup.On("Search", pricing.Query{ServiceName: "Azure Cosmos DB", Region: "eastus", SKU: "Serverless"}).
		Return([]api.PriceRecord{
			{UnitPrice: 0.25, UnitOfMeasure: "1M"},
			{UnitPrice: 9.99, UnitOfMeasure: "1M"},
		})

	r := NewResolver(lookup)
	quotes := r.ResolveAll(context.Background(), []api.AzureService{
		{ServiceName: "Azure App Service", SKU: "P1v3", Quantity: 2, Region: "eastus"},
		{ServiceName: "Azure SQL Database", SKU: "S1", Quantity: 1, Region: "eastus"},
		{ServiceName: "Azure Virtual Machines", SKU: "D2s v5", Quantity: 0, Region: "westus"},
		{ServiceName: "Azure Cosmos DB", SKU: "Serverless", Quantity: 1, Region: "eastus"},
	})
	lookup.AssertExpectations(t)

	require.Len(t, quotes, 4)
	assert.Equal(t, "Azure App Service", quotes[0].ServiceName)
	assert.InDelta(t, 0.2, quotes[0].UnitPrice, 1e-9)
	assert.Equal(t, 2, quotes[0].Quantity)
	assert.False(t, quotes[0].Fallback)

	assert.Equal(t, "1/Day", quotes[1].UnitOfMeasure)

	assert.True(t, quotes[2].Fallback)
	assert.InDelta(t, 0.10, quotes[2].UnitPrice, 1e-9)
	assert.Equal(t, "1 Hour", quotes[2].UnitOfMeasure)
	assert.Equal(t, 1, quotes[2].Quantity)

	assert.InDelta(t, 0.25, quotes[3].UnitPrice, 1e-9, "first search result wins")
}

func TestResolveGenericMiss(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("Search", mock.Anything).Return([]api.PriceRecord{})

	q := NewResolver(lookup).Resolve(context.Background(), api.AzureService{ServiceName: "Azure Front Door", SKU: "Standard", Quantity: 1, Region: "eastus"})
	assert.True(t, q.Fallback)
	assert.InDelta(t, 0.10, q.UnitPrice, 1e-9)
}

type panickyLookup struct{ mockLookup }

func (p *panickyLookup) SQLPrice(ctx context.Context, sku, region string) (api.PriceRecord, bool) {
	panic("boom")
}

func TestResolveRecoversLookupPanic(t *testing.T) {
	q := NewResolver(&panickyLookup{}).Resolve(context.Background(), api.AzureService{ServiceName: "Azure SQL Database", SKU: "S0", Quantity: 1})
	assert.True(t, q.Fallback)
	assert.Equal(t, "1 Hour", q.UnitOfMeasure)
}

func TestResolveAllEmpty(t *testing.T) {
	quotes := NewResolver(&mockLookup{}).ResolveAll(context.Background(), nil)
	assert.NotNil(t, quotes)
	assert.Empty(t, quotes)
}
