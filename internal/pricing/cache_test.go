package pricing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"se-assistant/pkg/api"
)

type countingSearcher struct {
	calls   atomic.Int32
	closed  atomic.Int32
	records []api.PriceRecord
}

func (s *countingSearcher) Search(context.Context, Query) []api.PriceRecord {
	s.calls.Add(1)
	return s.records
}

func (s *countingSearcher) Close() error {
	s.closed.Add(1)
	return nil
}

func TestCachedClientReusesResults(t *testing.T) {
	inner := &countingSearcher{records: []api.PriceRecord{{ServiceName: ServiceAppService, SKUName: "B1", UnitPrice: 0.075}}}
	cache := NewCache(time.Minute)
	ctx := context.Background()

	first := NewCachedClient(inner, cache)
	rec, ok := first.AppServicePrice(ctx, "B1", "eastus")
	assert.True(t, ok)
	assert.Equal(t, 0.075, rec.UnitPrice)

	second := NewCachedClient(inner, cache)
	_, ok = second.AppServicePrice(ctx, "B1", "eastus")
	assert.True(t, ok)
	assert.Equal(t, int32(1), inner.calls.Load(), "second client is served from the shared cache")
	assert.Equal(t, 1, cache.Len())

	_, _ = second.AppServicePrice(ctx, "B1", "westus")
	assert.Equal(t, int32(2), inner.calls.Load(), "region is part of the key")

	assert.NoError(t, first.Close())
	assert.Equal(t, int32(1), inner.closed.Load())
}

func TestCachedClientSkipsEmptyResults(t *testing.T) {
	inner := &countingSearcher{}
	c := NewCachedClient(inner, NewCache(0))

	_, ok := c.VMPrice(context.Background(), "D2s v3", "eastus")
	assert.False(t, ok)
	_, ok = c.VMPrice(context.Background(), "D2s v3", "eastus")
	assert.False(t, ok)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCacheKeyDefaultsCurrency(t *testing.T) {
	assert.Equal(t, cacheKey(Query{ServiceName: "x"}), cacheKey(Query{ServiceName: "x", Currency: "USD"}))
	assert.NotEqual(t, cacheKey(Query{ServiceName: "x"}), cacheKey(Query{ServiceName: "x", Currency: "EUR"}))
}

func TestCachedClientConcurrent(t *testing.T) {
	inner := &countingSearcher{records: []api.PriceRecord{{ServiceName: ServiceSQLDatabase}}}
	cache := NewCache(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := NewCachedClient(inner, cache).SQLPrice(context.Background(), "S0", "eastus")
			assert.True(t, ok)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, inner.calls.Load(), int32(8))
}
