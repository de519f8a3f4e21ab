package pricing

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"se-assistant/pkg/api"
	"se-assistant/pkg/units"
)

// DefaultCacheTTL is how long a retail search result is reused.
const DefaultCacheTTL = 6 * time.Hour

// Searcher is the query half of a price client.
type Searcher interface {
	Search(ctx context.Context, q Query) []api.PriceRecord
	Close() error
}

// Cache holds search results shared across runs. It is safe for concurrent
// use.
type Cache struct {
	items *gocache.Cache
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{items: gocache.New(ttl, 2*ttl)}
}

// Len reports the number of cached entries, expired ones included.
func (c *Cache) Len() int { return c.items.ItemCount() }

func (c *Cache) get(q Query) ([]api.PriceRecord, bool) {
	v, ok := c.items.Get(cacheKey(q))
	if !ok {
		return nil, false
	}
	records, ok := v.([]api.PriceRecord)
	return records, ok
}

func (c *Cache) put(q Query, records []api.PriceRecord) {
	c.items.SetDefault(cacheKey(q), records)
}

func cacheKey(q Query) string {
	currency := q.Currency
	if currency == "" {
		currency = units.DefaultCurrency
	}
	return strings.Join([]string{q.ServiceName, q.Region, q.SKU, currency}, "\x00")
}

// CachedClient answers searches from a shared Cache before asking the
// wrapped client. Empty results are not cached so a transient outage does
// not pin a miss.
type CachedClient struct {
	inner Searcher
	cache *Cache
}

// NewCachedClient wraps inner with cache. Close closes inner.
func NewCachedClient(inner Searcher, cache *Cache) *CachedClient {
	return &CachedClient{inner: inner, cache: cache}
}

// Search returns cached records for q, fetching them on a miss.
func (c *CachedClient) Search(ctx context.Context, q Query) []api.PriceRecord {
	if records, ok := c.cache.get(q); ok {
		return records
	}
	records := c.inner.Search(ctx, q)
	if len(records) > 0 {
		c.cache.put(q, records)
	}
	return records
}

// VMPrice returns the first Virtual Machines record for size in region.
func (c *CachedClient) VMPrice(ctx context.Context, size, region string) (api.PriceRecord, bool) {
	return first(c.Search(ctx, Query{ServiceName: ServiceVirtualMachines, Region: region, SKU: size}))
}

// AppServicePrice returns the first App Service record for sku in region.
func (c *CachedClient) AppServicePrice(ctx context.Context, sku, region string) (api.PriceRecord, bool) {
	return first(c.Search(ctx, Query{ServiceName: ServiceAppService, Region: region, SKU: sku}))
}

// SQLPrice returns the first SQL Database record for sku in region.
func (c *CachedClient) SQLPrice(ctx context.Context, sku, region string) (api.PriceRecord, bool) {
	return first(c.Search(ctx, Query{ServiceName: ServiceSQLDatabase, Region: region, SKU: sku}))
}

// Close closes the wrapped client.
func (c *CachedClient) Close() error {
	return c.inner.Close()
}
