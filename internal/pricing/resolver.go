// Package pricing looks up unit prices in public cloud retail catalogs.
package pricing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"se-assistant/pkg/api"
	"se-assistant/pkg/units"
)

const (
	DefaultBaseURL    = "https://prices.azure.com/api/retail/prices"
	DefaultAPIVersion = "2023-01-01-preview"
	DefaultTimeout    = 30 * time.Second

	// MaxItems is the number of catalog items consumed per query.
	MaxItems = 50
)

// Service names used by the convenience lookups.
const (
	ServiceVirtualMachines = "Virtual Machines"
	ServiceAppService      = "Azure App Service"
	ServiceSQLDatabase     = "SQL Database"
)

// Query filters a retail price search. Empty fields are not filtered on.
type Query struct {
	ServiceName string
	Region      string
	SKU         string
	Currency    string
}

// Filter renders the OData $filter expression for the query.
func (q Query) Filter() string {
	currency := q.Currency
	if currency == "" {
		currency = units.DefaultCurrency
	}

	var parts []string
	if q.ServiceName != "" {
		parts = append(parts, fmt.Sprintf("serviceName eq '%s'", odataQuote(q.ServiceName)))
	}
	if q.Region != "" {
		parts = append(parts, fmt.Sprintf("armRegionName eq '%s'", odataQuote(q.Region)))
	}
	if q.SKU != "" {
		parts = append(parts, fmt.Sprintf("contains(skuName, '%s')", odataQuote(q.SKU)))
	}
	parts = append(parts,
		fmt.Sprintf("currencyCode eq '%s'", odataQuote(currency)),
		"priceType eq 'Consumption'",
	)
	return strings.Join(parts, " and ")
}

func odataQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Config holds retail client configuration.
type Config struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
}

// DefaultConfig returns the public Azure Retail Prices endpoint settings.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    DefaultBaseURL,
		APIVersion: DefaultAPIVersion,
		Timeout:    DefaultTimeout,
	}
}

// Client queries the Azure Retail Prices API. Each client owns its
// connection pool; Close releases it and is safe to call more than once.
type Client struct {
	cfg       *Config
	http      *http.Client
	logger    zerolog.Logger
	closeOnce sync.Once
}

// NewClient creates a retail price client. cfg is copied, so one Config
// may be shared by many clients.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	own := *cfg
	if own.BaseURL == "" {
		own.BaseURL = DefaultBaseURL
	}
	if own.APIVersion == "" {
		own.APIVersion = DefaultAPIVersion
	}
	if own.Timeout <= 0 {
		own.Timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Client{
		cfg: &own,
		http: &http.Client{
			Timeout:   own.Timeout,
			Transport: transport,
		},
		logger: log.Logger.With().Str("component", "retail-prices").Logger(),
	}
}

// WithLogger replaces the client's logger.
func (c *Client) WithLogger(logger zerolog.Logger) *Client {
	c.logger = logger
	return c
}

// Search returns up to MaxItems price records matching q. Transport, HTTP
// and decoding failures are logged and yield an empty result.
func (c *Client) Search(ctx context.Context, q Query) []api.PriceRecord {
	params := url.Values{}
	params.Set("$filter", q.Filter())
	params.Set("api-version", c.cfg.APIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to build price request")
		return []api.PriceRecord{}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("filter", q.Filter()).Msg("price request failed")
		return []api.PriceRecord{}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn().Int("status", resp.StatusCode).Str("filter", q.Filter()).Msg("price request returned error status")
		return []api.PriceRecord{}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read price response")
		return []api.PriceRecord{}
	}
	if !gjson.ValidBytes(body) {
		c.logger.Warn().Msg("price response is not valid JSON")
		return []api.PriceRecord{}
	}

	return c.parseItems(gjson.GetBytes(body, "Items"))
}

func (c *Client) parseItems(items gjson.Result) []api.PriceRecord {
	records := make([]api.PriceRecord, 0)
	if !items.IsArray() {
		return records
	}

	for i, item := range items.Array() {
		if i >= MaxItems {
			break
		}
		rec, err := parseItem(item)
		if err != nil {
			c.logger.Warn().Err(err).Int("index", i).Msg("skipping unparsable price item")
			continue
		}
		records = append(records, rec)
	}
	return records
}

func parseItem(item gjson.Result) (api.PriceRecord, error) {
	if !item.IsObject() {
		return api.PriceRecord{}, fmt.Errorf("item is %s, not an object", item.Type)
	}

	unitPrice, err := numberField(item, "unitPrice")
	if err != nil {
		return api.PriceRecord{}, err
	}
	retailPrice, err := numberField(item, "retailPrice")
	if err != nil {
		return api.PriceRecord{}, err
	}

	rec := api.PriceRecord{
		ServiceName:   item.Get("serviceName").String(),
		SKUName:       item.Get("skuName").String(),
		Region:        item.Get("armRegionName").String(),
		UnitPrice:     unitPrice,
		UnitOfMeasure: item.Get("unitOfMeasure").String(),
		RetailPrice:   retailPrice,
		CurrencyCode:  item.Get("currencyCode").String(),
		ProductName:   item.Get("productName").String(),
		MeterName:     item.Get("meterName").String(),
	}
	if rec.CurrencyCode == "" {
		rec.CurrencyCode = units.DefaultCurrency
	}
	if tier := item.Get("tierMinimumUnits"); tier.Exists() && tier.Type == gjson.Number {
		v := tier.Float()
		rec.TierMinimumUnits = &v
	}
	return rec, nil
}

// numberField reads a numeric field; absent and null read as zero.
func numberField(item gjson.Result, name string) (float64, error) {
	v := item.Get(name)
	switch v.Type {
	case gjson.Null:
		return 0, nil
	case gjson.Number:
		return v.Float(), nil
	default:
		return 0, fmt.Errorf("field %s is not numeric: %s", name, v.Raw)
	}
}

// VMPrice returns the first Virtual Machines record for size in region.
func (c *Client) VMPrice(ctx context.Context, size, region string) (api.PriceRecord, bool) {
	return first(c.Search(ctx, Query{ServiceName: ServiceVirtualMachines, Region: region, SKU: size}))
}

// AppServicePrice returns the first App Service record for sku in region.
func (c *Client) AppServicePrice(ctx context.Context, sku, region string) (api.PriceRecord, bool) {
	return first(c.Search(ctx, Query{ServiceName: ServiceAppService, Region: region, SKU: sku}))
}

// SQLPrice returns the first SQL Database record for sku in region.
func (c *Client) SQLPrice(ctx context.Context, sku, region string) (api.PriceRecord, bool) {
	return first(c.Search(ctx, Query{ServiceName: ServiceSQLDatabase, Region: region, SKU: sku}))
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.http.CloseIdleConnections()
	})
	return nil
}

func first(records []api.PriceRecord) (api.PriceRecord, bool) {
	if len(records) == 0 {
		return api.PriceRecord{}, false
	}
	return records[0], true
}
