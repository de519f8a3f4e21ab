// Package billing resolves unit prices for architecture line items.
// Each service is classified into a Kind, and each Kind has exactly one
// lookup strategy against the retail price catalog.
package billing

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"se-assistant/internal/pricing"
	"se-assistant/pkg/api"
	seerrors "se-assistant/pkg/errors"
	"se-assistant/pkg/units"
)

// Kind identifies the lookup strategy for a service.
type Kind int

const (
	KindGeneric Kind = iota
	KindAppService
	KindSQL
	KindVirtualMachine
)

func (k Kind) String() string {
	switch k {
	case KindAppService:
		return "app_service"
	case KindSQL:
		return "sql"
	case KindVirtualMachine:
		return "virtual_machine"
	default:
		return "generic"
	}
}

// classifier order matters: "Azure SQL Database on App Service" is App Service.
var classifiers = []struct {
	kind    Kind
	needles []string
}{
	{KindAppService, []string{"App Service"}},
	{KindSQL, []string{"SQL"}},
	{KindVirtualMachine, []string{"Virtual Machine", "VM"}},
}

// Classify maps a service name to its Kind. Matching is case-sensitive
// substring containment.
func Classify(serviceName string) Kind {
	for _, c := range classifiers {
		for _, n := range c.needles {
			if strings.Contains(serviceName, n) {
				return c.kind
			}
		}
	}
	return KindGeneric
}

// Lookup is the price catalog surface the resolver needs. Implementations
// report misses as "not found" and never return transport errors.
type Lookup interface {
	Search(ctx context.Context, q pricing.Query) []api.PriceRecord
	VMPrice(ctx context.Context, size, region string) (api.PriceRecord, bool)
	AppServicePrice(ctx context.Context, sku, region string) (api.PriceRecord, bool)
	SQLPrice(ctx context.Context, sku, region string) (api.PriceRecord, bool)
	Close() error
}

// Resolver turns architecture services into price quotes.
type Resolver struct {
	lookup Lookup
	logger zerolog.Logger
}

// NewResolver creates a resolver over lookup. The resolver does not own
// lookup and never closes it.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{
		lookup: lookup,
		logger: log.Logger.With().Str("component", "billing").Logger(),
	}
}

// ResolveAll quotes every service one at a time, in input order. A miss
// yields a fallback quote; resolution never fails.
func (r *Resolver) ResolveAll(ctx context.Context, services []api.AzureService) []api.PriceQuote {
	quotes := make([]api.PriceQuote, 0, len(services))
	for _, svc := range services {
		quotes = append(quotes, r.Resolve(ctx, svc))
	}
	return quotes
}

// Resolve quotes a single service.
func (r *Resolver) Resolve(ctx context.Context, svc api.AzureService) api.PriceQuote {
	quote := api.PriceQuote{
		ServiceName: svc.ServiceName,
		SKU:         svc.SKU,
		Quantity:    svc.Quantity,
		Region:      svc.Region,
		Purpose:     svc.Purpose,
	}
	if quote.Quantity < 1 {
		quote.Quantity = 1
	}

	kind := Classify(svc.ServiceName)
	record, ok := r.find(ctx, kind, svc)
	if !ok {
		r.logger.Warn().
			Err(seerrors.NewPriceNotFoundError(svc.ServiceName, svc.SKU, svc.Region)).
			Str("kind", kind.String()).
			Msg("using fallback unit price")
		quote.UnitPrice = units.FallbackUnitPrice.InexactFloat64()
		quote.UnitOfMeasure = units.UnitHour
		quote.Fallback = true
		return quote
	}

	quote.UnitPrice = record.UnitPrice
	quote.UnitOfMeasure = record.UnitOfMeasure
	if quote.UnitOfMeasure == "" {
		quote.UnitOfMeasure = units.UnitHour
	}
	return quote
}

func (r *Resolver) find(ctx context.Context, kind Kind, svc api.AzureService) (rec api.PriceRecord, ok bool) {
	// A lookup implementation that panics counts as a miss.
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Str("service", svc.ServiceName).Msg("price lookup panicked")
			rec, ok = api.PriceRecord{}, false
		}
	}()

	switch kind {
	case KindAppService:
		return r.lookup.AppServicePrice(ctx, svc.SKU, svc.Region)
	case KindSQL:
		return r.lookup.SQLPrice(ctx, svc.SKU, svc.Region)
	case KindVirtualMachine:
		return r.lookup.VMPrice(ctx, svc.SKU, svc.Region)
	default:
		records := r.lookup.Search(ctx, pricing.Query{
			ServiceName: svc.ServiceName,
			Region:      svc.Region,
			SKU:         svc.SKU,
		})
		if len(records) == 0 {
			return api.PriceRecord{}, false
		}
		return records[0], true
	}
}
