// Package estimation prices an architecture: unit prices come from the
// retail catalog, totals and savings advice come from the model.
package estimation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"se-assistant/decision/billing"
	"se-assistant/internal/llm"
	"se-assistant/pkg/api"
	seerrors "se-assistant/pkg/errors"
	"se-assistant/pkg/units"
)

// StageName identifies this stage in errors and logs.
const StageName = "pricing"

// NoServicesAssumption is recorded when there is nothing to price.
const NoServicesAssumption = "No services to price"

const systemPrompt = `You are an expert Azure Cost Optimization Specialist.

Your role is to:
1. Calculate accurate pricing estimates for Azure architectures
2. Provide detailed cost breakdowns
3. Identify cost optimization opportunities
4. Suggest reserved instances or savings plans where applicable
5. Consider regional pricing differences

When calculating costs:
- Use actual Azure pricing data provided
- Calculate monthly costs based on 730 hours (24/7 operation)
- Consider scaling requirements
- Include all components (compute, storage, networking, etc.)
- Be transparent about assumptions

Output Format:
Return a JSON object with this structure:
{
  "project_title": "Project name",
  "region": "eastus",
  "cost_estimates": [
    {
      "service_name": "Azure App Service",
      "sku": "Standard_S1",
      "quantity": 2,
      "hours_per_month": 730,
      "unit_price": 0.10,
      "monthly_cost": 146.0,
      "annual_cost": 1752.0,
      "region": "eastus",
      "notes": ["Includes auto-scaling", "Consider reserved instances for 30% savings"]
    }
  ],
  "total_monthly_cost": 500.0,
  "total_annual_cost": 6000.0,
  "assumptions": ["24/7 operation", "Standard pricing tier", "No reserved instances"],
  "savings_opportunities": [
    "Save 30% with 1-year reserved instances",
    "Consider spot instances for dev/test workloads"
  ]
}

Provide actionable cost optimization recommendations.`

// LookupFactory creates a fresh price lookup for one pricing run. The stage
// owns what it returns and closes it before Price returns.
type LookupFactory func() billing.Lookup

// Engine is the pricing stage.
type Engine struct {
	client    llm.Client
	newLookup LookupFactory
	now       func() time.Time
	logger    zerolog.Logger
}

// NewEngine creates a pricing stage.
func NewEngine(client llm.Client, newLookup LookupFactory) *Engine {
	return &Engine{
		client:    client,
		newLookup: newLookup,
		now:       time.Now,
		logger:    log.Logger.With().Str("component", StageName).Logger(),
	}
}

// WithClock overrides the estimate timestamp source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// SystemPrompt returns the fixed instruction sent with every request.
func SystemPrompt() string { return systemPrompt }

// PromptRegion is the region named in the prompt: the first service's
// region, or the default.
func PromptRegion(arch *api.ArchitectureDocument) string {
	if len(arch.Services) > 0 && arch.Services[0].Region != "" {
		return arch.Services[0].Region
	}
	return api.DefaultRegion
}

// BuildPrompt renders the user prompt for arch and its resolved quotes.
func BuildPrompt(arch *api.ArchitectureDocument, quotes []api.PriceQuote) string {
	var b strings.Builder

	b.WriteString("Calculate the total cost estimate for the following Azure architecture:\n\n")
	fmt.Fprintf(&b, "Project: %s\n", arch.ProjectTitle)
	fmt.Fprintf(&b, "Architecture Pattern: %s\n", arch.ArchitecturePattern)
	fmt.Fprintf(&b, "Region: %s\n\n", PromptRegion(arch))

	b.WriteString("Services and Pricing:\n")
	for _, q := range quotes {
		fmt.Fprintf(&b, "- %s (%s): $%.4f per %s, Quantity: %d\n",
			q.ServiceName, q.SKU, q.UnitPrice, q.UnitOfMeasure, q.Quantity)
	}
	b.WriteString("\n")

	b.WriteString("Additional Context:\n")
	fmt.Fprintf(&b, "- Networking: %s\n", strings.Join(arch.Networking, ", "))
	fmt.Fprintf(&b, "- Security: %s\n", strings.Join(arch.Security, ", "))
	fmt.Fprintf(&b, "- Monitoring: %s\n\n", strings.Join(arch.Monitoring, ", "))

	b.WriteString("Calculate detailed monthly and annual costs. Generate the pricing estimate in the JSON format specified in your instructions.\n")
	b.WriteString("Include cost optimization recommendations and savings opportunities.\n")
	return b.String()
}

// Price resolves unit prices for every service, in order, then asks the
// model for the estimate. The lookup is closed exactly once on every path.
// On error the resolved quotes are still returned so a degraded estimate
// can carry them.
func (e *Engine) Price(ctx context.Context, arch *api.ArchitectureDocument) (*api.PricingEstimate, []api.PriceQuote, error) {
	lookup := e.newLookup()
	defer func() {
		if err := lookup.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("failed to close price lookup")
		}
	}()

	if len(arch.Services) == 0 {
		e.logger.Info().Msg("architecture has no services, skipping model call")
		return &api.PricingEstimate{
			ProjectTitle:         arch.ProjectTitle,
			EstimateDate:         e.now(),
			Region:               api.DefaultRegion,
			CostEstimates:        []api.CostEstimate{},
			Assumptions:          []string{NoServicesAssumption},
			SavingsOpportunities: []string{},
			Quotes:               []api.PriceQuote{},
		}, []api.PriceQuote{}, nil
	}

	e.logger.Info().Int("services", len(arch.Services)).Msg("resolving prices")
	quotes := billing.NewResolver(lookup).ResolveAll(ctx, arch.Services)

	if err := ctx.Err(); err != nil {
		return nil, quotes, seerrors.NewModelCallError(StageName, err)
	}

	text, err := e.client.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: BuildPrompt(arch, quotes),
	})
	if err != nil {
		return nil, quotes, seerrors.NewModelCallError(StageName, err)
	}
	e.logger.Debug().Str("response", llm.Preview(text, 500)).Msg("model response")

	est, err := Parse(text, arch)
	if err != nil {
		return nil, quotes, err
	}
	est.EstimateDate = e.now()
	est.Quotes = quotes

	e.logger.Info().
		Str("monthly", units.USD(est.TotalMonthlyCost)).
		Str("annual", units.USD(est.TotalAnnualCost)).
		Int("fallback_quotes", est.FallbackQuotes()).
		Msg("pricing estimate generated")
	return est, quotes, nil
}

type costWire struct {
	ServiceName   string    `json:"service_name"`
	SKU           string    `json:"sku"`
	Quantity      llm.Int   `json:"quantity"`
	HoursPerMonth llm.Int   `json:"hours_per_month"`
	UnitPrice     llm.Float `json:"unit_price"`
	MonthlyCost   llm.Float `json:"monthly_cost"`
	AnnualCost    llm.Float `json:"annual_cost"`
	Region        string    `json:"region"`
	Notes         []string  `json:"notes"`
}

type estimateWire struct {
	ProjectTitle         string     `json:"project_title"`
	Region               string     `json:"region"`
	CostEstimates        []costWire `json:"cost_estimates"`
	TotalMonthlyCost     llm.Float  `json:"total_monthly_cost"`
	TotalAnnualCost      llm.Float  `json:"total_annual_cost"`
	Assumptions          []string   `json:"assumptions"`
	SavingsOpportunities []string   `json:"savings_opportunities"`
}

// Parse converts a model response into an estimate. Totals are kept as the
// model reported them and are never recomputed from the lines. An annual
// figure the model omitted is filled in as twelve times the monthly figure.
func Parse(text string, arch *api.ArchitectureDocument) (*api.PricingEstimate, error) {
	wire, err := llm.Decode[estimateWire](StageName, text)
	if err != nil {
		return nil, err
	}

	est := &api.PricingEstimate{
		ProjectTitle:         strings.TrimSpace(wire.ProjectTitle),
		Region:               strings.TrimSpace(wire.Region),
		CostEstimates:        make([]api.CostEstimate, 0, len(wire.CostEstimates)),
		TotalMonthlyCost:     wire.TotalMonthlyCost.Value,
		Assumptions:          api.NonNil(wire.Assumptions),
		SavingsOpportunities: api.NonNil(wire.SavingsOpportunities),
	}
	if est.ProjectTitle == "" {
		est.ProjectTitle = arch.ProjectTitle
	}
	if est.Region == "" {
		est.Region = PromptRegion(arch)
	}
	if est.TotalMonthlyCost < 0 {
		return nil, malformed(fmt.Sprintf("total_monthly_cost is negative: %v", est.TotalMonthlyCost))
	}
	if wire.TotalAnnualCost.Set {
		est.TotalAnnualCost = wire.TotalAnnualCost.Value
	} else {
		est.TotalAnnualCost = units.AnnualFromMonthly(est.TotalMonthlyCost)
	}
	if est.TotalAnnualCost < 0 {
		return nil, malformed(fmt.Sprintf("total_annual_cost is negative: %v", est.TotalAnnualCost))
	}

	for i, w := range wire.CostEstimates {
		line, err := convertCost(i, w, est.Region)
		if err != nil {
			return nil, err
		}
		est.CostEstimates = append(est.CostEstimates, line)
	}
	return est, nil
}

func convertCost(i int, w costWire, region string) (api.CostEstimate, error) {
	line := api.CostEstimate{
		ServiceName:   strings.TrimSpace(w.ServiceName),
		SKU:           strings.TrimSpace(w.SKU),
		Quantity:      1,
		HoursPerMonth: units.HoursPerMonth,
		UnitPrice:     w.UnitPrice.Value,
		MonthlyCost:   w.MonthlyCost.Value,
		Region:        strings.TrimSpace(w.Region),
		Notes:         api.NonNil(w.Notes),
	}
	if line.ServiceName == "" {
		return line, malformed(fmt.Sprintf("cost estimate %d has no service_name", i+1))
	}
	if line.UnitPrice < 0 || line.MonthlyCost < 0 {
		return line, malformed(fmt.Sprintf("cost estimate for %s has a negative amount", line.ServiceName))
	}
	if w.Quantity.Set && w.Quantity.Value > 0 {
		line.Quantity = w.Quantity.Value
	}
	if w.HoursPerMonth.Set && w.HoursPerMonth.Value > 0 {
		line.HoursPerMonth = w.HoursPerMonth.Value
	}
	if line.Region == "" {
		line.Region = region
	}
	if w.AnnualCost.Set {
		line.AnnualCost = w.AnnualCost.Value
	} else {
		line.AnnualCost = units.AnnualFromMonthly(line.MonthlyCost)
	}
	return line, nil
}

func malformed(reason string) error {
	return seerrors.NewMalformedResponseError(StageName, reason, "", nil)
}

// Degraded is the zero-cost placeholder used when the stage fails. Quotes
// resolved before the failure are kept.
func Degraded(arch *api.ArchitectureDocument, quotes []api.PriceQuote, err error, now time.Time) *api.PricingEstimate {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	title := api.DefaultProjectTitle
	if arch != nil {
		title = arch.ProjectTitle
	}
	return &api.PricingEstimate{
		ProjectTitle:         title,
		EstimateDate:         now,
		Region:               api.DefaultRegion,
		CostEstimates:        []api.CostEstimate{},
		Assumptions:          []string{"Error occurred: " + msg},
		SavingsOpportunities: []string{},
		Quotes:               api.NonNil(quotes),
	}
}

// Now returns the engine's clock reading.
func (e *Engine) Now() time.Time { return e.now() }
