package pipeline

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"se-assistant/pkg/api"
)

func reportResult() *Result {
	reqs := make([]api.Requirement, 0, 7)
	for i := 1; i <= 7; i++ {
		reqs = append(reqs, api.Requirement{
			ID:          fmt.Sprintf("REQ-%03d", i),
			Description: fmt.Sprintf("Requirement %d", i),
			Category:    api.CategoryFunctional,
			Priority:    api.PriorityHigh,
		})
	}
	return &Result{
		Success: true,
		Specification: &api.SpecificationDocument{
			ProjectTitle:        "Shop",
			Summary:             "Online shop",
			Requirements:        reqs,
			ClarifyingQuestions: []string{"Which payment provider?"},
		},
		Architecture: &api.ArchitectureDocument{
			ArchitecturePattern: "Web Application",
			Services: []api.AzureService{
				{ServiceName: "Azure App Service", SKU: "P1v3", Quantity: 2, Region: "eastus", Purpose: "Storefront"},
			},
			Networking: []string{"VNet", "Front Door"},
			Monitoring: []string{"Application Insights"},
		},
		Pricing: &api.PricingEstimate{
			Region:       "eastus",
			EstimateDate: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
			CostEstimates: []api.CostEstimate{
				{ServiceName: "Azure App Service", SKU: "P1v3", Quantity: 2, MonthlyCost: 292, AnnualCost: 3504},
			},
			TotalMonthlyCost:     292,
			TotalAnnualCost:      3504.5,
			SavingsOpportunities: []string{"Reserve capacity"},
			Quotes:               []api.PriceQuote{{ServiceName: "Azure App Service", SKU: "P1v3", UnitPrice: 0.2, UnitOfMeasure: "1 Hour"}},
		},
	}
}

func TestFormatReport(t *testing.T) {
	report := FormatReport(reportResult())
	rule := strings.Repeat("=", 80)

	assert.True(t, strings.HasPrefix(report, "\n"+rule+"\nSE SPECIALIST ARCHITECTURE & PRICING REPORT\n"+rule+"\n\n📋 SPECIFICATION\n"))
	assert.Contains(t, report, "Project: Shop\nSummary: Online shop\n\nRequirements (7):\n")
	assert.Contains(t, report, "  [HIGH] Requirement 5\n  ... and 2 more\n")
	assert.NotContains(t, report, "Requirement 6")
	assert.Contains(t, report, "\nClarifying Questions:\n  • Which payment provider?\n")

	assert.Contains(t, report, "\n🏗️ ARCHITECTURE\n"+strings.Repeat("-", 80)+"\nPattern: Web Application\n\nServices:\n")
	assert.Contains(t, report, "  • Azure App Service (P1v3) x2\n    Purpose: Storefront\n")
	assert.Contains(t, report, "\nNetworking: VNet, Front Door\nMonitoring: Application Insights\n")
	assert.NotContains(t, report, "Security:")

	assert.Contains(t, report, "Region: eastus\nEstimate Date: 2026-02-03\n\nCost Breakdown:\n")
	assert.Contains(t, report, "    Monthly: $292.00 | Annual: $3504.00\n")
	assert.Contains(t, report, "TOTAL Monthly: $292.00\nTOTAL Annual:  $3504.50\n"+strings.Repeat("─", 80)+"\n")
	assert.Contains(t, report, "💡 Cost Optimization Opportunities:\n  • Reserve capacity\n")

	assert.True(t, strings.HasSuffix(report, rule+"\nThis report is ready for SE review before presenting to customer.\n"+rule+"\n"))
}

func TestFormatReportFewRequirements(t *testing.T) {
	r := reportResult()
	r.Specification.Requirements = r.Specification.Requirements[:5]
	r.Specification.ClarifyingQuestions = nil

	report := FormatReport(r)
	assert.NotContains(t, report, "more")
	assert.NotContains(t, report, "Clarifying Questions")
}

func TestFormatReportFailure(t *testing.T) {
	r := reportResult()
	r.Success = false
	r.Error = "run cancelled"

	assert.Equal(t, "ERROR: run cancelled", FormatReport(r))
	assert.Equal(t, "ERROR: Unknown error", FormatReport(&Result{}))
}

func TestFormatMarkdown(t *testing.T) {
	r := reportResult()
	r.Pricing.Quotes = append(r.Pricing.Quotes, api.PriceQuote{ServiceName: "Azure Front Door", SKU: "Std", UnitPrice: 0.1, UnitOfMeasure: "1 Hour", Fallback: true})
	r.StageErrors = []StageError{{Stage: "architecture", Message: "timeout"}}
	md := FormatMarkdown(r)

	assert.Contains(t, md, "# SE Specialist Architecture & Pricing Report")
	assert.Contains(t, md, "| REQ-007 | high | functional | Requirement 7 |")
	assert.Contains(t, md, "| Azure App Service | P1v3 | 2 | eastus | Storefront |")
	assert.Contains(t, md, "**Priorities:** 7 high, 0 medium, 0 low")
	assert.Contains(t, md, "**Total Monthly:** $292.00")
	assert.NotContains(t, md, "Monthly Cost Share", "a single service has no share table")
	assert.Contains(t, md, "| Azure Front Door | Std | $0.1000 per 1 Hour | default estimate |")
	assert.Contains(t, md, "## Degraded Stages")

	r.Success = false
	r.Error = "boom"
	assert.Equal(t, "**ERROR:** boom\n", FormatMarkdown(r))
}

func TestFormatMarkdownCostShare(t *testing.T) {
	r := reportResult()
	r.Pricing.CostEstimates = []api.CostEstimate{
		{ServiceName: "Azure SQL Database", SKU: "S0", Quantity: 1, MonthlyCost: 15},
		{ServiceName: "Azure App Service", SKU: "P1v3", Quantity: 2, MonthlyCost: 292},
		{ServiceName: "Azure SQL Database", SKU: "S0", Quantity: 1, MonthlyCost: 15},
	}
	r.Pricing.TotalMonthlyCost = 322
	md := FormatMarkdown(r)

	assert.Contains(t, md, "### Monthly Cost Share\n\n- Azure App Service: $292.00 (91%)\n- Azure SQL Database: $30.00 (9%)\n")
}
