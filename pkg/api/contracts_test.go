package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecificationHelpers(t *testing.T) {
	var spec SpecificationDocument
	spec.AddRequirement(Requirement{ID: "REQ-001", Description: "Host site", Priority: PriorityHigh})
	spec.AddRequirement(Requirement{ID: "REQ-002", Description: "Nightly backup", Priority: PriorityLow})
	spec.AddRequirement(Requirement{ID: "REQ-003", Description: "SSO login", Priority: PriorityHigh})

	require.Len(t, spec.Requirements, 3)
	assert.Equal(t, "REQ-003", spec.Requirements[2].ID)
	assert.Equal(t, []string{"Host site", "Nightly backup", "SSO login"}, spec.RequirementTexts())

	high := spec.RequirementsByPriority(PriorityHigh)
	require.Len(t, high, 2)
	assert.Equal(t, "REQ-001", high[0].ID)
	assert.Equal(t, "REQ-003", high[1].ID)
	assert.Empty(t, spec.RequirementsByPriority(PriorityMedium))

	assert.NotNil(t, (&SpecificationDocument{}).RequirementTexts())
}

func TestServicesByType(t *testing.T) {
	var arch ArchitectureDocument
	arch.AddService(AzureService{ServiceName: "Azure SQL Database", SKU: "S1"})
	arch.AddService(AzureService{ServiceName: "Azure App Service", SKU: "B1"})
	arch.AddService(AzureService{ServiceName: "Azure Database for PostgreSQL", SKU: "B1ms"})

	dbs := arch.ServicesByType("database")
	require.Len(t, dbs, 2)
	assert.Equal(t, "Azure SQL Database", dbs[0].ServiceName)
	assert.Equal(t, "Azure Database for PostgreSQL", dbs[1].ServiceName)

	assert.Len(t, arch.ServicesByType("APP SERVICE"), 1)
	assert.Empty(t, arch.ServicesByType("Kubernetes"))
}

func TestAddCostEstimateTotals(t *testing.T) {
	var est PricingEstimate
	est.AddCostEstimate(CostEstimate{ServiceName: "Azure Blob Storage", MonthlyCost: 0.1, AnnualCost: 1.2})
	est.AddCostEstimate(CostEstimate{ServiceName: "Azure DNS", MonthlyCost: 0.2, AnnualCost: 2.4})

	require.Len(t, est.CostEstimates, 2)
	assert.Equal(t, "Azure DNS", est.CostEstimates[1].ServiceName)
	// Running totals are exact decimal sums, not float accumulations.
	assert.Equal(t, 0.3, est.TotalMonthlyCost)
	assert.Equal(t, 3.6, est.TotalAnnualCost)
}

func TestCostBreakdown(t *testing.T) {
	est := PricingEstimate{CostEstimates: []CostEstimate{
		{ServiceName: "Azure App Service", MonthlyCost: 54.75},
		{ServiceName: "Azure SQL Database", MonthlyCost: 0.1},
		{ServiceName: "Azure SQL Database", MonthlyCost: 0.2},
	}}
	assert.Equal(t, map[string]float64{
		"Azure App Service":  54.75,
		"Azure SQL Database": 0.3,
	}, est.CostBreakdown())

	assert.Empty(t, (&PricingEstimate{}).CostBreakdown())
}

func TestFallbackQuotes(t *testing.T) {
	est := PricingEstimate{Quotes: []PriceQuote{{Fallback: true}, {}, {Fallback: true}}}
	assert.Equal(t, 2, est.FallbackQuotes())
	assert.Equal(t, 0, (&PricingEstimate{}).FallbackQuotes())
}

func TestNonNil(t *testing.T) {
	var missing []string
	assert.Equal(t, []string{}, NonNil(missing))
	assert.Equal(t, []string{"a"}, NonNil([]string{"a"}))
}
