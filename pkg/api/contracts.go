// Package api defines the documents passed between pipeline stages.
package api

import (
	"time"

	"se-assistant/pkg/units"
)

// Category classifies a requirement.
type Category string

const (
	CategoryFunctional    Category = "functional"
	CategoryNonFunctional Category = "non-functional"
	CategoryTechnical     Category = "technical"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryFunctional, CategoryNonFunctional, CategoryTechnical:
		return true
	}
	return false
}

// Priority ranks a requirement.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// DefaultRegion is used whenever no region was stated.
const DefaultRegion = "eastus"

// DefaultProjectTitle is used when the model omits a title.
const DefaultProjectTitle = "Untitled Project"

// Requirement is a single extracted customer requirement.
type Requirement struct {
	ID                  string   `json:"requirement_id"`
	Description         string   `json:"description"`
	Category            Category `json:"category"`
	Priority            Priority `json:"priority"`
	ClarificationNeeded bool     `json:"clarification_needed"`
}

// SpecificationDocument is the output of the specification stage.
type SpecificationDocument struct {
	CustomerName        string        `json:"customer_name,omitempty"`
	ProjectTitle        string        `json:"project_title"`
	Summary             string        `json:"summary"`
	Requirements        []Requirement `json:"requirements"`
	ClarifyingQuestions []string      `json:"clarifying_questions"`
	Assumptions         []string      `json:"assumptions"`
	Constraints         []string      `json:"constraints"`
	TargetUsers         *int          `json:"target_users,omitempty"`
	TargetRegion        string        `json:"target_region"`
}

// AddRequirement appends a requirement. Only convenience builders use it.
func (s *SpecificationDocument) AddRequirement(r Requirement) {
	s.Requirements = append(s.Requirements, r)
}

// RequirementsByPriority returns requirements with the given priority, in order.
func (s *SpecificationDocument) RequirementsByPriority(p Priority) []Requirement {
	var out []Requirement
	for _, r := range s.Requirements {
		if r.Priority == p {
			out = append(out, r)
		}
	}
	return out
}

// RequirementTexts returns the descriptions of all requirements.
func (s *SpecificationDocument) RequirementTexts() []string {
	out := make([]string, 0, len(s.Requirements))
	for _, r := range s.Requirements {
		out = append(out, r.Description)
	}
	return out
}

// AzureService is one line item of the bill of materials.
type AzureService struct {
	ServiceName  string   `json:"service_name"`
	SKU          string   `json:"sku"`
	Quantity     int      `json:"quantity"`
	Region       string   `json:"region"`
	Purpose      string   `json:"purpose"`
	Dependencies []string `json:"dependencies"`
}

// ArchitectureDocument is the output of the architecture stage.
type ArchitectureDocument struct {
	ProjectTitle           string         `json:"project_title"`
	ArchitecturePattern    string         `json:"architecture_pattern"`
	Services               []AzureService `json:"services"`
	Networking             []string       `json:"networking"`
	Security               []string       `json:"security"`
	Monitoring             []string       `json:"monitoring"`
	DeploymentNotes        []string       `json:"deployment_notes"`
	AlternativesConsidered []string       `json:"alternatives_considered"`
}

// AddService appends a service. Only convenience builders use it.
func (a *ArchitectureDocument) AddService(s AzureService) {
	a.Services = append(a.Services, s)
}

// ServicesByType returns services whose name contains the given text.
func (a *ArchitectureDocument) ServicesByType(serviceType string) []AzureService {
	var out []AzureService
	for _, s := range a.Services {
		if containsFold(s.ServiceName, serviceType) {
			out = append(out, s)
		}
	}
	return out
}

// CostEstimate is the model's costing of a single service.
type CostEstimate struct {
	ServiceName   string   `json:"service_name"`
	SKU           string   `json:"sku"`
	Quantity      int      `json:"quantity"`
	HoursPerMonth int      `json:"hours_per_month"`
	UnitPrice     float64  `json:"unit_price"`
	MonthlyCost   float64  `json:"monthly_cost"`
	AnnualCost    float64  `json:"annual_cost"`
	Region        string   `json:"region"`
	Notes         []string `json:"notes"`
}

// PriceQuote is the unit price resolved for a service before costing.
type PriceQuote struct {
	ServiceName   string  `json:"service_name"`
	SKU           string  `json:"sku"`
	Quantity      int     `json:"quantity"`
	Region        string  `json:"region"`
	UnitPrice     float64 `json:"unit_price"`
	UnitOfMeasure string  `json:"unit_of_measure"`
	Purpose       string  `json:"purpose"`
	Fallback      bool    `json:"fallback"`
}

// PricingEstimate is the output of the pricing stage.
type PricingEstimate struct {
	ProjectTitle         string         `json:"project_title"`
	EstimateDate         time.Time      `json:"estimate_date"`
	Region               string         `json:"region"`
	CostEstimates        []CostEstimate `json:"cost_estimates"`
	TotalMonthlyCost     float64        `json:"total_monthly_cost"`
	TotalAnnualCost      float64        `json:"total_annual_cost"`
	Assumptions          []string       `json:"assumptions"`
	SavingsOpportunities []string       `json:"savings_opportunities"`
	Quotes               []PriceQuote   `json:"quotes,omitempty"`
}

// AddCostEstimate appends an estimate and updates the running totals.
// Only convenience builders use it.
func (p *PricingEstimate) AddCostEstimate(e CostEstimate) {
	p.CostEstimates = append(p.CostEstimates, e)
	p.TotalMonthlyCost = units.Sum(p.TotalMonthlyCost, e.MonthlyCost)
	p.TotalAnnualCost = units.Sum(p.TotalAnnualCost, e.AnnualCost)
}

// CostBreakdown maps service name to monthly cost. Lines sharing a service
// name are added together.
func (p *PricingEstimate) CostBreakdown() map[string]float64 {
	out := make(map[string]float64, len(p.CostEstimates))
	for _, e := range p.CostEstimates {
		out[e.ServiceName] = units.Sum(out[e.ServiceName], e.MonthlyCost)
	}
	return out
}

// FallbackQuotes counts quotes priced with the default unit price.
func (p *PricingEstimate) FallbackQuotes() int {
	n := 0
	for _, q := range p.Quotes {
		if q.Fallback {
			n++
		}
	}
	return n
}

// PriceRecord is one entry from a retail price catalog.
type PriceRecord struct {
	ServiceName      string   `json:"service_name"`
	SKUName          string   `json:"sku_name"`
	Region           string   `json:"region"`
	UnitPrice        float64  `json:"unit_price"`
	UnitOfMeasure    string   `json:"unit_of_measure"`
	RetailPrice      float64  `json:"retail_price"`
	CurrencyCode     string   `json:"currency_code"`
	TierMinimumUnits *float64 `json:"tier_minimum_units,omitempty"`
	ProductName      string   `json:"product_name"`
	MeterName        string   `json:"meter_name"`
}

// NonNil returns s, or an empty slice when s is nil, so documents always
// serialize lists as [].
func NonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
