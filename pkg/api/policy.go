package api

import "strings"

// PolicyInput is the document handed to rego review modules.
type PolicyInput struct {
	ProjectTitle        string             `json:"project_title"`
	Pattern             string             `json:"architecture_pattern"`
	ServiceNames        []string           `json:"service_names"`
	ServiceCount        int                `json:"service_count"`
	Regions             []string           `json:"regions"`
	TotalMonthlyCost    float64            `json:"total_monthly_cost"`
	TotalAnnualCost     float64            `json:"total_annual_cost"`
	FallbackQuotes      int                `json:"fallback_quotes"`
	CostByService       map[string]float64 `json:"cost_by_service,omitempty"`
	ClarifyingQuestions int                `json:"clarifying_questions"`
	StageErrors         []string           `json:"stage_errors"`
	Success             bool               `json:"success"`
	BudgetMonthly       *float64           `json:"budget_monthly,omitempty"`
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
