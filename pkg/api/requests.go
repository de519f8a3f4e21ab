package api

// AnalyzeRequest is the input for the analyze endpoint.
type AnalyzeRequest struct {
	CustomerInput string   `json:"customer_input"`
	BudgetMonthly *float64 `json:"budget_monthly,omitempty"`
}

// RecommendRequest is the input for the catalog recommend endpoint.
type RecommendRequest struct {
	Requirements []string `json:"requirements"`
}

// RecommendResponse lists recommended services and the suggested pattern.
type RecommendResponse struct {
	Services []string `json:"services"`
	Pattern  string   `json:"pattern"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
