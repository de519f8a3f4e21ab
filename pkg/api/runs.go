package api

import (
	"encoding/json"
	"time"
)

// RunRecord is the stored summary of one pipeline run. Document holds the
// full run result as JSON.
type RunRecord struct {
	ID               string          `json:"id"`
	CustomerInput    string          `json:"customer_input"`
	ProjectTitle     string          `json:"project_title"`
	Pattern          string          `json:"pattern"`
	ServiceCount     int             `json:"service_count"`
	TotalMonthlyCost float64         `json:"total_monthly_cost"`
	TotalAnnualCost  float64         `json:"total_annual_cost"`
	Success          bool            `json:"success"`
	Error            string          `json:"error,omitempty"`
	StageErrors      []string        `json:"stage_errors"`
	StartedAt        time.Time       `json:"started_at"`
	DurationMS       int64           `json:"duration_ms"`
	Document         json.RawMessage `json:"document,omitempty"`
}

// PriceSnapshot describes one ingested batch of retail prices.
type PriceSnapshot struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	ServiceName string    `json:"service_name"`
	Region      string    `json:"region"`
	FetchedAt   time.Time `json:"fetched_at"`
	RecordCount int       `json:"record_count"`
	Hash        string    `json:"hash"`
}
