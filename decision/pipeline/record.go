package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"se-assistant/pkg/api"
	seerrors "se-assistant/pkg/errors"
)

// RunStore saves run records. Both the ClickHouse and Postgres stores
// implement it.
type RunStore interface {
	SaveRun(ctx context.Context, rec api.RunRecord) error
}

// StoreRecorder adapts a RunStore to a RunRecorder.
func StoreRecorder(s RunStore) RunRecorder {
	return storeRecorder{store: s}
}

type storeRecorder struct {
	store RunStore
}

func (r storeRecorder) RecordRun(ctx context.Context, result *Result) error {
	rec, err := result.Record()
	if err != nil {
		return err
	}
	if err := r.store.SaveRun(ctx, rec); err != nil {
		return seerrors.NewStoreError("save run "+result.ID, err)
	}
	return nil
}

// Record summarizes the result for storage.
func (r *Result) Record() (api.RunRecord, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return api.RunRecord{}, fmt.Errorf("failed to encode run %s: %w", r.ID, err)
	}
	rec := api.RunRecord{
		ID:            r.ID,
		CustomerInput: r.CustomerInput,
		Success:       r.Success,
		Error:         r.Error,
		StageErrors:   r.StageErrorStrings(),
		StartedAt:     r.StartedAt,
		DurationMS:    r.Duration.Milliseconds(),
		Document:      doc,
	}
	if r.Specification != nil {
		rec.ProjectTitle = r.Specification.ProjectTitle
	}
	if r.Architecture != nil {
		rec.Pattern = r.Architecture.ArchitecturePattern
		rec.ServiceCount = len(r.Architecture.Services)
	}
	if r.Pricing != nil {
		rec.TotalMonthlyCost = r.Pricing.TotalMonthlyCost
		rec.TotalAnnualCost = r.Pricing.TotalAnnualCost
	}
	return rec, nil
}

// DecodeResult restores a Result from a stored record's document.
func DecodeResult(rec api.RunRecord) (*Result, error) {
	if len(rec.Document) == 0 {
		return nil, fmt.Errorf("run %s has no stored document", rec.ID)
	}
	var r Result
	if err := json.Unmarshal(rec.Document, &r); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", rec.ID, err)
	}
	return &r, nil
}
