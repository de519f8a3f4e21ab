// Package pipeline runs the specification, architecture and pricing stages
// in sequence and renders their documents as a review report.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"se-assistant/decision/architecture"
	"se-assistant/decision/catalog"
	"se-assistant/decision/estimation"
	"se-assistant/decision/specification"
	"se-assistant/internal/llm"
	"se-assistant/pkg/api"
	seerrors "se-assistant/pkg/errors"
)

// StageError records a stage failure that was replaced by a degraded document.
type StageError struct {
	Stage   string `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e StageError) String() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// Result is the outcome of one pipeline run. Documents are nil only for
// stages that never ran because the run was aborted.
type Result struct {
	ID            string                     `json:"id"`
	CustomerInput string                     `json:"customer_input"`
	Specification *api.SpecificationDocument `json:"specification"`
	Architecture  *api.ArchitectureDocument  `json:"architecture"`
	Pricing       *api.PricingEstimate       `json:"pricing"`
	Success       bool                       `json:"success"`
	Error         string                     `json:"error,omitempty"`
	StageErrors   []StageError               `json:"stage_errors"`
	StartedAt     time.Time                  `json:"started_at"`
	Duration      time.Duration              `json:"duration"`
}

// Degraded reports whether any stage fell back to a placeholder document.
func (r *Result) Degraded() bool { return len(r.StageErrors) > 0 }

// StageErrorStrings renders stage errors for storage.
func (r *Result) StageErrorStrings() []string {
	out := make([]string, 0, len(r.StageErrors))
	for _, e := range r.StageErrors {
		out = append(out, e.String())
	}
	return out
}

// RunRecorder persists finished runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, result *Result) error
}

// Coordinator wires the stages. It holds no per-run state and is safe for
// concurrent runs as long as the lookup factory returns a fresh lookup each
// time.
type Coordinator struct {
	spec     *specification.Stage
	arch     *architecture.Stage
	pricing  *estimation.Engine
	recorder RunRecorder
	logger   zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder persists every run.
func WithRecorder(r RunRecorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithClock fixes the pricing stage's estimate date.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.pricing.WithClock(now) }
}

// NewCoordinator builds the three stages over a shared model client and
// catalog.
func NewCoordinator(client llm.Client, cat *catalog.Catalog, newLookup estimation.LookupFactory, opts ...Option) *Coordinator {
	c := &Coordinator{
		spec:    specification.New(client),
		arch:    architecture.New(client, cat),
		pricing: estimation.NewEngine(client, newLookup),
		logger:  log.Logger.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes customer input through all stages strictly in order. Stage
// failures become degraded documents and the run continues; cancellation
// between stages and panics end the run with Success false.
func (c *Coordinator) Run(ctx context.Context, customerInput string) (result *Result) {
	result = &Result{
		ID:            uuid.New().String(),
		CustomerInput: customerInput,
		StageErrors:   []StageError{},
		StartedAt:     time.Now(),
	}
	logger := c.logger.With().Str("run_id", result.ID).Logger()

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("pipeline panicked")
			c.fail(result, seerrors.NewPipelineAbortedError(fmt.Sprintf("panic: %v", p), nil))
		}
		result.Duration = time.Since(result.StartedAt)
		c.record(ctx, result, logger)
	}()

	logger.Info().Int("input_bytes", len(customerInput)).Msg("pipeline started")

	spec, err := c.spec.Analyze(ctx, customerInput)
	if err != nil {
		c.degrade(result, specification.StageName, err, logger)
		spec = specification.Degraded(err)
	}
	result.Specification = spec
	if c.aborted(ctx, result) {
		return result
	}

	arch, err := c.arch.Design(ctx, spec)
	if err != nil {
		c.degrade(result, architecture.StageName, err, logger)
		arch = architecture.Degraded(spec, err)
	}
	result.Architecture = arch
	if c.aborted(ctx, result) {
		return result
	}

	est, quotes, err := c.pricing.Price(ctx, arch)
	if err != nil {
		c.degrade(result, estimation.StageName, err, logger)
		est = estimation.Degraded(arch, quotes, err, c.pricing.Now())
	}
	result.Pricing = est

	result.Success = true
	logger.Info().
		Str("project", spec.ProjectTitle).
		Str("pattern", arch.ArchitecturePattern).
		Int("services", len(arch.Services)).
		Float64("monthly", est.TotalMonthlyCost).
		Int("degraded_stages", len(result.StageErrors)).
		Msg("pipeline complete")
	return result
}

func (c *Coordinator) degrade(result *Result, stage string, err error, logger zerolog.Logger) {
	logger.Warn().Err(err).Str("stage", stage).Msg("stage failed, using degraded document")
	result.StageErrors = append(result.StageErrors, StageError{
		Stage:   stage,
		Code:    seerrors.CodeOf(err),
		Message: err.Error(),
	})
}

func (c *Coordinator) aborted(ctx context.Context, result *Result) bool {
	if err := ctx.Err(); err != nil {
		c.fail(result, seerrors.NewPipelineAbortedError("run cancelled", err))
		return true
	}
	return false
}

func (c *Coordinator) fail(result *Result, err error) {
	result.Success = false
	result.Error = err.Error()
}

func (c *Coordinator) record(ctx context.Context, result *Result, logger zerolog.Logger) {
	if c.recorder == nil {
		return
	}
	// A cancelled request context must not lose the record.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.recorder.RecordRun(recCtx, result); err != nil {
		logger.Warn().Err(err).Msg("failed to record run")
	}
}
