// Package policy reviews finished pipeline runs before a proposal goes to a
// customer. Built-in threshold policies run in Go; review modules written in
// rego run through an embedded OPA evaluator.
package policy

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"se-assistant/decision/pipeline"
	"se-assistant/pkg/api"
)

//go:embed policies/*.rego
var builtinModules embed.FS

const (
	denyQuery = "data.seassist.deny"
	warnQuery = "data.seassist.warn"
)

// PolicyType defines the type of a built-in policy
type PolicyType string

const (
	PolicyTypeBudgetLimit     PolicyType = "budget_limit"
	PolicyTypeDegradedStages  PolicyType = "degraded_stages"
	PolicyTypeFallbackPricing PolicyType = "fallback_pricing"
)

// Severity defines policy violation severity
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Decision is the policy evaluation outcome
type Decision string

const (
	DecisionPass Decision = "pass"
	DecisionWarn Decision = "warn"
	DecisionDeny Decision = "deny"
)

// Policy defines a built-in review rule
type Policy struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        PolicyType `json:"type"`
	Severity    Severity   `json:"severity"`
	Threshold   float64    `json:"threshold"`
	Enabled     bool       `json:"enabled"`
}

// Violation represents a policy violation
type Violation struct {
	PolicyID string `json:"policy_id"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Warning represents a policy warning
type Warning struct {
	PolicyID string `json:"policy_id"`
	Message  string `json:"message"`
}

// EvaluationResult contains the policy evaluation outcome
type EvaluationResult struct {
	Decision    Decision    `json:"decision"`
	Violations  []Violation `json:"violations"`
	Warnings    []Warning   `json:"warnings"`
	PoliciesRan int         `json:"policies_ran"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// Engine evaluates built-in policies and rego modules
type Engine struct {
	policies []Policy
	modules  map[string]string
	deny     rego.PreparedEvalQuery
	warn     rego.PreparedEvalQuery
	logger   zerolog.Logger
}

// NewEngine compiles the built-in rego modules plus every *.rego file in
// policiesDir. An empty policiesDir loads only the built-ins.
func NewEngine(ctx context.Context, policiesDir string) (*Engine, error) {
	modules, err := loadBuiltinModules()
	if err != nil {
		return nil, err
	}
	if policiesDir != "" {
		extra, err := LoadDir(policiesDir)
		if err != nil {
			return nil, err
		}
		for name, src := range extra {
			modules[name] = src
		}
	}

	e := &Engine{
		policies: defaultPolicies(),
		modules:  modules,
		logger:   log.Logger.With().Str("component", "policy").Logger(),
	}
	if e.deny, err = e.prepare(ctx, denyQuery); err != nil {
		return nil, err
	}
	if e.warn, err = e.prepare(ctx, warnQuery); err != nil {
		return nil, err
	}
	return e, nil
}

// AddPolicy adds a built-in style policy
func (e *Engine) AddPolicy(p Policy) {
	e.policies = append(e.policies, p)
}

// Policies returns the built-in style policies, enabled or not.
func (e *Engine) Policies() []Policy {
	out := make([]Policy, len(e.policies))
	copy(out, e.policies)
	return out
}

// Modules lists the loaded rego module names, sorted.
func (e *Engine) Modules() []string {
	names := make([]string, 0, len(e.modules))
	for name := range e.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) prepare(ctx context.Context, query string) (rego.PreparedEvalQuery, error) {
	opts := []func(*rego.Rego){rego.Query(query)}
	for _, name := range e.Modules() {
		opts = append(opts, rego.Module(name, e.modules[name]))
	}
	pq, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("failed to compile policies: %w", err)
	}
	return pq, nil
}

// Evaluate runs every enabled policy against input
func (e *Engine) Evaluate(ctx context.Context, input api.PolicyInput) (*EvaluationResult, error) {
	result := &EvaluationResult{
		Decision:    DecisionPass,
		Violations:  make([]Violation, 0),
		Warnings:    make([]Warning, 0),
		EvaluatedAt: time.Now(),
	}

	for _, p := range e.policies {
		if !p.Enabled {
			continue
		}
		result.PoliciesRan++
		violation, warning := evaluatePolicy(p, input)
		if violation != nil {
			result.Violations = append(result.Violations, *violation)
		}
		if warning != nil {
			result.Warnings = append(result.Warnings, *warning)
		}
	}

	doc, err := toDocument(input)
	if err != nil {
		return nil, err
	}
	denials, err := evalMessages(ctx, e.deny, doc)
	if err != nil {
		return nil, fmt.Errorf("deny query failed: %w", err)
	}
	warnings, err := evalMessages(ctx, e.warn, doc)
	if err != nil {
		return nil, fmt.Errorf("warn query failed: %w", err)
	}
	result.PoliciesRan += len(e.modules)
	for _, msg := range denials {
		result.Violations = append(result.Violations, Violation{PolicyID: "rego", Message: msg, Severity: string(SeverityError)})
	}
	for _, msg := range warnings {
		result.Warnings = append(result.Warnings, Warning{PolicyID: "rego", Message: msg})
	}

	switch {
	case len(result.Violations) > 0:
		result.Decision = DecisionDeny
	case len(result.Warnings) > 0:
		result.Decision = DecisionWarn
	}

	e.logger.Debug().
		Str("decision", string(result.Decision)).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Msg("policies evaluated")
	return result, nil
}

// evaluatePolicy applies one built-in policy. Warning-severity policies
// produce warnings, error-severity ones violations.
func evaluatePolicy(p Policy, in api.PolicyInput) (*Violation, *Warning) {
	var msg string
	switch p.Type {
	case PolicyTypeBudgetLimit:
		limit := p.Threshold
		if in.BudgetMonthly != nil {
			limit = *in.BudgetMonthly
		}
		if limit > 0 && in.TotalMonthlyCost > limit {
			msg = fmt.Sprintf("Estimated monthly cost ($%.2f) exceeds budget ($%.2f)", in.TotalMonthlyCost, limit)
		}

	case PolicyTypeDegradedStages:
		if len(in.StageErrors) > int(p.Threshold) {
			msg = fmt.Sprintf("%d stage(s) returned placeholder documents: %v", len(in.StageErrors), in.StageErrors)
		}

	case PolicyTypeFallbackPricing:
		if in.ServiceCount > 0 {
			ratio := float64(in.FallbackQuotes) / float64(in.ServiceCount) * 100
			if ratio > p.Threshold {
				msg = fmt.Sprintf("%d of %d services priced with the default unit price (%.0f%%)", in.FallbackQuotes, in.ServiceCount, ratio)
			}
		}
	}

	if msg == "" {
		return nil, nil
	}
	if p.Severity == SeverityError {
		return &Violation{PolicyID: p.ID, Message: msg, Severity: string(p.Severity)}, nil
	}
	return nil, &Warning{PolicyID: p.ID, Message: msg}
}

func evalMessages(ctx context.Context, pq rego.PreparedEvalQuery, input map[string]any) ([]string, error) {
	rs, err := pq.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var messages []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			if set, ok := expr.Value.([]interface{}); ok {
				for _, v := range set {
					if msg, ok := v.(string); ok {
						messages = append(messages, msg)
					}
				}
			}
		}
	}
	sort.Strings(messages)
	return messages, nil
}

// toDocument converts input to the plain JSON shape rego sees.
func toDocument(input api.PolicyInput) (map[string]any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy input: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode policy input: %w", err)
	}
	return doc, nil
}

func loadBuiltinModules() (map[string]string, error) {
	modules := make(map[string]string)
	err := fs.WalkDir(builtinModules, "policies", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		src, err := builtinModules.ReadFile(path)
		if err != nil {
			return err
		}
		modules["builtin/"+filepath.Base(path)] = string(src)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}
	return modules, nil
}

// LoadDir reads every *.rego file in dir.
func LoadDir(dir string) (map[string]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	modules := make(map[string]string, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		modules[file] = string(content)
	}
	return modules, nil
}

// ValidateDir compiles each *.rego file in dir on its own against the
// deny and warn queries the engine evaluates.
func ValidateDir(ctx context.Context, dir string) error {
	modules, err := LoadDir(dir)
	if err != nil {
		return err
	}
	files := make([]string, 0, len(modules))
	for file := range modules {
		files = append(files, file)
	}
	sort.Strings(files)
	for _, file := range files {
		for _, query := range []string{denyQuery, warnQuery} {
			r := rego.New(rego.Query(query), rego.Module(file, modules[file]))
			if _, err := r.PrepareForEval(ctx); err != nil {
				return fmt.Errorf("invalid policy %s: %w", file, err)
			}
		}
	}
	return nil
}

// BuildInput summarizes a pipeline result for review. budget is the
// customer's monthly budget, if known.
func BuildInput(r *pipeline.Result, budget *float64) api.PolicyInput {
	in := api.PolicyInput{
		ServiceNames:  []string{},
		Regions:       []string{},
		StageErrors:   r.StageErrorStrings(),
		Success:       r.Success,
		BudgetMonthly: budget,
	}
	if spec := r.Specification; spec != nil {
		in.ProjectTitle = spec.ProjectTitle
		in.ClarifyingQuestions = len(spec.ClarifyingQuestions)
	}
	if arch := r.Architecture; arch != nil {
		in.Pattern = arch.ArchitecturePattern
		in.ServiceCount = len(arch.Services)
		regions := make(map[string]bool)
		for _, svc := range arch.Services {
			in.ServiceNames = append(in.ServiceNames, svc.ServiceName)
			if svc.Region != "" && !regions[svc.Region] {
				regions[svc.Region] = true
				in.Regions = append(in.Regions, svc.Region)
			}
		}
	}
	if est := r.Pricing; est != nil {
		in.TotalMonthlyCost = est.TotalMonthlyCost
		in.TotalAnnualCost = est.TotalAnnualCost
		in.FallbackQuotes = est.FallbackQuotes()
		if len(est.CostEstimates) > 0 {
			in.CostByService = est.CostBreakdown()
		}
	}
	return in
}

func defaultPolicies() []Policy {
	return []Policy{
		{
			ID:          "customer-budget",
			Name:        "Customer Budget",
			Description: "Block estimates above the customer's stated monthly budget",
			Type:        PolicyTypeBudgetLimit,
			Severity:    SeverityError,
			Enabled:     true,
		},
		{
			ID:          "degraded-stages",
			Name:        "Degraded Stages",
			Description: "Warn when any stage fell back to a placeholder document",
			Type:        PolicyTypeDegradedStages,
			Severity:    SeverityWarning,
			Threshold:   0,
			Enabled:     true,
		},
		{
			ID:          "fallback-pricing",
			Name:        "Default Unit Prices",
			Description: "Warn when more than half the services use the default unit price",
			Type:        PolicyTypeFallbackPricing,
			Severity:    SeverityWarning,
			Threshold:   50,
			Enabled:     true,
		},
	}
}
