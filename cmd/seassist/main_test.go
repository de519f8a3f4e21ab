package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"se-assistant/decision/pipeline"
	"se-assistant/decision/policy"
	"se-assistant/internal/config"
	"se-assistant/pkg/api"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		ID:          "run-1",
		Success:     true,
		StageErrors: []pipeline.StageError{},
		Specification: &api.SpecificationDocument{
			ProjectTitle: "Corporate Website",
			Summary:      "Marketing site",
			Requirements: []api.Requirement{{ID: "REQ-001", Description: "Host site", Priority: api.PriorityHigh, Category: api.CategoryFunctional}},
		},
		Architecture: &api.ArchitectureDocument{
			ArchitecturePattern: "Web Application",
			Services:            []api.AzureService{{ServiceName: "Azure App Service", SKU: "B1", Quantity: 1, Region: "eastus"}},
		},
		Pricing: &api.PricingEstimate{
			Region:           "eastus",
			TotalMonthlyCost: 54.75,
			TotalAnnualCost:  657,
		},
	}
}

func TestReadInput(t *testing.T) {
	text, err := readInput("", []string{"host", "a", "website"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "host a website", text)

	text, err = readInput("-", nil, strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", text)

	path := filepath.Join(t.TempDir(), "req.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o600))
	text, err = readInput(path, []string{"ignored"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "from file", text)

	_, err = readInput("", []string{"  "}, nil)
	assert.Error(t, err)

	_, err = readInput(filepath.Join(t.TempDir(), "missing.txt"), nil, nil)
	assert.Error(t, err)
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"text", "json", "markdown"} {
		assert.NoError(t, validFormat(f))
	}
	assert.Error(t, validFormat("yaml"))
}

func TestExitStatus(t *testing.T) {
	assert.NoError(t, exitStatus(sampleResult(), nil))
	assert.NoError(t, exitStatus(sampleResult(), &policy.EvaluationResult{Decision: policy.DecisionWarn}))

	err := exitStatus(sampleResult(), &policy.EvaluationResult{Decision: policy.DecisionDeny})
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, ExitPolicyDenied, exit.ExitCode())

	err = exitStatus(&pipeline.Result{Error: "boom"}, nil)
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.ExitCode())
}

func TestRenderResult(t *testing.T) {
	review := &policy.EvaluationResult{
		Decision:   policy.DecisionDeny,
		Violations: []policy.Violation{{PolicyID: "customer-budget", Message: "over budget"}},
		Warnings:   []policy.Warning{{PolicyID: "fallback-pricing", Message: "fallback price used"}},
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderResult(&buf, "text", sampleResult(), review))
		out := buf.String()
		assert.Contains(t, out, "SE SPECIALIST ARCHITECTURE & PRICING REPORT")
		assert.Contains(t, out, "Policy Review: ❌ DENY")
		assert.Contains(t, out, "over budget")
		assert.Contains(t, out, "fallback price used")
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderResult(&buf, "markdown", sampleResult(), review))
		out := buf.String()
		assert.Contains(t, out, "# SE Specialist Architecture & Pricing Report")
		assert.Contains(t, out, "## Policy Review: deny")
		assert.Contains(t, out, "**customer-budget**: over budget")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderResult(&buf, "json", sampleResult(), nil))
		var out JSONOutput
		require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
		require.NotNil(t, out.Result)
		assert.Equal(t, "run-1", out.Result.ID)
		assert.Nil(t, out.Review)
		assert.NotContains(t, buf.String(), `"review"`)
	})

	t.Run("no review", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderResult(&buf, "text", sampleResult(), nil))
		assert.NotContains(t, buf.String(), "Policy Review")
	})
}

func TestScenarios(t *testing.T) {
	assert.Equal(t, []string{"ecommerce", "iot", "website"}, scenarioNames())

	s, ok := findScenario("iot")
	require.True(t, ok)
	assert.NotEmpty(t, s.Title)
	assert.NotEmpty(t, strings.TrimSpace(s.Input))

	_, ok = findScenario("mainframe")
	assert.False(t, ok)
}

func TestApplyFlags(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, name := range []string{"log-level", "provider", "model", "run-store", "price-source", "policies-dir"} {
		set.String(name, "", "")
	}
	set.Bool("log-json", false, "")
	require.NoError(t, set.Parse([]string{"--provider", "anthropic", "--run-store", "postgres", "--log-json"}))

	cfg, err := config.LoadWithEnv(map[string]string{})
	require.NoError(t, err)
	applyFlags(cli.NewContext(newApp(), set, nil), cfg)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, config.StorePostgres, cfg.RunStore)
	assert.False(t, cfg.LogPretty)
	assert.Equal(t, "info", cfg.LogLevel, "unset flags keep environment values")
	assert.Equal(t, config.PriceSourceRetail, cfg.PriceSource)
}

func TestParseFilters(t *testing.T) {
	filters, err := parseFilters([]string{"instanceType=m5.large", " operatingSystem = Linux "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"instanceType": "m5.large", "operatingSystem": "Linux"}, filters)

	_, err = parseFilters([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseFilters([]string{"=Linux"})
	assert.Error(t, err)
}

func TestWriteRunList(t *testing.T) {
	var buf bytes.Buffer
	writeRunList(&buf, nil)
	assert.Equal(t, "No runs recorded.\n", buf.String())

	buf.Reset()
	started := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	writeRunList(&buf, []api.RunRecord{
		{ID: "a", ProjectTitle: "Shop", Success: true, StartedAt: started, TotalMonthlyCost: 120.5, ServiceCount: 3},
		{ID: "b", ProjectTitle: "Telemetry", Success: true, StageErrors: []string{"pricing: timeout"}, StartedAt: started},
		{ID: "c", Success: false, StartedAt: started},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ok")
	assert.Contains(t, lines[0], "$    120.50/mo")
	assert.Contains(t, lines[1], "degraded")
	assert.Contains(t, lines[2], "failed")
}

func TestReadResultFile(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, renderResult(&buf, "json", sampleResult(), nil))
	wrapped := filepath.Join(dir, "analyze.json")
	require.NoError(t, os.WriteFile(wrapped, buf.Bytes(), 0o600))

	result, err := readResultFile(wrapped)
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.ID)

	bare, err := json.Marshal(sampleResult())
	require.NoError(t, err)
	barePath := filepath.Join(dir, "result.json")
	require.NoError(t, os.WriteFile(barePath, bare, 0o600))

	result, err = readResultFile(barePath)
	require.NoError(t, err)
	assert.Equal(t, 54.75, result.Pricing.TotalMonthlyCost)

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte("{"), 0o600))
	_, err = readResultFile(badPath)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
