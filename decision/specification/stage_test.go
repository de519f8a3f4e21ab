package specification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"se-assistant/internal/llm"
	"se-assistant/pkg/api"
	seerrors "se-assistant/pkg/errors"
)

const websiteResponse = `Here is the specification:
` + "```json" + `
{
  "project_title": "Corporate Website",
  "summary": "Marketing site with a contact form",
  "requirements": [
    {"requirement_id": "REQ-001", "description": "Host a corporate website", "category": "functional", "priority": "high", "clarification_needed": false},
    {"description": "Contact form submissions are stored", "priority": "Medium"},
    {"requirement_id": "REQ-001", "description": "SSL everywhere", "category": "non-functional", "priority": "low"}
  ],
  "clarifying_questions": ["Which CMS do you prefer?"],
  "constraints": ["$200/month budget"],
  "target_users": 1000
}
` + "```"

func fixed(text string, err error) llm.Client {
	return llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return text, err
	})
}

func TestAnalyze(t *testing.T) {
	var got llm.Request
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		got = req
		return websiteResponse, nil
	})

	doc, err := New(client).Analyze(context.Background(), "a corporate website, 1000 daily visitors")
	require.NoError(t, err)

	assert.Equal(t, systemPrompt, got.System)
	assert.Contains(t, got.Prompt, "Customer Input:\na corporate website, 1000 daily visitors\n")

	assert.Equal(t, "Corporate Website", doc.ProjectTitle)
	assert.Equal(t, "eastus", doc.TargetRegion)
	require.NotNil(t, doc.TargetUsers)
	assert.Equal(t, 1000, *doc.TargetUsers)
	assert.Equal(t, []string{"$200/month budget"}, doc.Constraints)
	assert.NotNil(t, doc.Assumptions)
	assert.Empty(t, doc.Assumptions)

	require.Len(t, doc.Requirements, 3)
	assert.Equal(t, api.PriorityHigh, doc.Requirements[0].Priority)

	second := doc.Requirements[1]
	assert.Equal(t, "REQ-002", second.ID)
	assert.Equal(t, api.CategoryFunctional, second.Category)
	assert.Equal(t, api.PriorityMedium, second.Priority)

	assert.Equal(t, "REQ-001-3", doc.Requirements[2].ID)
}

func TestParseDefaults(t *testing.T) {
	doc, err := Parse(`{}`)
	require.NoError(t, err)
	assert.Equal(t, api.DefaultProjectTitle, doc.ProjectTitle)
	assert.Equal(t, api.DefaultRegion, doc.TargetRegion)
	assert.Equal(t, "", doc.Summary)
	assert.NotNil(t, doc.Requirements)
	assert.NotNil(t, doc.ClarifyingQuestions)
	assert.Nil(t, doc.TargetUsers)
}

func TestParseFenceIdempotent(t *testing.T) {
	payload := `{"project_title": "X", "target_region": "westeurope", "requirements": [{"description": "d"}]}`

	raw, err := Parse(payload)
	require.NoError(t, err)
	fenced, err := Parse("```json\n" + payload + "\n```")
	require.NoError(t, err)
	plain, err := Parse("prefix ```\n" + payload + "\n``` suffix")
	require.NoError(t, err)

	assert.Equal(t, raw, fenced)
	assert.Equal(t, raw, plain)
}

func TestParseUnknownLabels(t *testing.T) {
	doc, err := Parse(`{"requirements": [
		{"description": "Track invoices", "category": "business", "priority": "urgent"},
		{"description": "Encrypt data", "category": "Technical", "priority": "HIGH"}
	]}`)
	require.NoError(t, err)
	require.Len(t, doc.Requirements, 2)

	assert.Equal(t, api.CategoryFunctional, doc.Requirements[0].Category)
	assert.Equal(t, api.PriorityMedium, doc.Requirements[0].Priority)
	assert.Equal(t, "Track invoices", doc.Requirements[0].Description)

	assert.Equal(t, api.CategoryTechnical, doc.Requirements[1].Category)
	assert.Equal(t, api.PriorityHigh, doc.Requirements[1].Priority)
}

func TestParseLenientTargetUsers(t *testing.T) {
	for _, raw := range []string{`1000`, `1000.0`, `"1000"`, `1e3`} {
		doc, err := Parse(`{"target_users": ` + raw + `}`)
		require.NoError(t, err, raw)
		require.NotNil(t, doc.TargetUsers, raw)
		assert.Equal(t, 1000, *doc.TargetUsers, raw)
	}

	doc, err := Parse(`{"target_users": null}`)
	require.NoError(t, err)
	assert.Nil(t, doc.TargetUsers)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "I could not do that"},
		{"empty", "   "},
		{"fractional users", `{"target_users": 12.5}`},
		{"blank description", `{"requirements": [{"description": "  "}]}`},
		{"negative users", `{"target_users": -5}`},
		{"wrong type", `{"requirements": "many"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.text)
			assert.Nil(t, doc)
			require.Error(t, err)
			assert.True(t, seerrors.IsMalformed(err))
		})
	}
}

func TestAnalyzeModelError(t *testing.T) {
	_, err := New(fixed("", errors.New("rate limited"))).Analyze(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, seerrors.ErrCodeModelCallFailed, seerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "rate limited")
}

func TestDegraded(t *testing.T) {
	doc := Degraded(errors.New("boom"))
	assert.Equal(t, DegradedTitle, doc.ProjectTitle)
	assert.Equal(t, "Error occurred: boom", doc.Summary)
	assert.Equal(t, []string{DegradedQuestion}, doc.ClarifyingQuestions)
	assert.Empty(t, doc.Requirements)
	assert.Empty(t, doc.Constraints)
	assert.Equal(t, "eastus", doc.TargetRegion)
}
