// Package specification turns free-text customer input into a structured
// requirements document.
package specification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"se-assistant/internal/llm"
	"se-assistant/pkg/api"
	seerrors "se-assistant/pkg/errors"
)

// StageName identifies this stage in errors and logs.
const StageName = "specification"

// DegradedTitle is the project title of a degraded document.
const DegradedTitle = "Error Processing Requirements"

// DegradedQuestion is the single clarifying question of a degraded document.
const DegradedQuestion = "Could you provide more details about your requirements?"

const systemPrompt = `You are an expert Solution Architect and Requirements Analyst.

Your role is to:
1. Carefully analyze customer input to extract technical and business requirements
2. Ask targeted clarifying questions to fill gaps
3. Identify assumptions and constraints
4. Structure requirements into a clear specification document

When analyzing input:
- Extract functional requirements (what the system should do)
- Extract non-functional requirements (performance, security, scalability)
- Identify technical constraints (budget, timeline, technology preferences)
- Note any ambiguities that need clarification

Your clarifying questions should:
- Be specific and actionable
- Focus on critical architectural decisions
- Help estimate scale and complexity
- Uncover hidden requirements

Output Format:
Return a JSON object with this structure:
{
  "project_title": "Brief project name",
  "summary": "High-level summary of the project",
  "requirements": [
    {
      "requirement_id": "REQ-001",
      "description": "Detailed requirement description",
      "category": "functional|non-functional|technical",
      "priority": "high|medium|low",
      "clarification_needed": true|false
    }
  ],
  "clarifying_questions": ["Question 1?", "Question 2?"],
  "assumptions": ["Assumption 1", "Assumption 2"],
  "constraints": ["Constraint 1", "Constraint 2"],
  "target_users": 10000,
  "target_region": "eastus"
}

Be thorough but concise. Focus on information that impacts architecture and pricing decisions.`

const userPromptTemplate = `Analyze the following customer input and extract requirements:

Customer Input:
%s

Generate a comprehensive specification document in the JSON format specified in your instructions.
Focus on extracting actionable requirements and identifying what clarifying questions are needed.
`

// Stage extracts requirements with one model call per input.
type Stage struct {
	client llm.Client
	logger zerolog.Logger
}

// New creates a specification stage.
func New(client llm.Client) *Stage {
	return &Stage{
		client: client,
		logger: log.Logger.With().Str("component", StageName).Logger(),
	}
}

// SystemPrompt returns the fixed instruction sent with every request.
func SystemPrompt() string { return systemPrompt }

// BuildPrompt renders the user prompt for customer text.
func BuildPrompt(customerInput string) string {
	return fmt.Sprintf(userPromptTemplate, customerInput)
}

// Analyze calls the model once and parses its answer. Errors are either a
// model-call error or a MalformedResponseError; callers that need a document
// regardless should fall back to Degraded.
func (s *Stage) Analyze(ctx context.Context, customerInput string) (*api.SpecificationDocument, error) {
	text, err := s.client.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: BuildPrompt(customerInput),
	})
	if err != nil {
		return nil, seerrors.NewModelCallError(StageName, err)
	}
	s.logger.Debug().Str("response", llm.Preview(text, 500)).Msg("model response")

	doc, err := Parse(text)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("project", doc.ProjectTitle).
		Int("requirements", len(doc.Requirements)).
		Int("questions", len(doc.ClarifyingQuestions)).
		Msg("specification extracted")
	return doc, nil
}

type requirementWire struct {
	ID                  string `json:"requirement_id"`
	Description         string `json:"description"`
	Category            string `json:"category"`
	Priority            string `json:"priority"`
	ClarificationNeeded bool   `json:"clarification_needed"`
}

type documentWire struct {
	CustomerName        string            `json:"customer_name"`
	ProjectTitle        string            `json:"project_title"`
	Summary             string            `json:"summary"`
	Requirements        []requirementWire `json:"requirements"`
	ClarifyingQuestions []string          `json:"clarifying_questions"`
	Assumptions         []string          `json:"assumptions"`
	Constraints         []string          `json:"constraints"`
	TargetUsers         llm.Int           `json:"target_users"`
	TargetRegion        string            `json:"target_region"`
}

// Parse converts a model response into a document, applying field defaults.
// Unknown categories and priorities map to functional and medium. Blank
// descriptions and negative user counts are rejected.
func Parse(text string) (*api.SpecificationDocument, error) {
	wire, err := llm.Decode[documentWire](StageName, text)
	if err != nil {
		return nil, err
	}

	doc := &api.SpecificationDocument{
		CustomerName:        strings.TrimSpace(wire.CustomerName),
		ProjectTitle:        strings.TrimSpace(wire.ProjectTitle),
		Summary:             wire.Summary,
		Requirements:        make([]api.Requirement, 0, len(wire.Requirements)),
		ClarifyingQuestions: api.NonNil(wire.ClarifyingQuestions),
		Assumptions:         api.NonNil(wire.Assumptions),
		Constraints:         api.NonNil(wire.Constraints),
		TargetUsers:         wire.TargetUsers.Ptr(),
		TargetRegion:        strings.TrimSpace(wire.TargetRegion),
	}
	if doc.ProjectTitle == "" {
		doc.ProjectTitle = api.DefaultProjectTitle
	}
	if doc.TargetRegion == "" {
		doc.TargetRegion = api.DefaultRegion
	}
	if doc.TargetUsers != nil && *doc.TargetUsers < 0 {
		return nil, malformed(fmt.Sprintf("target_users is negative: %d", *doc.TargetUsers))
	}

	seen := make(map[string]bool, len(wire.Requirements))
	for i, w := range wire.Requirements {
		req, err := convertRequirement(i, w)
		if err != nil {
			return nil, err
		}
		if seen[req.ID] {
			req.ID = fmt.Sprintf("%s-%d", req.ID, i+1)
		}
		seen[req.ID] = true
		doc.Requirements = append(doc.Requirements, req)
	}
	return doc, nil
}

func convertRequirement(i int, w requirementWire) (api.Requirement, error) {
	req := api.Requirement{
		ID:                  strings.TrimSpace(w.ID),
		Description:         strings.TrimSpace(w.Description),
		Category:            api.Category(strings.ToLower(strings.TrimSpace(w.Category))),
		Priority:            api.Priority(strings.ToLower(strings.TrimSpace(w.Priority))),
		ClarificationNeeded: w.ClarificationNeeded,
	}
	if req.Description == "" {
		return req, malformed(fmt.Sprintf("requirement %d has no description", i+1))
	}
	if req.ID == "" {
		req.ID = fmt.Sprintf("REQ-%03d", i+1)
	}
	// Unknown labels fall back to the defaults.
	if !req.Category.Valid() {
		if req.Category != "" {
			log.Warn().Str("component", StageName).Str("requirement", req.ID).
				Str("category", w.Category).Msg("unknown requirement category, using functional")
		}
		req.Category = api.CategoryFunctional
	}
	if !req.Priority.Valid() {
		if req.Priority != "" {
			log.Warn().Str("component", StageName).Str("requirement", req.ID).
				Str("priority", w.Priority).Msg("unknown requirement priority, using medium")
		}
		req.Priority = api.PriorityMedium
	}
	return req, nil
}

func malformed(reason string) error {
	return seerrors.NewMalformedResponseError(StageName, reason, "", nil)
}

// Degraded is the placeholder document used when the stage fails.
func Degraded(err error) *api.SpecificationDocument {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &api.SpecificationDocument{
		ProjectTitle:        DegradedTitle,
		Summary:             "Error occurred: " + msg,
		Requirements:        []api.Requirement{},
		ClarifyingQuestions: []string{DegradedQuestion},
		Assumptions:         []string{},
		Constraints:         []string{},
		TargetRegion:        api.DefaultRegion,
	}
}
