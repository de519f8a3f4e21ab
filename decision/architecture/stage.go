// Package architecture designs a service bill of materials from a
// specification document.
package architecture

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"se-assistant/decision/catalog"
	"se-assistant/internal/llm"
	"se-assistant/pkg/api"
	seerrors "se-assistant/pkg/errors"
)

// StageName identifies this stage in errors and logs.
const StageName = "architecture"

// DegradedPattern is the pattern name of a degraded document.
const DegradedPattern = "Error"

const systemPrompt = `You are an expert Azure Solutions Architect with deep knowledge of Azure services.

Your role is to:
1. Analyze customer requirements and design appropriate Azure architectures
2. Select the right Azure services based on requirements
3. Recommend appropriate SKUs and tiers
4. Create a comprehensive Bill of Materials (BOM)
5. Consider cost optimization, scalability, security, and best practices

When designing architectures:
- Choose services that best fit the requirements
- Consider scalability and growth
- Recommend appropriate redundancy and availability
- Include networking, security, and monitoring components
- Think about DevOps and deployment strategies

Output Format:
Return a JSON object with this structure:
{
  "project_title": "Project name from spec",
  "architecture_pattern": "Pattern name (e.g., Web Application, Microservices)",
  "services": [
    {
      "service_name": "Azure App Service",
      "sku": "Standard_S1",
      "quantity": 2,
      "region": "eastus",
      "purpose": "Host web application with auto-scaling",
      "dependencies": ["Azure SQL Database", "Azure Storage"]
    }
  ],
  "networking": ["Virtual Network", "Application Gateway"],
  "security": ["Azure Key Vault", "Managed Identity", "Azure AD"],
  "monitoring": ["Azure Monitor", "Application Insights", "Log Analytics"],
  "deployment_notes": ["Use CI/CD with Azure DevOps", "Infrastructure as Code with Bicep"],
  "alternatives_considered": ["Alternative 1", "Alternative 2"]
}

Be specific about SKU recommendations. Consider cost-effectiveness while meeting requirements.`

// Stage designs architectures with one model call per specification.
type Stage struct {
	client  llm.Client
	catalog *catalog.Catalog
	logger  zerolog.Logger
}

// New creates an architecture stage. The catalog is shared read-only.
func New(client llm.Client, cat *catalog.Catalog) *Stage {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Stage{
		client:  client,
		catalog: cat,
		logger:  log.Logger.With().Str("component", StageName).Logger(),
	}
}

// SystemPrompt returns the fixed instruction sent with every request.
func SystemPrompt() string { return systemPrompt }

// Candidates is the knowledge base's view of a specification.
type Candidates struct {
	Services []catalog.ServiceInfo
	Pattern  string
}

// Candidates returns the recommended services and suggested pattern for spec.
func (s *Stage) Candidates(spec *api.SpecificationDocument) Candidates {
	texts := spec.RequirementTexts()
	c := Candidates{Pattern: s.catalog.SuggestPattern(texts)}
	for _, name := range s.catalog.Recommend(texts) {
		if info, ok := s.catalog.Info(name); ok {
			c.Services = append(c.Services, info)
		}
	}
	return c
}

// BuildPrompt renders the user prompt for spec and its candidates.
func (s *Stage) BuildPrompt(spec *api.SpecificationDocument, c Candidates) string {
	var b strings.Builder

	b.WriteString("Design an Azure architecture for the following project:\n\n")
	fmt.Fprintf(&b, "Project: %s\n", spec.ProjectTitle)
	fmt.Fprintf(&b, "Summary: %s\n\n", spec.Summary)

	b.WriteString("Requirements:\n")
	for _, r := range spec.Requirements {
		fmt.Fprintf(&b, "- [%s] %s\n", strings.ToUpper(string(r.Priority)), r.Description)
	}
	b.WriteString("\n")

	users := "Not specified"
	if spec.TargetUsers != nil && *spec.TargetUsers > 0 {
		users = fmt.Sprintf("%d", *spec.TargetUsers)
	}
	fmt.Fprintf(&b, "Target Users: %s\n", users)
	fmt.Fprintf(&b, "Target Region: %s\n\n", spec.TargetRegion)

	b.WriteString("Constraints:\n")
	if len(spec.Constraints) == 0 {
		b.WriteString("None specified\n")
	}
	for _, c := range spec.Constraints {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\n")

	b.WriteString("Recommended Azure Services:\n")
	for _, svc := range c.Services {
		fmt.Fprintf(&b, "- %s: %s, SKUs: %s\n", svc.Name, svc.Description, strings.Join(svc.SKUs, ", "))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Suggested Architecture Pattern: %s\n", c.Pattern)
	if p, ok := s.catalog.Pattern(c.Pattern); ok {
		fmt.Fprintf(&b, "Pattern Description: %s\n", p.Description)
	}
	b.WriteString("\nDesign a comprehensive architecture with appropriate Azure services, SKUs, and configurations.\n")
	b.WriteString("Generate the architecture document in the JSON format specified in your instructions.\n")
	return b.String()
}

// Design calls the model once and parses its answer. Callers that need a
// document regardless should fall back to Degraded.
func (s *Stage) Design(ctx context.Context, spec *api.SpecificationDocument) (*api.ArchitectureDocument, error) {
	c := s.Candidates(spec)
	names := make([]string, 0, len(c.Services))
	for _, svc := range c.Services {
		names = append(names, svc.Name)
	}
	s.logger.Info().Strs("recommended", names).Str("pattern", c.Pattern).Msg("knowledge base candidates")

	text, err := s.client.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: s.BuildPrompt(spec, c),
	})
	if err != nil {
		return nil, seerrors.NewModelCallError(StageName, err)
	}
	s.logger.Debug().Str("response", llm.Preview(text, 500)).Msg("model response")

	doc, err := Parse(text, spec, c.Pattern)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("pattern", doc.ArchitecturePattern).
		Int("services", len(doc.Services)).
		Msg("architecture designed")
	return doc, nil
}

type serviceWire struct {
	ServiceName  string   `json:"service_name"`
	SKU          string   `json:"sku"`
	Quantity     llm.Int  `json:"quantity"`
	Region       string   `json:"region"`
	Purpose      string   `json:"purpose"`
	Dependencies []string `json:"dependencies"`
}

type documentWire struct {
	ProjectTitle           string        `json:"project_title"`
	ArchitecturePattern    string        `json:"architecture_pattern"`
	Services               []serviceWire `json:"services"`
	Networking             []string      `json:"networking"`
	Security               []string      `json:"security"`
	Monitoring             []string      `json:"monitoring"`
	DeploymentNotes        []string      `json:"deployment_notes"`
	AlternativesConsidered []string      `json:"alternatives_considered"`
}

// Parse converts a model response into a document. Missing titles, patterns
// and regions are taken from spec and the suggested pattern; a missing or
// non-positive quantity becomes 1. A service without a name is rejected.
func Parse(text string, spec *api.SpecificationDocument, suggestedPattern string) (*api.ArchitectureDocument, error) {
	wire, err := llm.Decode[documentWire](StageName, text)
	if err != nil {
		return nil, err
	}

	doc := &api.ArchitectureDocument{
		ProjectTitle:           strings.TrimSpace(wire.ProjectTitle),
		ArchitecturePattern:    strings.TrimSpace(wire.ArchitecturePattern),
		Services:               make([]api.AzureService, 0, len(wire.Services)),
		Networking:             api.NonNil(wire.Networking),
		Security:               api.NonNil(wire.Security),
		Monitoring:             api.NonNil(wire.Monitoring),
		DeploymentNotes:        api.NonNil(wire.DeploymentNotes),
		AlternativesConsidered: api.NonNil(wire.AlternativesConsidered),
	}
	if doc.ProjectTitle == "" {
		doc.ProjectTitle = spec.ProjectTitle
	}
	if doc.ArchitecturePattern == "" {
		doc.ArchitecturePattern = suggestedPattern
	}

	region := spec.TargetRegion
	if region == "" {
		region = api.DefaultRegion
	}
	for i, w := range wire.Services {
		svc := api.AzureService{
			ServiceName:  strings.TrimSpace(w.ServiceName),
			SKU:          strings.TrimSpace(w.SKU),
			Quantity:     1,
			Region:       strings.TrimSpace(w.Region),
			Purpose:      w.Purpose,
			Dependencies: api.NonNil(w.Dependencies),
		}
		if svc.ServiceName == "" {
			return nil, seerrors.NewMalformedResponseError(StageName,
				fmt.Sprintf("service %d has no service_name", i+1), "", nil)
		}
		if w.Quantity.Set && w.Quantity.Value > 0 {
			svc.Quantity = w.Quantity.Value
		}
		if svc.Region == "" {
			svc.Region = region
		}
		doc.Services = append(doc.Services, svc)
	}
	return doc, nil
}

// Degraded is the placeholder document used when the stage fails.
func Degraded(spec *api.SpecificationDocument, err error) *api.ArchitectureDocument {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	title := api.DefaultProjectTitle
	if spec != nil {
		title = spec.ProjectTitle
	}
	return &api.ArchitectureDocument{
		ProjectTitle:           title,
		ArchitecturePattern:    DegradedPattern,
		Services:               []api.AzureService{},
		Networking:             []string{},
		Security:               []string{},
		Monitoring:             []string{},
		DeploymentNotes:        []string{"Error occurred: " + msg},
		AlternativesConsidered: []string{},
	}
}
