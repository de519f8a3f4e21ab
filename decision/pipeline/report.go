package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"se-assistant/pkg/api"
	"se-assistant/pkg/units"
)

// ReportRequirementLimit is how many requirements the report lists.
const ReportRequirementLimit = 5

const (
	reportTitle  = "SE SPECIALIST ARCHITECTURE & PRICING REPORT"
	reportFooter = "This report is ready for SE review before presenting to customer."
)

var (
	heavyRule = strings.Repeat("=", 80)
	lightRule = strings.Repeat("-", 80)
	totalRule = strings.Repeat("─", 80)
)

// FormatReport renders a plain-text review report. A failed run renders as
// the error message only.
func FormatReport(r *Result) string {
	if !r.Success {
		msg := r.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return "ERROR: " + msg
	}

	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("\n%s", heavyRule)
	add("%s", reportTitle)
	add("%s\n", heavyRule)

	if spec := r.Specification; spec != nil {
		add("📋 SPECIFICATION")
		add("%s", lightRule)
		add("Project: %s", spec.ProjectTitle)
		add("Summary: %s\n", spec.Summary)

		add("Requirements (%d):", len(spec.Requirements))
		for i, req := range spec.Requirements {
			if i == ReportRequirementLimit {
				break
			}
			add("  [%s] %s", strings.ToUpper(string(req.Priority)), req.Description)
		}
		if n := len(spec.Requirements) - ReportRequirementLimit; n > 0 {
			add("  ... and %d more\n", n)
		}

		if len(spec.ClarifyingQuestions) > 0 {
			add("\nClarifying Questions:")
			for _, q := range spec.ClarifyingQuestions {
				add("  • %s", q)
			}
		}
		add("")
	}

	if arch := r.Architecture; arch != nil {
		add("\n🏗️ ARCHITECTURE")
		add("%s", lightRule)
		add("Pattern: %s\n", arch.ArchitecturePattern)

		add("Services:")
		for _, svc := range arch.Services {
			add("  • %s (%s) x%d", svc.ServiceName, svc.SKU, svc.Quantity)
			add("    Purpose: %s", svc.Purpose)
		}

		if len(arch.Networking) > 0 {
			add("\nNetworking: %s", strings.Join(arch.Networking, ", "))
		}
		if len(arch.Security) > 0 {
			add("Security: %s", strings.Join(arch.Security, ", "))
		}
		if len(arch.Monitoring) > 0 {
			add("Monitoring: %s", strings.Join(arch.Monitoring, ", "))
		}
		add("")
	}

	if est := r.Pricing; est != nil {
		add("\n💰 PRICING ESTIMATE")
		add("%s", lightRule)
		add("Region: %s", est.Region)
		add("Estimate Date: %s\n", est.EstimateDate.Format("2006-01-02"))

		add("Cost Breakdown:")
		for _, c := range est.CostEstimates {
			add("  • %s (%s) x%d", c.ServiceName, c.SKU, c.Quantity)
			add("    Monthly: $%.2f | Annual: $%.2f", c.MonthlyCost, c.AnnualCost)
		}

		add("\n%s", totalRule)
		add("TOTAL Monthly: $%.2f", est.TotalMonthlyCost)
		add("TOTAL Annual:  $%.2f", est.TotalAnnualCost)
		add("%s\n", totalRule)

		if len(est.SavingsOpportunities) > 0 {
			add("💡 Cost Optimization Opportunities:")
			for _, opp := range est.SavingsOpportunities {
				add("  • %s", opp)
			}
		}
		add("")
	}

	add("%s", heavyRule)
	add("%s", reportFooter)
	add("%s\n", heavyRule)

	return strings.Join(lines, "\n")
}

// FormatMarkdown renders the same content as FormatReport as Markdown, with
// every requirement and the price quotes behind each line.
func FormatMarkdown(r *Result) string {
	var b strings.Builder
	if !r.Success {
		fmt.Fprintf(&b, "**ERROR:** %s\n", r.Error)
		return b.String()
	}

	b.WriteString("# SE Specialist Architecture & Pricing Report\n\n")

	if spec := r.Specification; spec != nil {
		fmt.Fprintf(&b, "## Specification: %s\n\n%s\n\n", spec.ProjectTitle, spec.Summary)
		if len(spec.Requirements) > 0 {
			b.WriteString("| ID | Priority | Category | Requirement |\n|---|---|---|---|\n")
			for _, req := range spec.Requirements {
				fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", req.ID, req.Priority, req.Category, mdCell(req.Description))
			}
			b.WriteString("\n")
			fmt.Fprintf(&b, "**Priorities:** %d high, %d medium, %d low\n\n",
				len(spec.RequirementsByPriority(api.PriorityHigh)),
				len(spec.RequirementsByPriority(api.PriorityMedium)),
				len(spec.RequirementsByPriority(api.PriorityLow)))
		}
		writeMDList(&b, "Clarifying Questions", spec.ClarifyingQuestions)
		writeMDList(&b, "Assumptions", spec.Assumptions)
		writeMDList(&b, "Constraints", spec.Constraints)
	}

	if arch := r.Architecture; arch != nil {
		fmt.Fprintf(&b, "## Architecture: %s\n\n", arch.ArchitecturePattern)
		if len(arch.Services) > 0 {
			b.WriteString("| Service | SKU | Qty | Region | Purpose |\n|---|---|---|---|---|\n")
			for _, svc := range arch.Services {
				fmt.Fprintf(&b, "| %s | %s | %d | %s | %s |\n", svc.ServiceName, svc.SKU, svc.Quantity, svc.Region, mdCell(svc.Purpose))
			}
			b.WriteString("\n")
		}
		writeMDList(&b, "Networking", arch.Networking)
		writeMDList(&b, "Security", arch.Security)
		writeMDList(&b, "Monitoring", arch.Monitoring)
		writeMDList(&b, "Deployment Notes", arch.DeploymentNotes)
	}

	if est := r.Pricing; est != nil {
		fmt.Fprintf(&b, "## Pricing Estimate (%s, %s)\n\n", est.Region, est.EstimateDate.Format("2006-01-02"))
		if len(est.CostEstimates) > 0 {
			b.WriteString("| Service | SKU | Qty | Monthly | Annual |\n|---|---|---|---:|---:|\n")
			for _, c := range est.CostEstimates {
				fmt.Fprintf(&b, "| %s | %s | %d | $%.2f | $%.2f |\n", c.ServiceName, c.SKU, c.Quantity, c.MonthlyCost, c.AnnualCost)
			}
			b.WriteString("\n")
			writeShares(&b, est)
		}
		fmt.Fprintf(&b, "**Total Monthly:** $%.2f  \n**Total Annual:** $%.2f\n\n", est.TotalMonthlyCost, est.TotalAnnualCost)
		writeQuotes(&b, est.Quotes)
		writeMDList(&b, "Assumptions", est.Assumptions)
		writeMDList(&b, "Cost Optimization Opportunities", est.SavingsOpportunities)
	}

	if len(r.StageErrors) > 0 {
		b.WriteString("## Degraded Stages\n\n")
		for _, e := range r.StageErrors {
			fmt.Fprintf(&b, "- `%s` %s\n", e.Stage, e.Message)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeQuotes(b *strings.Builder, quotes []api.PriceQuote) {
	if len(quotes) == 0 {
		return
	}
	b.WriteString("### Unit Prices\n\n| Service | SKU | Unit Price | Source |\n|---|---|---:|---|\n")
	for _, q := range quotes {
		source := "retail catalog"
		if q.Fallback {
			source = "default estimate"
		}
		fmt.Fprintf(b, "| %s | %s | $%s per %s | %s |\n", q.ServiceName, q.SKU, units.UnitPrice(q.UnitPrice), q.UnitOfMeasure, source)
	}
	b.WriteString("\n")
}

// writeShares lists each service's share of the monthly total, largest first.
func writeShares(b *strings.Builder, est *api.PricingEstimate) {
	if est.TotalMonthlyCost <= 0 {
		return
	}
	breakdown := est.CostBreakdown()
	if len(breakdown) < 2 {
		return
	}
	names := make([]string, 0, len(breakdown))
	for name := range breakdown {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if breakdown[names[i]] != breakdown[names[j]] {
			return breakdown[names[i]] > breakdown[names[j]]
		}
		return names[i] < names[j]
	})
	b.WriteString("### Monthly Cost Share\n\n")
	for _, name := range names {
		fmt.Fprintf(b, "- %s: $%.2f (%.0f%%)\n", name, breakdown[name], breakdown[name]*100/est.TotalMonthlyCost)
	}
	b.WriteString("\n")
}

func writeMDList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func mdCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}
