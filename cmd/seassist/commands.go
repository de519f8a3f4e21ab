package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"se-assistant/api"
	"se-assistant/decision/pipeline"
	"se-assistant/decision/policy"
	"se-assistant/internal/pricing"
)

// ExitPolicyDenied is the exit status when review policies deny an estimate.
const ExitPolicyDenied = 2

// =============================================================================
// ANALYZE COMMAND
// =============================================================================

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Run customer requirements through the specification, architecture and pricing stages",
		ArgsUsage: "[requirements text]",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Read requirements from a file ('-' for stdin)",
			},
		}, runFlags()...),
		Action: func(c *cli.Context) error {
			input, err := readInput(c.String("input"), c.Args().Slice(), os.Stdin)
			if err != nil {
				return err
			}
			return runPipeline(c, input)
		},
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "text",
			Usage:   "Output format (text, json, markdown)",
		},
		&cli.Float64Flag{
			Name:  "budget",
			Usage: "Customer monthly budget in USD for policy review",
		},
		&cli.BoolFlag{
			Name:  "skip-review",
			Usage: "Skip policy review",
		},
	}
}

// readInput takes requirements from a file, stdin or the arguments.
func readInput(path string, args []string, stdin io.Reader) (string, error) {
	var text string
	switch {
	case path == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(b)
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		text = string(b)
	default:
		text = strings.Join(args, " ")
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no requirements given; pass text, --input FILE or --input -")
	}
	return text, nil
}

func runPipeline(c *cli.Context, input string) error {
	format := c.String("format")
	if err := validFormat(format); err != nil {
		return err
	}

	ctx := c.Context
	d, err := buildDeps(ctx, configFrom(c), true)
	if err != nil {
		return err
	}
	defer d.cleanup()

	fmt.Fprintf(os.Stderr, "🔍 Analyzing %d characters of requirements...\n", len(input))
	result := d.coordinator.Run(ctx, input)

	var review *policy.EvaluationResult
	if result.Success && !c.Bool("skip-review") {
		review, err = d.reviewer.Evaluate(ctx, policy.BuildInput(result, budgetFlag(c)))
		if err != nil {
			return fmt.Errorf("policy review failed: %w", err)
		}
	}

	if err := renderResult(os.Stdout, format, result, review); err != nil {
		return err
	}
	return exitStatus(result, review)
}

func budgetFlag(c *cli.Context) *float64 {
	if !c.IsSet("budget") {
		return nil
	}
	b := c.Float64("budget")
	return &b
}

func validFormat(format string) error {
	switch format {
	case "text", "json", "markdown":
		return nil
	}
	return fmt.Errorf("unknown format %q (text, json, markdown)", format)
}

func exitStatus(result *pipeline.Result, review *policy.EvaluationResult) error {
	if !result.Success {
		return cli.Exit("", 1)
	}
	if review != nil && review.Decision == policy.DecisionDeny {
		return cli.Exit("", ExitPolicyDenied)
	}
	return nil
}

// =============================================================================
// OUTPUT FORMATTERS
// =============================================================================

// JSONOutput is the analyze --format json document.
type JSONOutput struct {
	Result *pipeline.Result         `json:"result"`
	Review *policy.EvaluationResult `json:"review,omitempty"`
}

func renderResult(w io.Writer, format string, result *pipeline.Result, review *policy.EvaluationResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(JSONOutput{Result: result, Review: review})
	case "markdown":
		fmt.Fprint(w, pipeline.FormatMarkdown(result))
		writeReviewMarkdown(w, review)
	default:
		fmt.Fprintln(w, pipeline.FormatReport(result))
		writeReviewText(w, review)
	}
	return nil
}

func decisionLabel(d policy.Decision) string {
	switch d {
	case policy.DecisionPass:
		return "✅ PASS"
	case policy.DecisionWarn:
		return "⚠️  WARN"
	default:
		return "❌ DENY"
	}
}

func writeReviewText(w io.Writer, review *policy.EvaluationResult) {
	if review == nil {
		return
	}
	fmt.Fprintf(w, "Policy Review: %s\n", decisionLabel(review.Decision))
	for _, v := range review.Violations {
		fmt.Fprintf(w, "  ❌ %s\n", v.Message)
	}
	for _, warn := range review.Warnings {
		fmt.Fprintf(w, "  ⚠️  %s\n", warn.Message)
	}
}

func writeReviewMarkdown(w io.Writer, review *policy.EvaluationResult) {
	if review == nil {
		return
	}
	fmt.Fprintf(w, "## Policy Review: %s\n\n", review.Decision)
	for _, v := range review.Violations {
		fmt.Fprintf(w, "- **%s**: %s\n", v.PolicyID, v.Message)
	}
	for _, warn := range review.Warnings {
		fmt.Fprintf(w, "- %s\n", warn.Message)
	}
}

// =============================================================================
// DEMO COMMAND
// =============================================================================

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "Run a built-in customer scenario",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "scenario",
				Aliases: []string{"s"},
				Value:   "website",
				Usage:   "Scenario (" + strings.Join(scenarioNames(), ", ") + ")",
			},
			&cli.BoolFlag{
				Name:  "list",
				Usage: "List scenarios and exit",
			},
		}, runFlags()...),
		Action: func(c *cli.Context) error {
			if c.Bool("list") {
				for _, s := range scenarios {
					fmt.Printf("  %-10s %s\n", s.Name, s.Title)
				}
				return nil
			}
			s, ok := findScenario(c.String("scenario"))
			if !ok {
				return fmt.Errorf("unknown scenario %q (%s)", c.String("scenario"), strings.Join(scenarioNames(), ", "))
			}
			fmt.Fprintf(os.Stderr, "\n%s\nDEMO SCENARIO: %s\n%s\n", strings.Repeat("=", 80), s.Title, strings.Repeat("=", 80))
			return runPipeline(c, s.Input)
		},
	}
}

// =============================================================================
// SERVE COMMAND (API SERVER)
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "API server port",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg := configFrom(c)
	ctx := c.Context

	d, err := buildDeps(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer d.cleanup()

	srvCfg := api.DefaultConfig()
	srvCfg.Port = cfg.Server.Port
	if c.IsSet("port") {
		srvCfg.Port = c.Int("port")
	}
	srvCfg.CORSOrigins = cfg.Server.CORSOrigins
	srvCfg.AuthUser = cfg.Server.AuthUser
	srvCfg.AuthPass = cfg.Server.AuthPass

	prices := pricing.NewCachedClient(pricing.NewClient(retailConfig(cfg)), pricing.NewCache(cfg.PriceTTL))
	defer prices.Close()

	deps := api.Deps{
		Analyzer: d.coordinator,
		Reviewer: d.reviewer,
		Catalog:  d.catalog,
		Prices:   prices,
	}
	if d.store != nil {
		deps.History = d.store
		deps.Pingers = append(deps.Pingers, d.store)
	}

	return api.NewServer(deps, srvCfg).StartWithGracefulShutdown(ctx)
}
