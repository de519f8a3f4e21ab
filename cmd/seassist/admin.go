package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"se-assistant/db/ingestion"
	"se-assistant/decision/catalog"
	"se-assistant/decision/pipeline"
	"se-assistant/decision/policy"
	"se-assistant/internal/pricing"
	"se-assistant/pkg/api"
)

// =============================================================================
// PRICING COMMAND
// =============================================================================

func pricingCommand() *cli.Command {
	return &cli.Command{
		Name:  "pricing",
		Usage: "Search and ingest retail prices",
		Subcommands: []*cli.Command{
			{
				Name:  "search",
				Usage: "Search a public price list",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "provider",
						Value: "azure",
						Usage: "Price list (azure, aws)",
					},
					&cli.StringFlag{
						Name:     "service",
						Usage:    "Azure service name, or AWS service code such as AmazonEC2",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "region",
						Usage: "Azure region (eastus) or AWS location filter",
					},
					&cli.StringFlag{
						Name:  "sku",
						Usage: "SKU substring (Azure only)",
					},
					&cli.StringSliceFlag{
						Name:  "filter",
						Usage: "AWS TERM_MATCH filter as field=value, repeatable",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print records as JSON",
					},
				},
				Action: runPriceSearch,
			},
			{
				Name:  "ingest",
				Usage: "Store the Azure price list for a service and region as a snapshot in ClickHouse",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "service",
						Usage:    "Azure service name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "region",
						Usage:    "Azure region",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "sku",
						Usage: "SKU substring",
					},
				},
				Action: runPriceIngest,
			},
			{
				Name:  "snapshots",
				Usage: "List ingested price snapshots",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "region",
						Usage: "Only list snapshots for this region",
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
					},
				},
				Action: runListSnapshots,
			},
		},
	}
}

func runPriceSearch(c *cli.Context) error {
	cfg := configFrom(c)
	ctx := c.Context

	var records []api.PriceRecord
	switch c.String("provider") {
	case "azure":
		client := pricing.NewClient(retailConfig(cfg))
		defer client.Close()
		records = client.Search(ctx, pricing.Query{
			ServiceName: c.String("service"),
			Region:      c.String("region"),
			SKU:         c.String("sku"),
		})
	case "aws":
		filters, err := parseFilters(c.StringSlice("filter"))
		if err != nil {
			return err
		}
		if region := c.String("region"); region != "" {
			filters["location"] = region
		}
		client, err := pricing.NewAWSClient(ctx, cfg.AWS.Region)
		if err != nil {
			return err
		}
		records, err = client.Search(ctx, c.String("service"), filters)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown provider %q (azure, aws)", c.String("provider"))
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(api.NonNil(records))
	}
	writePriceTable(os.Stdout, records)
	return nil
}

// parseFilters turns field=value pairs into a filter map.
func parseFilters(pairs []string) (map[string]string, error) {
	filters := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q, want field=value", p)
		}
		filters[k] = strings.TrimSpace(v)
	}
	return filters, nil
}

func writePriceTable(w io.Writer, records []api.PriceRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No prices found.")
		return
	}
	fmt.Fprintf(w, "%-28s %-24s %-14s %12s  %s\n", "SERVICE", "SKU", "REGION", "UNIT PRICE", "UNIT")
	for _, r := range records {
		fmt.Fprintf(w, "%-28s %-24s %-14s %12.4f  %s\n",
			truncate(r.ServiceName, 28), truncate(r.SKUName, 24), truncate(r.Region, 14), r.UnitPrice, r.UnitOfMeasure)
	}
	fmt.Fprintf(w, "\n%d record(s)\n", len(records))
}

func runPriceIngest(c *cli.Context) error {
	cfg := configFrom(c)
	ctx := c.Context

	store, err := openClickHouse(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	client := pricing.NewClient(retailConfig(cfg))
	defer client.Close()

	result, err := ingestion.NewClickHouseAdapter(client, store).IngestPricing(ctx, ingestion.IngestionInput{
		ServiceName: c.String("service"),
		Region:      c.String("region"),
		SKU:         c.String("sku"),
	})
	if err != nil {
		return err
	}

	if result.Unchanged {
		fmt.Printf("Price list unchanged; snapshot %s is current (%d records)\n", result.SnapshotID, result.RecordCount)
		return nil
	}
	fmt.Printf("✅ Ingested %d records into snapshot %s in %s\n", result.RecordCount, result.SnapshotID, result.Duration)
	return nil
}

func runListSnapshots(c *cli.Context) error {
	cfg := configFrom(c)
	store, err := openClickHouse(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	snapshots, err := store.ListSnapshots(c.Context, c.String("region"), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Println("No snapshots.")
		return nil
	}
	for _, s := range snapshots {
		fmt.Printf("%s  %-24s %-12s %5d records  %s  %s...\n",
			s.ID, truncate(s.ServiceName, 24), s.Region, s.RecordCount, s.FetchedAt.Format("2006-01-02 15:04"), s.Hash[:min(12, len(s.Hash))])
	}
	return nil
}

// =============================================================================
// CATALOG COMMAND
// =============================================================================

func catalogCommand() *cli.Command {
	catalogFlag := &cli.StringFlag{
		Name:  "catalog",
		Usage: "Load the service catalog from a YAML file instead of the built-in one",
	}
	return &cli.Command{
		Name:  "catalog",
		Usage: "Browse the Azure service catalog",
		Flags: []cli.Flag{catalogFlag},
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List catalog services",
				Action: func(c *cli.Context) error {
					cat, err := loadCatalog(c)
					if err != nil {
						return err
					}
					writeServiceList(os.Stdout, cat.Services())
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Show one service",
				ArgsUsage: "<service name>",
				Action: func(c *cli.Context) error {
					cat, err := loadCatalog(c)
					if err != nil {
						return err
					}
					name := strings.Join(c.Args().Slice(), " ")
					info, ok := cat.Info(name)
					if !ok {
						return fmt.Errorf("unknown service %q", name)
					}
					writeServiceInfo(os.Stdout, info)
					return nil
				},
			},
			{
				Name:      "recommend",
				Usage:     "Recommend services and a pattern for requirement texts",
				ArgsUsage: "<requirement> [requirement...]",
				Action: func(c *cli.Context) error {
					cat, err := loadCatalog(c)
					if err != nil {
						return err
					}
					reqs := c.Args().Slice()
					fmt.Printf("Pattern: %s\n\nServices:\n", cat.SuggestPattern(reqs))
					for _, s := range cat.Recommend(reqs) {
						fmt.Printf("  • %s\n", s)
					}
					return nil
				},
			},
			{
				Name:  "patterns",
				Usage: "List architecture patterns",
				Action: func(c *cli.Context) error {
					cat, err := loadCatalog(c)
					if err != nil {
						return err
					}
					for _, p := range cat.Patterns() {
						fmt.Printf("%s\n  %s\n  Services: %s\n\n", p.Name, p.Description, strings.Join(p.Services, ", "))
					}
					return nil
				},
			},
		},
	}
}

func loadCatalog(c *cli.Context) (*catalog.Catalog, error) {
	if path := c.String("catalog"); path != "" {
		return catalog.Load(path)
	}
	return catalog.Default(), nil
}

func writeServiceList(w io.Writer, services []catalog.ServiceInfo) {
	for _, s := range services {
		fmt.Fprintf(w, "%-32s %s\n", s.Name, truncate(s.Description, 60))
	}
}

func writeServiceInfo(w io.Writer, info catalog.ServiceInfo) {
	fmt.Fprintf(w, "%s\n%s\n\n", info.Name, info.Description)
	fmt.Fprintf(w, "Use cases: %s\n", strings.Join(info.UseCases, ", "))
	fmt.Fprintf(w, "SKUs:      %s\n", strings.Join(info.SKUs, ", "))
	fmt.Fprintf(w, "Features:  %s\n", strings.Join(info.Features, ", "))
	if info.Documentation != "" {
		fmt.Fprintf(w, "Docs:      %s\n", info.Documentation)
	}
}

// =============================================================================
// HISTORY COMMAND
// =============================================================================

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Browse stored pipeline runs",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
					},
				},
				Action: func(c *cli.Context) error {
					store, err := requireRunStore(c.Context, configFrom(c))
					if err != nil {
						return err
					}
					defer store.Close()

					runs, err := store.ListRuns(c.Context, c.Int("limit"))
					if err != nil {
						return err
					}
					writeRunList(os.Stdout, runs)
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Show the report of a stored run",
				ArgsUsage: "<run id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format (text, json, markdown)",
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one run id")
					}
					if err := validFormat(c.String("format")); err != nil {
						return err
					}
					result, err := loadStoredRun(c, c.Args().First())
					if err != nil {
						return err
					}
					return renderResult(os.Stdout, c.String("format"), result, nil)
				},
			},
		},
	}
}

func loadStoredRun(c *cli.Context, id string) (*pipeline.Result, error) {
	store, err := requireRunStore(c.Context, configFrom(c))
	if err != nil {
		return nil, err
	}
	defer store.Close()

	rec, err := store.GetRun(c.Context, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return pipeline.DecodeResult(*rec)
}

func writeRunList(w io.Writer, runs []api.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		status := "ok"
		switch {
		case !r.Success:
			status = "failed"
		case len(r.StageErrors) > 0:
			status = "degraded"
		}
		fmt.Fprintf(w, "%s  %s  %-8s %-30s $%10.2f/mo  %d service(s)\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04"), status, truncate(r.ProjectTitle, 30), r.TotalMonthlyCost, r.ServiceCount)
	}
}

// =============================================================================
// POLICY COMMAND
// =============================================================================

func policyCommand() *cli.Command {
	return &cli.Command{
		Name:  "policy",
		Usage: "Review runs against policies",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List built-in policies and loaded rego modules",
				Action: func(c *cli.Context) error {
					engine, err := policy.NewEngine(c.Context, configFrom(c).PoliciesDir)
					if err != nil {
						return err
					}
					fmt.Println("Built-in Policies:")
					for _, p := range engine.Policies() {
						fmt.Printf("  - %s (%s): %s\n", p.ID, p.Severity, p.Description)
					}
					fmt.Println("\nRego Modules:")
					for _, m := range engine.Modules() {
						fmt.Printf("  - %s\n", m)
					}
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "Review a stored run or an analyze --format json file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Stored run id",
					},
					&cli.StringFlag{
						Name:  "file",
						Usage: "Output of analyze --format json",
					},
					&cli.Float64Flag{
						Name:  "budget",
						Usage: "Customer monthly budget in USD",
					},
				},
				Action: runPolicyCheck,
			},
			{
				Name:      "validate",
				Usage:     "Compile every rego file in a directory",
				ArgsUsage: "<dir>",
				Action: func(c *cli.Context) error {
					dir := c.Args().First()
					if dir == "" {
						dir = configFrom(c).PoliciesDir
					}
					if dir == "" {
						return fmt.Errorf("no policy directory given")
					}
					if err := policy.ValidateDir(c.Context, dir); err != nil {
						return err
					}
					fmt.Printf("✅ Policies in %s compile\n", dir)
					return nil
				},
			},
		},
	}
}

func runPolicyCheck(c *cli.Context) error {
	var (
		result *pipeline.Result
		err    error
	)
	switch {
	case c.String("run") != "":
		result, err = loadStoredRun(c, c.String("run"))
	case c.String("file") != "":
		result, err = readResultFile(c.String("file"))
	default:
		return fmt.Errorf("pass --run or --file")
	}
	if err != nil {
		return err
	}

	engine, err := policy.NewEngine(c.Context, configFrom(c).PoliciesDir)
	if err != nil {
		return err
	}
	review, err := engine.Evaluate(c.Context, policy.BuildInput(result, budgetFlag(c)))
	if err != nil {
		return err
	}
	writeReviewText(os.Stdout, review)
	if review.Decision == policy.DecisionDeny {
		return cli.Exit("", ExitPolicyDenied)
	}
	return nil
}

// readResultFile accepts the analyze JSON document or a bare run result.
func readResultFile(path string) (*pipeline.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var out JSONOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if out.Result != nil {
		return out.Result, nil
	}
	var result pipeline.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &result, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
