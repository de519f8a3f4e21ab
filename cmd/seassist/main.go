// SE Assistant CLI - turns customer requirements into an Azure architecture
// and a priced bill of materials for solution engineer review.
//
// Usage:
//
//	seassist analyze --input requirements.txt [options]
//	seassist demo --scenario ecommerce
//	seassist serve --port 8080
//	seassist pricing search --service "Virtual Machines" --region eastus
//	seassist history list --run-store postgres
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"se-assistant/internal/config"
	"se-assistant/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "seassist",
		Usage:   "SE Specialist Architecture & Pricing Assistant",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "Write logs as JSON instead of console text",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "Model provider (openai, azure-openai, anthropic)",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Model or deployment name",
			},
			&cli.StringFlag{
				Name:  "run-store",
				Usage: "Run history store (none, clickhouse, postgres)",
			},
			&cli.StringFlag{
				Name:  "price-source",
				Usage: "Unit price source (retail, snapshot)",
			},
			&cli.StringFlag{
				Name:  "policies-dir",
				Usage: "Directory of extra rego review policies",
			},
		},

		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			platform.InitLogger(cfg.LogLevel, cfg.LogPretty)
			if c.App.Metadata == nil {
				c.App.Metadata = map[string]interface{}{}
			}
			c.App.Metadata[configKey] = cfg
			return nil
		},

		Commands: []*cli.Command{
			analyzeCommand(),
			demoCommand(),
			serveCommand(),
			pricingCommand(),
			catalogCommand(),
			historyCommand(),
			policyCommand(),
		},
	}
}

// loadConfig reads SEASSIST_ environment settings, then applies global
// flags that were set explicitly.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-json") {
		cfg.LogPretty = !c.Bool("log-json")
	}
	if c.IsSet("provider") {
		cfg.LLM.Provider = c.String("provider")
	}
	if c.IsSet("model") {
		cfg.LLM.Model = c.String("model")
	}
	if c.IsSet("run-store") {
		cfg.RunStore = c.String("run-store")
	}
	if c.IsSet("price-source") {
		cfg.PriceSource = c.String("price-source")
	}
	if c.IsSet("policies-dir") {
		cfg.PoliciesDir = c.String("policies-dir")
	}
}
