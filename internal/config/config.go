// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration. Every field can be set through
// a SEASSIST_ prefixed environment variable; CLI flags override them.
type Config struct {
	LLM        LLMConfig        `envPrefix:"LLM_"`
	Retail     RetailConfig     `envPrefix:"RETAIL_"`
	AWS        AWSConfig        `envPrefix:"AWS_PRICING_"`
	ClickHouse ClickHouseConfig `envPrefix:"CLICKHOUSE_"`
	Server     ServerConfig     `envPrefix:"SERVER_"`

	PostgresDSN string        `env:"POSTGRES_DSN"`
	RunStore    string        `env:"RUN_STORE" envDefault:"none"`
	PriceSource string        `env:"PRICE_SOURCE" envDefault:"retail"`
	PriceTTL    time.Duration `env:"PRICE_CACHE_TTL" envDefault:"6h"`
	PoliciesDir string        `env:"POLICIES_DIR"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty   bool          `env:"LOG_PRETTY" envDefault:"true"`
}

// LLMConfig selects and configures the chat-completion provider.
type LLMConfig struct {
	Provider    string  `env:"PROVIDER" envDefault:"openai"`
	Model       string  `env:"MODEL" envDefault:"gpt-4.1"`
	APIKey      string  `env:"API_KEY"`
	Endpoint    string  `env:"ENDPOINT"`
	APIVersion  string  `env:"API_VERSION" envDefault:"2024-06-01"`
	MaxTokens   int64   `env:"MAX_TOKENS" envDefault:"4096"`
	Temperature float64 `env:"TEMPERATURE" envDefault:"0.2"`
}

// RetailConfig configures the Azure Retail Prices client.
type RetailConfig struct {
	BaseURL    string        `env:"BASE_URL" envDefault:"https://prices.azure.com/api/retail/prices"`
	APIVersion string        `env:"API_VERSION" envDefault:"2023-01-01-preview"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// AWSConfig configures the AWS Price List client.
type AWSConfig struct {
	Region string `env:"REGION" envDefault:"us-east-1"`
}

// ClickHouseConfig configures the ClickHouse connection.
type ClickHouseConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"9000"`
	Database string `env:"DATABASE" envDefault:"seassist"`
	User     string `env:"USER" envDefault:"default"`
	Password string `env:"PASSWORD"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `env:"PORT" envDefault:"8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	AuthUser    string   `env:"AUTH_USER"`
	AuthPass    string   `env:"AUTH_PASS"`
}

// Providers understood by the model factory.
const (
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure-openai"
	ProviderAnthropic   = "anthropic"
)

// Run stores understood by the CLI.
const (
	StoreNone       = "none"
	StoreClickHouse = "clickhouse"
	StorePostgres   = "postgres"
)

// Price sources the pipeline can look unit prices up in.
const (
	PriceSourceRetail   = "retail"
	PriceSourceSnapshot = "snapshot"
)

// Load parses the environment into a Config.
func Load() (*Config, error) {
	return LoadWithEnv(nil)
}

// LoadWithEnv parses the given environment (or the process environment when
// nil) into a Config and validates it.
func LoadWithEnv(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: "SEASSIST_"}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAzureOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Provider == ProviderAzureOpenAI && c.LLM.Endpoint == "" {
		return fmt.Errorf("llm endpoint is required for %s", ProviderAzureOpenAI)
	}
	switch c.RunStore {
	case StoreNone, StoreClickHouse, StorePostgres:
	default:
		return fmt.Errorf("unknown run store %q", c.RunStore)
	}
	if c.RunStore == StorePostgres && c.PostgresDSN == "" {
		return fmt.Errorf("postgres dsn is required for run store %q", StorePostgres)
	}
	switch c.PriceSource {
	case PriceSourceRetail, PriceSourceSnapshot:
	default:
		return fmt.Errorf("unknown price source %q", c.PriceSource)
	}
	if c.Retail.Timeout <= 0 {
		return fmt.Errorf("retail timeout must be positive")
	}
	return nil
}
