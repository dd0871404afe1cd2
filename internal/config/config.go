// Package config loads deployment configuration from the environment.
// Values are flat PROMOGATE_* variables; a .env file can seed them before
// parsing. Credentials are referenced indirectly (env:, file:, raw:
// schemes) and never logged.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Registry backends.
const (
	RegistryStatic   = "static"
	RegistryPostgres = "postgres"
)

type Config struct {
	// GraphBaseURL overrides the upstream API root. Empty uses the
	// built-in default.
	GraphBaseURL string `env:"PROMOGATE_GRAPH_BASE_URL"`
	// GlobalTokenRef is the fallback credential reference used when a
	// tenant has no credential of its own.
	GlobalTokenRef string `env:"PROMOGATE_TOKEN_REF" envDefault:"env:PROMOGATE_ACCESS_TOKEN"`

	RetryMax    int           `env:"PROMOGATE_RETRY_MAX" envDefault:"3"`
	RetryBase   time.Duration `env:"PROMOGATE_RETRY_BASE" envDefault:"500ms"`
	RetryCap    time.Duration `env:"PROMOGATE_RETRY_CAP" envDefault:"16s"`
	RetryJitter time.Duration `env:"PROMOGATE_RETRY_JITTER" envDefault:"250ms"`

	RegistryBackend string `env:"PROMOGATE_REGISTRY_BACKEND" envDefault:"static"`
	// RegistryPath is the tenant YAML file for the static backend.
	RegistryPath string `env:"PROMOGATE_REGISTRY_PATH" envDefault:"./tenants.yaml"`
	// RegistryDSN is the postgres connection string for the sql backend.
	RegistryDSN   string `env:"PROMOGATE_REGISTRY_DSN"`
	WatchRegistry bool   `env:"PROMOGATE_REGISTRY_WATCH" envDefault:"true"`

	AssetDBPath string `env:"PROMOGATE_ASSET_DB" envDefault:"./.data/promogate.db"`

	AccountConcurrency int           `env:"PROMOGATE_ACCOUNT_CONCURRENCY" envDefault:"2"`
	CacheTTL           time.Duration `env:"PROMOGATE_CACHE_TTL" envDefault:"60s"`

	HourlyMutationCap    int     `env:"PROMOGATE_POLICY_HOURLY_MUTATION_CAP" envDefault:"30"`
	MaxBudgetIncreasePct float64 `env:"PROMOGATE_POLICY_MAX_BUDGET_INCREASE_PCT" envDefault:"25"`
	BroadAgeSpanYears    int     `env:"PROMOGATE_POLICY_BROAD_AGE_SPAN" envDefault:"40"`
	PolicyMode           string  `env:"PROMOGATE_POLICY_MODE" envDefault:"warn"`

	// RegulatedRegions overrides the built-in EU/EEA country set.
	RegulatedRegions []string `env:"PROMOGATE_REGULATED_REGIONS" envSeparator:","`

	LogLevel  string `env:"PROMOGATE_LOG_LEVEL" envDefault:"info"`
	LogOutput string `env:"PROMOGATE_LOG_OUTPUT" envDefault:"stderr"`
	LogFile   string `env:"PROMOGATE_LOG_FILE"`

	TracingEnabled  bool   `env:"PROMOGATE_TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint string `env:"PROMOGATE_TRACING_ENDPOINT"`
	TracingInsecure bool   `env:"PROMOGATE_TRACING_INSECURE" envDefault:"false"`

	// MCP session binding.
	Tenant        string `env:"PROMOGATE_TENANT"`
	Principal     string `env:"PROMOGATE_PRINCIPAL"`
	PlatformAdmin bool   `env:"PROMOGATE_PLATFORM_ADMIN" envDefault:"false"`
	ReadOnly      bool   `env:"PROMOGATE_READ_ONLY" envDefault:"false"`
}

// Load parses and validates the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.RegistryBackend {
	case RegistryStatic:
		if strings.TrimSpace(c.RegistryPath) == "" {
			return fmt.Errorf("static registry backend requires PROMOGATE_REGISTRY_PATH")
		}
	case RegistryPostgres:
		if strings.TrimSpace(c.RegistryDSN) == "" {
			return fmt.Errorf("postgres registry backend requires PROMOGATE_REGISTRY_DSN")
		}
	default:
		return fmt.Errorf("invalid registry backend %q (use: static|postgres)", c.RegistryBackend)
	}
	switch c.PolicyMode {
	case "warn", "block":
	default:
		return fmt.Errorf("invalid policy mode %q (use: warn|block)", c.PolicyMode)
	}
	if c.AccountConcurrency < 1 {
		return fmt.Errorf("account concurrency must be at least 1, got %d", c.AccountConcurrency)
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("retry max must not be negative, got %d", c.RetryMax)
	}
	for _, region := range c.RegulatedRegions {
		if len(strings.TrimSpace(region)) != 2 {
			return fmt.Errorf("invalid regulated region %q (use two-letter country codes)", region)
		}
	}
	return nil
}
