package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RegistryBackend != RegistryStatic {
		t.Fatalf("backend=%q", cfg.RegistryBackend)
	}
	if cfg.RetryMax != 3 || cfg.RetryBase != 500*time.Millisecond || cfg.RetryCap != 16*time.Second {
		t.Fatalf("retry config=%+v", cfg)
	}
	if cfg.AccountConcurrency != 2 || cfg.CacheTTL != time.Minute {
		t.Fatalf("concurrency=%d ttl=%s", cfg.AccountConcurrency, cfg.CacheTTL)
	}
	if cfg.HourlyMutationCap != 30 || cfg.MaxBudgetIncreasePct != 25 || cfg.PolicyMode != "warn" {
		t.Fatalf("policy config=%+v", cfg)
	}
	if cfg.GlobalTokenRef != "env:PROMOGATE_ACCESS_TOKEN" {
		t.Fatalf("token ref=%q", cfg.GlobalTokenRef)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PROMOGATE_REGISTRY_BACKEND", "postgres")
	t.Setenv("PROMOGATE_REGISTRY_DSN", "postgres://localhost/promogate")
	t.Setenv("PROMOGATE_RETRY_MAX", "5")
	t.Setenv("PROMOGATE_POLICY_MODE", "block")
	t.Setenv("PROMOGATE_REGULATED_REGIONS", "DE,AT,FR")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RegistryBackend != RegistryPostgres || cfg.RetryMax != 5 || cfg.PolicyMode != "block" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if len(cfg.RegulatedRegions) != 3 || cfg.RegulatedRegions[0] != "DE" {
		t.Fatalf("regions=%v", cfg.RegulatedRegions)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"unknown backend", func(c *Config) { c.RegistryBackend = "etcd" }, "invalid registry backend"},
		{"postgres without dsn", func(c *Config) { c.RegistryBackend = RegistryPostgres; c.RegistryDSN = "" }, "requires PROMOGATE_REGISTRY_DSN"},
		{"static without path", func(c *Config) { c.RegistryPath = " " }, "requires PROMOGATE_REGISTRY_PATH"},
		{"bad policy mode", func(c *Config) { c.PolicyMode = "audit" }, "invalid policy mode"},
		{"zero concurrency", func(c *Config) { c.AccountConcurrency = 0 }, "at least 1"},
		{"negative retries", func(c *Config) { c.RetryMax = -1 }, "not be negative"},
		{"bad region", func(c *Config) { c.RegulatedRegions = []string{"DEU"} }, "invalid regulated region"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tc.mutate(&cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("err=%v, want %q", err, tc.wantMsg)
			}
		})
	}
}
