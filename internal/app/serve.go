package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/promogate/promogate/internal/ads"
	"github.com/promogate/promogate/internal/assets"
	"github.com/promogate/promogate/internal/compliance"
	"github.com/promogate/promogate/internal/config"
	"github.com/promogate/promogate/internal/graph"
	"github.com/promogate/promogate/internal/mcp"
	"github.com/promogate/promogate/internal/pages"
	"github.com/promogate/promogate/internal/policy"
	"github.com/promogate/promogate/internal/tenant"
)

func serveCmd(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	dotenvPath := fs.String("dotenv", "", "")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "serve: unexpected positional arguments")
		return 2
	}

	if *dotenvPath != "" {
		if err := loadDotenv(*dotenvPath); err != nil {
			fmt.Fprintf(os.Stderr, "serve: %v\n", err)
			return 1
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}

	logger, logCloser, err := newLoggerToSink(cfg.LogLevel, cfg.LogOutput, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runServe(ctx, cfg, logger); err != nil {
		logger.Error("serve_failed", slog.Any("err", err))
		return 1
	}
	return 0
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.TracingEnabled {
		shutdown, err := initTracing(ctx, cfg, func(err error) {
			logger.Warn("tracing_error", slog.Any("err", err))
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("tracing_shutdown_failed", slog.Any("err", err))
			}
		}()
	}

	guard, namer, tenantRef, closeRegistry, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closeRegistry != nil {
		defer closeRegistry()
	}

	if dir := filepath.Dir(cfg.AssetDBPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create asset db directory: %w", err)
		}
	}
	store, err := assets.NewSQLiteStore(cfg.AssetDBPath)
	if err != nil {
		return fmt.Errorf("open asset store: %w", err)
	}
	defer store.Close()

	tokens := &graph.RefTokenProvider{
		TenantRef: tenantRef,
		GlobalRef: cfg.GlobalTokenRef,
	}
	client := graph.NewClient(
		cfg.GraphBaseURL,
		tracingHTTPClient(cfg.TracingEnabled),
		tokens,
		guard,
		graph.RetryConfig{
			Max:    cfg.RetryMax,
			Base:   cfg.RetryBase,
			Cap:    cfg.RetryCap,
			Jitter: cfg.RetryJitter,
		},
		logger,
	)

	counters := ads.NewCounters()
	client.OnRetry = func(string, int) { counters.CountUpstreamRetry() }

	engine := policy.NewEngine(policy.Config{
		HourlyMutationCap:    cfg.HourlyMutationCap,
		MaxBudgetIncreasePct: cfg.MaxBudgetIncreasePct,
		BroadAgeSpanYears:    cfg.BroadAgeSpanYears,
		Mode:                 policy.Enforcement(cfg.PolicyMode),
	})

	comp := compliance.NewService(store, client, namer, logger)
	if len(cfg.RegulatedRegions) > 0 {
		regions := make(map[string]struct{}, len(cfg.RegulatedRegions))
		for _, r := range cfg.RegulatedRegions {
			regions[r] = struct{}{}
		}
		comp.Regions = regions
	}

	svc := ads.New(ads.Deps{
		Graph:      client,
		Guard:      guard,
		Policy:     engine,
		Queue:      graph.NewAccountQueue(cfg.AccountConcurrency),
		Cache:      graph.NewCache(),
		Cooldown:   graph.NewCooldown(),
		Pages:      pages.NewResolver(store, guard, logger),
		Compliance: comp,
		Store:      store,
		Logger:     logger,
		Counters:   counters,
		CacheTTL:   cfg.CacheTTL,
	})

	server := mcp.NewServer(svc, logger,
		mcp.WithTenant(cfg.Tenant),
		mcp.WithPrincipal(cfg.Principal),
		mcp.WithPlatformAdmin(cfg.PlatformAdmin),
		mcp.WithReadOnly(cfg.ReadOnly),
		mcp.WithVersion(version),
	)

	logger.Info("serve_start",
		slog.String("version", version),
		slog.String("registry_backend", cfg.RegistryBackend),
		slog.Bool("read_only", cfg.ReadOnly),
	)
	err = server.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("serve_stop")
	return nil
}

// buildRegistry constructs the configured isolation guard backend. The
// static backend also provides credential refs and compliance display
// names; the sql backend leaves both to the global configuration.
func buildRegistry(ctx context.Context, cfg config.Config, logger *slog.Logger) (tenant.AccountIsolationGuard, compliance.TenantNamer, func(tenantID string) (string, bool), func() error, error) {
	switch cfg.RegistryBackend {
	case config.RegistryStatic:
		reg, err := tenant.NewStaticRegistry(cfg.RegistryPath, logger)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("load tenant registry: %w", err)
		}
		if cfg.WatchRegistry {
			go reg.Watch(ctx)
		}
		return reg, reg, reg.CredentialRef, nil, nil
	case config.RegistryPostgres:
		reg, err := tenant.OpenSQLRegistry(ctx, cfg.RegistryDSN)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return reg, noNamer{}, nil, reg.Close, nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("invalid registry backend %q", cfg.RegistryBackend)
	}
}

type noNamer struct{}

func (noNamer) DisplayName(string) (string, bool) { return "", false }
