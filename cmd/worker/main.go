// Command worker runs the lead ingestion worker: it leases jobs from the
// durable queue, enriches and analyzes each lead, grounds the analysis,
// and drives it through the MCP orchestrator to the CRM.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/leadcatalyst/core/internal/config"
	"github.com/leadcatalyst/core/internal/litemode"
	"github.com/leadcatalyst/core/pkg/ai"
	"github.com/leadcatalyst/core/pkg/audit"
	"github.com/leadcatalyst/core/pkg/enrichment"
	"github.com/leadcatalyst/core/pkg/lead"
	"github.com/leadcatalyst/core/pkg/mcp"
	"github.com/leadcatalyst/core/pkg/metrics"
	"github.com/leadcatalyst/core/pkg/queue"
	"github.com/leadcatalyst/core/pkg/tools"
	"github.com/leadcatalyst/core/pkg/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(mustParseRedisURL(cfg.RedisURL))
	defer rdb.Close()

	var (
		leadStore  lead.Store
		auditStore audit.Store
		db         *sql.DB
		err        error
	)
	if litemode.Enabled(cfg.DatabaseURL) {
		leadStore, auditStore, db, err = litemode.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("worker: open lite-mode store: %w", err)
		}
		logger.Info("worker running in lite mode", "database_url", cfg.DatabaseURL)
	} else {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("worker: open database: %w", err)
		}
		pgLeads := lead.NewPostgresStore(db)
		if err := pgLeads.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("worker: ensure lead schema: %w", err)
		}
		pgAudit := audit.NewPostgresStore(db)
		if err := pgAudit.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("worker: ensure audit schema: %w", err)
		}
		leadStore, auditStore = pgLeads, pgAudit
	}
	defer db.Close()

	limiterProfile, err := config.LoadLimiterProfile(os.Getenv("LIMITER_PROFILE_PATH"))
	if err != nil {
		return fmt.Errorf("worker: load limiter profile: %w", err)
	}

	rec, err := metrics.New()
	if err != nil {
		return fmt.Errorf("worker: build metrics recorder: %w", err)
	}

	registry := tools.NewRegistry()
	if err := registry.RegisterRequiredTools(); err != nil {
		return fmt.Errorf("worker: register tools: %w", err)
	}
	executor := tools.NewMockExecutor(registry, auditStore, string(cfg.CRMProvider), rec)

	guard := mcp.NewGuard()
	limiter := mcp.NewRateLimiter(rdb, limiterConfigFromProfile(limiterProfile), logger)
	idem := mcp.NewStore(rdb, logger)
	breakers := mcp.NewRegistry(mcp.DefaultBreakerConfig())
	orchestrator := mcp.NewOrchestrator(guard, limiter, idem, breakers, executor, string(cfg.CRMProvider), rec, logger)

	w := worker.New(
		queue.New(rdb),
		leadStore,
		enrichment.NewStaticProvider(nil),
		ai.NewStubProvider(),
		orchestrator,
		rec,
		logger,
		cfg.WorkerConcurrency,
	)
	w.WallClockCap = cfg.JobWallClockCap

	logger.Info("worker starting", "crm_provider", cfg.CRMProvider, "concurrency", cfg.WorkerConcurrency)
	return w.Run(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func mustParseRedisURL(raw string) *redis.Options {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		// Fall back to a bare address so local dev without a full URL still works.
		return &redis.Options{Addr: raw}
	}
	return opts
}

func limiterConfigFromProfile(p config.LimiterProfile) mcp.LimiterConfig {
	return mcp.LimiterConfig{
		PerLead:    mcp.TierLimit{Limit: int(p.PerLeadLimit), Window: time.Duration(p.PerLeadWindow) * time.Second},
		PerAccount: mcp.TierLimit{Limit: int(p.PerAccountLim), Window: time.Duration(p.AccountWindow) * time.Second},
		Global:     mcp.TierLimit{Limit: int(p.GlobalLimit), Window: time.Duration(p.GlobalWindow) * time.Second},
		DefaultCRM: mcp.TierLimit{Limit: int(p.CRMProviderCap), Window: time.Duration(p.CRMWindow) * time.Second},
	}
}
