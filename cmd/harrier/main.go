// Harrier - On-chain account fraud scoring that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/detect"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/index"
	"github.com/opensource-finance/harrier/internal/ledger"
	"github.com/opensource-finance/harrier/internal/oracle"
	"github.com/opensource-finance/harrier/internal/pipeline"
	"github.com/opensource-finance/harrier/internal/repository"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"neighbors_k", cfg.Index.K,
	)

	if cfg.Ledger.RPCURL == "" {
		slog.Error("HARRIER_RPC_URL is required: set it to an Alchemy-compatible JSON-RPC endpoint")
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Ledger client
	ledgerClient, err := ledger.New(cfg.Ledger, logger)
	if err != nil {
		slog.Error("failed to initialize ledger client", "error", err)
		os.Exit(1)
	}
	defer ledgerClient.Close()
	slog.Info("ledger client initialized")

	// Initialize Screening Engine and load rules from the database
	// (no hardcoded defaults - configure via POST /rules)
	screening, err := detect.NewScreeningEngine()
	if err != nil {
		slog.Error("failed to initialize screening engine", "error", err)
		os.Exit(1)
	}
	if err := loadRulesFromDatabase(ctx, repo, screening); err != nil {
		slog.Error("failed to load screening rules", "error", err)
		os.Exit(1)
	}
	slog.Info("screening engine initialized", "rules_count", screening.RulesCount())

	// Initialize the reasoning oracle. Absent endpoint means every
	// request decides by deterministic fallback voting.
	var reasoner domain.ReasoningOracle
	if cfg.Oracle.Endpoint != "" {
		client, err := oracle.NewClient(cfg.Oracle, logger)
		if err != nil {
			slog.Error("failed to initialize oracle client", "error", err)
			os.Exit(1)
		}
		reasoner = client
		slog.Info("reasoning oracle initialized", "endpoint", cfg.Oracle.Endpoint)
	} else {
		slog.Warn("no oracle endpoint configured, using fallback voting only")
	}

	// Initialize the vector index and rebuild it from the persisted
	// reference population.
	idx := index.NewMemory()
	scalers := features.NewScalerStore()
	suite := detect.NewSuite(screening, logger)
	engine := pipeline.New(cfg, ledgerClient, cacheImpl, idx, repo, busImpl,
		reasoner, scalers, suite, logger)

	if err := rebuildIndex(ctx, repo, engine); err != nil {
		slog.Error("failed to rebuild reference index", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, engine, screening, repo, cacheImpl, busImpl, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// applyEnvOverrides lets single settings be changed without a config
// rebuild: endpoint URLs, credentials and the server port.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("HARRIER_RPC_URL"); v != "" {
		cfg.Ledger.RPCURL = v
	}
	if v := os.Getenv("HARRIER_ORACLE_ENDPOINT"); v != "" {
		cfg.Oracle.Endpoint = v
	}
	if v := os.Getenv("HARRIER_ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("HARRIER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HARRIER_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("HARRIER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("HARRIER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("HARRIER_NEIGHBORS_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			cfg.Index.K = k
		}
	}
}

// loadRulesFromDatabase loads screening rules into the engine.
// All rules are configured via POST /rules - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, screening *detect.ScreeningEngine) error {
	dbRules, err := repo.ListScreeningRules(ctx)
	if err != nil {
		slog.Warn("failed to list screening rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading screening rules from database", "count", len(dbRules))
		return screening.ReloadRules(dbRules)
	}

	slog.Info("no screening rules in database - configure via POST /rules API")
	return nil
}

// rebuildIndex restores the similarity index from the persisted
// reference population so scoring works across restarts.
func rebuildIndex(ctx context.Context, repo domain.Repository, engine *pipeline.Engine) error {
	vectors, err := repo.ListReferenceVectors(ctx)
	if err != nil {
		return err
	}
	if len(vectors) == 0 {
		slog.Info("no reference population persisted - load one via POST /reference/load")
		return nil
	}

	count, err := engine.LoadReference(ctx, vectors)
	if err != nil {
		return err
	}
	slog.Info("reference index rebuilt", "rows", count)
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 HARRIER                  ║")
	fmt.Println("  ║      Account Fraud Scoring Engine         ║")
	fmt.Println("  ║       Eyes on every address.              ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score                           - Score an address")
	fmt.Println("    GET  /scores/{reference}              - Scoring-ledger lookup")
	fmt.Println("    GET  /evaluations/{id}                - Get evaluation by ID")
	fmt.Println("    GET  /addresses/{address}/evaluations - Recent evaluations")
	fmt.Println("    POST /reference/load                  - Load labeled reference vectors")
	fmt.Println("    GET  /rules                           - List screening rules")
	fmt.Println("    POST /rules                           - Create a screening rule")
	fmt.Println("    POST /rules/reload                    - Hot-reload rules from database")
	fmt.Println("    GET  /health                          - Health check")
	fmt.Println()
}
