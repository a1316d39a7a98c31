package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkdior/blocklab/internal/api"
	"github.com/mkdior/blocklab/internal/auction"
	"github.com/mkdior/blocklab/internal/chain"
	"github.com/mkdior/blocklab/internal/clock"
	"github.com/mkdior/blocklab/internal/config"
	"github.com/mkdior/blocklab/internal/funds"
	"github.com/mkdior/blocklab/internal/health"
	"github.com/mkdior/blocklab/internal/leader"
	"github.com/mkdior/blocklab/internal/store"
	"github.com/mkdior/blocklab/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/mkdior/blocklab/internal/store/otelstore"
	_ "github.com/mkdior/blocklab/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver (sqlx or otelsql).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	// Seed account balances from genesis.
	balances := make(map[string]decimal.Decimal, len(cfg.Genesis.Accounts))
	for i, acc := range cfg.Genesis.Accounts {
		amount, parseErr := decimal.NewFromString(acc.Balance)
		if parseErr != nil {
			return fmt.Errorf("genesis account %d (%s): %w", i, acc.Address, parseErr)
		}
		balances[acc.Address] = amount
	}
	bank := funds.NewMemoryLedgerWithBalances(balances)

	// Build the auction engine and its acceptance/settlement policy.
	engine := auction.NewEngine(bank, repos.Events, logger, tp.TracerProvider)
	engine.SetPolicy(auction.NewSlotPolicy(
		engine.Records(), engine.Escrow(), logger,
		auction.Height(cfg.Chain.SnipeWindow), auction.Height(cfg.Chain.SnipeExtension),
	))

	driver := chain.New(engine, cfg.Chain.StartHeight, cfg.Chain.StepInterval, logger, tp.TracerProvider)
	driver.AfterStep(chain.BalanceSnapshotter(bank, repos.Accounts, logger))

	// Seed auctions through the regular creation path.
	seeds := make([]auction.Seed, 0, len(cfg.Genesis.Auctions))
	for _, a := range cfg.Genesis.Auctions {
		s := auction.Seed{
			Creator: a.Creator,
			Origin:  a.Origin,
			Info: auction.CoreInfo{
				Timestamp:     a.Timestamp,
				NumContainers: a.NumContainers,
				NumTEU:        a.NumTEU,
			},
			Start: auction.Height(a.Start),
		}
		if a.End != nil {
			h := auction.Height(*a.End)
			s.End = &h
		}
		seeds = append(seeds, s)
	}
	if err := engine.ApplySeeds(ctx, seeds); err != nil {
		return fmt.Errorf("applying genesis auctions: %w", err)
	}

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	// HTTP server: health endpoints run on all replicas, the auction API is
	// served alongside them.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())
	api.NewHandler(engine, driver, logger).Register(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()

	// startDriver is the core work that only the leader should run: the step
	// loop that advances height and drains submissions.
	startDriver := func(ctx context.Context) {
		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctiond is running (leader)",
			slog.String("version", version),
			slog.Uint64("start_height", cfg.Chain.StartHeight),
		)

		if runErr := driver.Run(ctx); runErr != nil && runErr != context.Canceled {
			logger.ErrorContext(ctx, "chain driver stopped", slog.Any("error", runErr))
		}

		healthHandler.SetReady(false)
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, startDriver, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		// No leader election, run directly.
		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctiond is running",
			slog.String("version", version),
			slog.Uint64("start_height", cfg.Chain.StartHeight),
		)

		if runErr := driver.Run(ctx); runErr != nil && runErr != context.Canceled {
			logger.ErrorContext(ctx, "chain driver stopped", slog.Any("error", runErr))
		}

		logger.Info("shutting down...")
		healthHandler.SetReady(false)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
