package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/quantfolio/internal/clients/broker"
	"github.com/aristath/quantfolio/internal/clients/yahoo"
	"github.com/aristath/quantfolio/internal/config"
	"github.com/aristath/quantfolio/internal/database"
	"github.com/aristath/quantfolio/internal/modules/allocation"
	"github.com/aristath/quantfolio/internal/modules/backtest"
	"github.com/aristath/quantfolio/internal/modules/optimization"
	"github.com/aristath/quantfolio/internal/modules/portfolio"
	"github.com/aristath/quantfolio/internal/modules/rebalancing"
	"github.com/aristath/quantfolio/internal/modules/signals"
	"github.com/aristath/quantfolio/internal/modules/universe"
	"github.com/aristath/quantfolio/internal/scheduler"
	"github.com/aristath/quantfolio/internal/server"
	"github.com/aristath/quantfolio/internal/tasks"
	"github.com/aristath/quantfolio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet, fall back to a default one.
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Quantfolio")

	db, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "quantfolio.db"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Repositories
	assetRepo := universe.NewAssetRepository(db.Conn(), log)
	strategyRepo := universe.NewStrategyRepository(db.Conn(), log)
	portfolioRepo := portfolio.NewRepository(db.Conn(), log)

	// Clients
	market := yahoo.NewClient(log)
	paperBroker := broker.NewPaper(log)

	// Engines and services
	taskStore := tasks.NewStore(log)
	generator := signals.NewGenerator(log)
	engine := backtest.NewEngine(generator, log)

	optimizer := optimization.NewService(strategyRepo, assetRepo, market, engine, taskStore, log)
	allocator := allocation.NewService(portfolioRepo, strategyRepo, taskStore, log)
	performance := portfolio.NewPerformanceService(portfolioRepo, assetRepo, market, log)
	rebalancer := rebalancing.NewService(portfolioRepo, assetRepo, market, paperBroker, performance, taskStore, log)

	// Background jobs
	sched := scheduler.New(log)
	if cfg.SchedulerEnabled {
		optimizationJob := scheduler.NewOptimizationJob(strategyRepo, assetRepo, optimizer, cfg.OptimizationDays, log)
		if err := sched.AddJob("30 2 * * *", optimizationJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register optimization job")
		}

		rebalanceJob := scheduler.NewRebalanceJob(portfolioRepo, rebalancer, log)
		if err := sched.AddJob("@every 6h", rebalanceJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register rebalance job")
		}

		sched.Start()
		defer sched.Stop()
	} else {
		log.Info().Msg("Scheduler disabled")
	}

	srv := server.New(server.Config{
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Log:       log,
		Universe:  server.NewUniverseHandlers(assetRepo, strategyRepo, optimizer, taskStore, log),
		Portfolio: server.NewPortfolioHandlers(portfolioRepo, allocator, rebalancer, performance, taskStore, log),
		Tasks:     taskStore,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
