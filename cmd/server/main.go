// Package main provides the API server entry point for the portfolio tracker.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/portfolio-tracker/internal/api"
	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/currency"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/marketdata"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/worker"
)

func main() {
	fmt.Println("Portfolio Tracker API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize repositories
	userRepo := storage.NewUserRepository(postgres)
	portfolioRepo := storage.NewPortfolioRepository(postgres)
	shareRepo := storage.NewShareRepository(postgres)
	tradeLogRepo := storage.NewTradeLogRepository(postgres)
	settlementStore := storage.NewSettlementStore(postgres)

	// Cache for quotes and FX rate tables
	marketCache := storage.NewMarketCache(redis, cfg.Quote.CacheTTL, cfg.Currency.CacheTTL)

	// Quote provider: raw client, wrapped with circuit breaker and
	// retries, wrapped with the Redis quote cache
	var quotes marketdata.Provider = marketdata.NewClient(&cfg.Quote)
	quotes = marketdata.NewResilientProvider(quotes)
	quotes = marketdata.NewCachedProvider(quotes, marketCache)

	// Currency converter backed by the same cache
	converter := currency.NewClient(&cfg.Currency, marketCache)

	// Initialize services
	logger.Info("Initializing services...")

	valuationService := service.NewValuationService(
		userRepo,
		portfolioRepo,
		shareRepo,
		quotes,
		converter,
		cfg.Refresh.Concurrency,
	)

	settlementService := service.NewSettlementService(
		userRepo,
		portfolioRepo,
		shareRepo,
		quotes,
		converter,
		settlementStore,
		valuationService,
	)

	authService := service.NewAuthService(userRepo, portfolioRepo, &cfg.Auth)
	userService := service.NewUserService(userRepo, shareRepo, tradeLogRepo, valuationService)
	portfolioService := service.NewPortfolioService(userRepo, portfolioRepo, shareRepo, valuationService)

	logger.Info("Services initialized")

	// Start the periodic valuation refresh
	refreshWorker := worker.NewRefreshWorker(valuationService, cfg.Refresh.Interval)
	if err := refreshWorker.Start(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to start refresh worker")
	}

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		UserRPS:         cfg.Server.UserRPS,
	}

	server := api.NewServer(
		serverConfig,
		authService,
		settlementService,
		portfolioService,
		userService,
		valuationService,
		quotes,
		converter,
	)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := refreshWorker.Stop(ctx); err != nil {
		logger.WithError(err).Warn("Refresh worker did not stop cleanly")
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
