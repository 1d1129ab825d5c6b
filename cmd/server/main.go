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

	"github.com/steam-achievements/internal/cache"
	"github.com/steam-achievements/internal/chain"
	"github.com/steam-achievements/internal/config"
	"github.com/steam-achievements/internal/handler"
	"github.com/steam-achievements/internal/kafka"
	"github.com/steam-achievements/internal/postgres"
	"github.com/steam-achievements/internal/service"
	"github.com/steam-achievements/internal/session"
	"github.com/steam-achievements/internal/steam"
	"github.com/steam-achievements/internal/websocket"
	"github.com/steam-achievements/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cache store connects lazily; an unreachable Redis degrades every
	// request to fetch-through instead of failing startup.
	cacheStore := cache.NewStore(&cfg.Redis, logger)
	defer cacheStore.Close()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub for the live mint feed
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize upstream clients
	steamClient := steam.NewClient(&cfg.Steam, logger)
	chainClient := chain.NewClient(&cfg.Chain, logger)
	minter := chain.NewRelayMinter(&cfg.Chain, logger)

	// Initialize services
	achievementService := service.NewAchievementService(steamClient, cacheStore, cfg.Cache.TTL, logger)
	mintService := service.NewMintService(achievementService, minter, chainClient, repo, cfg.Chain.ConfirmTimeout, logger)

	// Initialize mint event watcher
	watcher := worker.NewWatcher(chainClient, repo, wsHub, &cfg.Chain, logger)
	if cfg.Chain.WatcherEnabled {
		if err := watcher.Start(ctx); err != nil {
			logger.Error("failed to start mint watcher", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for async mint ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, mintService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler
	sessionResolver := session.NewHeaderResolver("")
	httpHandler := handler.NewHandler(achievementService, mintService, repo, sessionResolver, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket mint feed available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop mint watcher
	if cfg.Chain.WatcherEnabled {
		if err := watcher.Stop(); err != nil {
			logger.Error("failed to stop mint watcher", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
