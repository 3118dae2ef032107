package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/streamwatch/streamwatch/internal/budget"
	"github.com/streamwatch/streamwatch/internal/checkpoint"
	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/listing"
	"github.com/streamwatch/streamwatch/internal/orchestrator"
	"github.com/streamwatch/streamwatch/internal/poller"
	"github.com/streamwatch/streamwatch/internal/redis"
	"github.com/streamwatch/streamwatch/internal/server"
	"github.com/streamwatch/streamwatch/internal/version"
)

// infrastructure holds core infrastructure components.
type infrastructure struct {
	redisClient redis.Client
	checkpoints checkpoint.Store
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup logger
	logger := setupLogger()

	// Create application context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load and validate configuration
	cfg, err := loadAndValidateConfig(logger, *configPath)
	if err != nil {
		logger.WithError(err).Fatal("Configuration error")
	}

	// Setup infrastructure (redis-backed checkpoints, optional)
	infra, err := setupInfrastructure(ctx, logger, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Infrastructure setup failed")
	}

	// Build the polling core
	orch, err := setupOrchestrator(ctx, logger, cfg, infra)
	if err != nil {
		logger.WithError(err).Fatal("Orchestrator setup failed")
	}

	// Start ops HTTP server
	srv := server.New(logger, cfg)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Ops HTTP server error")
		}
	}()

	// Run the merged polling loop
	runErr := make(chan error, 1)

	go func() {
		runErr <- orch.Run(ctx, onItem(logger), onPollerFailed(logger))
	}()

	// Wait for interrupt signal or loop exit
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Received shutdown signal")

		// Stop the loop and wait for it to return: poller cursors are owned
		// by the Run goroutine until then, so checkpoints must not be saved
		// while a fetch may still be in flight.
		cancel()
		<-runErr
	case err := <-runErr:
		logger.WithError(err).Error("Polling loop exited")
		cancel()
	}

	// Perform graceful shutdown
	shutdownGracefully(logger, cfg, srv, orch, infra)
}

// setupLogger creates and configures the application logger.
func setupLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})

	logger.WithFields(logrus.Fields{
		"version":    version.Short(),
		"git_commit": version.GitCommit,
		"build_date": version.BuildDate,
	}).Info("Starting...")

	return logger
}

// loadAndValidateConfig loads the configuration file and validates it.
func loadAndValidateConfig(
	logger *logrus.Logger,
	configPath string,
) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Set log level from config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	level, parseErr := logrus.ParseLevel(cfg.Server.LogLevel)
	if parseErr != nil {
		logger.WithError(parseErr).Warn("Invalid log level, using info")

		level = logrus.InfoLevel
	}

	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"sources":   cfg.Sources,
		"log_level": cfg.Server.LogLevel,
	}).Info("Configuration loaded")

	return cfg, nil
}

// setupInfrastructure initializes the checkpoint store. Without a Redis
// address, checkpointing is disabled and every restart resumes from "now".
func setupInfrastructure(
	ctx context.Context,
	logger *logrus.Logger,
	cfg *config.Config,
) (*infrastructure, error) {
	if cfg.Redis.Address == "" {
		logger.Info("No Redis configured, checkpoint persistence disabled")

		return &infrastructure{checkpoints: checkpoint.NewNoopStore()}, nil
	}

	redisClient := redis.NewClient(logger, redis.Config{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
	})

	if err := redisClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start Redis client: %w", err)
	}

	return &infrastructure{
		redisClient: redisClient,
		checkpoints: checkpoint.NewRedisStore(logger, redisClient, cfg.CheckpointTTL),
	}, nil
}

// setupOrchestrator wires the listing client, budget counter, and one
// poller per configured source, restoring persisted positions.
func setupOrchestrator(
	ctx context.Context,
	logger *logrus.Logger,
	cfg *config.Config,
	infra *infrastructure,
) (*orchestrator.Orchestrator, error) {
	client, err := listing.NewHTTPClient(&cfg.Listing, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing client: %w", err)
	}

	counter, err := budget.NewCounter(cfg.Budget, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create budget counter: %w", err)
	}

	orch, err := orchestrator.New(logger, counter, infra.checkpoints)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	for _, source := range cfg.Sources {
		p, err := poller.New(source, client, cfg.Poller, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create poller for %s: %w", source, err)
		}

		anchor, err := infra.checkpoints.Load(ctx, source)
		if err != nil {
			logger.WithError(err).WithField("source", source).Warn("Failed to load checkpoint, starting from now")
		} else if anchor != "" {
			p.Restore(anchor)
			logger.WithFields(logrus.Fields{
				"source": source,
				"anchor": anchor,
			}).Info("Resumed poller from checkpoint")
		}

		if err := orch.Add(source, p); err != nil {
			return nil, fmt.Errorf("failed to register poller for %s: %w", source, err)
		}
	}

	return orch, nil
}

// onItem logs every discovered item with its pickup delay.
func onItem(logger *logrus.Logger) orchestrator.ItemFunc {
	return func(source string, item listing.Item) {
		logger.WithFields(logrus.Fields{
			"source": source,
			"kind":   item.Kind,
			"id":     item.ID,
			"author": item.Author,
			"delay":  time.Since(item.CreatedAt).Round(time.Second).String(),
		}).Info("New item")
	}
}

// onPollerFailed logs dead pollers; the loop keeps serving the rest.
func onPollerFailed(logger *logrus.Logger) orchestrator.FailureFunc {
	return func(source string, err error) {
		logger.WithError(err).WithField("source", source).Error("Poller failed permanently")
	}
}

// shutdownGracefully saves checkpoints and stops all components.
func shutdownGracefully(
	logger *logrus.Logger,
	cfg *config.Config,
	srv *server.Server,
	orch *orchestrator.Orchestrator,
	infra *infrastructure,
) {
	logger.Info("Initiating graceful shutdown...")

	// Create a timeout context for the shutdown process
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Persist poller positions so the next run resumes where we left off
	orch.SaveCheckpoints(shutdownCtx)

	// Stop ops HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error during server shutdown")
	}

	// Stop Redis client (closes connections)
	if infra.redisClient != nil {
		if err := infra.redisClient.Stop(); err != nil {
			logger.WithError(err).Error("Error stopping Redis client")
		}
	}

	logger.Info("Watcher stopped gracefully")
}
