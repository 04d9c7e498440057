/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the KPI bonus server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (file, .env, BONUS_* environment)
  3. Build the logger
  4. Initialize SQLite store
  5. Create API handler, optionally load a demo scenario
  6. Start the forecast scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config    Config file path (default: ./config.yaml or ./configs/config.yaml)
  -scenario  Demo scenario to load on startup (resets the database)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running forecast)
  2. Stop accepting new connections
  3. Wait for active requests to complete (server.shutdown_timeout)
  4. Close database connection

EXAMPLES:
  # Run with defaults
  ./server

  # In-memory database with demo data
  BONUS_DATABASE_PATH=":memory:" ./server -scenario=sales-team

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - api/scheduler.go: Scheduled forecasts
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/warp/kpi-bonus/api"
	"github.com/warp/kpi-bonus/config"
	"github.com/warp/kpi-bonus/logging"
	"github.com/warp/kpi-bonus/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Config file path")
	scenario := flag.String("scenario", "", "Demo scenario to load on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	// Initialize store
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			logger.Fatal("failed to create database directory", zap.Error(err))
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, logger, cfg.Cache.FormulaTTL)
	handler.DefaultMultiplier = cfg.Forecast.MultiplierDecimal()

	if *scenario != "" {
		if err := handler.LoadScenarioByID(context.Background(), *scenario); err != nil {
			logger.Fatal("failed to load scenario", zap.String("scenario", *scenario), zap.Error(err))
		}
	}

	// Scheduler
	scheduler := api.NewForecastScheduler(handler, cfg.Forecast.Schedule, cfg.Forecast.MultiplierDecimal(), logger)
	scheduler.Enabled = cfg.Forecast.Enabled
	handler.Scheduler = scheduler
	if err := scheduler.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("api", fmt.Sprintf("http://localhost:%d/api", cfg.Server.Port)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	scheduler.Stop(ctx)
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}
