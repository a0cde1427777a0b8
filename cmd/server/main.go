/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env file, then environment)
  2. Build the zap logger
  3. Open the configured store (sqlite, postgres or memory)
  4. Create ledger and directory with the configured leave settings
  5. Optionally seed the demo directory
  6. Configure HTTP router and start serving

COMMAND-LINE FLAGS:
  -env     Path of the .env file (default: .env)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Close the store
  4. Exit

EXAMPLES:
  # SQLite file database
  AUTH_JWT_SECRET=dev STORE_SQLITE_PATH=./data/leave.db ./server

  # In-memory with demo employees
  AUTH_JWT_SECRET=dev STORE_DRIVER=memory STORE_SEED_DEMO=true ./server

  # PostgreSQL
  AUTH_JWT_SECRET=dev STORE_DRIVER=postgres POSTGRES_DSN=postgres://... ./server

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
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
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/timeoff"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env", config.DefaultEnvFile, "path of the .env file")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ledger := timeoff.NewRequestLedger(store,
		timeoff.WithLogger(logger),
		timeoff.WithAnnualAllotment(decimal.NewFromFloat(cfg.Leave.AnnualAllotment)),
		timeoff.WithOverlapIgnoringClosed(cfg.Leave.OverlapIgnoresClosed),
	)
	directory := timeoff.NewDirectory(store,
		timeoff.WithDirectoryLogger(logger),
		timeoff.WithStartingBalance(decimal.NewFromFloat(cfg.Leave.DefaultBalance)),
	)

	if cfg.Store.SeedDemo {
		if _, err := api.SeedDemo(ctx, directory, logger.Named("seed")); err != nil {
			return err
		}
	}

	router, err := api.NewRouter(api.NewHandler(ledger, directory, logger), api.RouterConfig{
		JWTSecret:         []byte(cfg.Auth.JWTSecret),
		AllowedOrigins:    cfg.CORS.AllowedOrigins,
		RequestsPerSecond: cfg.RateLimit.RPS,
		Burst:             cfg.RateLimit.Burst,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.Store.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore returns the configured store and the function that releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (timeoff.TxStore, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return memory.New(), func() {}, nil

	case config.DriverPostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, store.Close, nil

	default:
		store, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.Store.SQLitePath, err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("close sqlite store", zap.Error(err))
			}
		}, nil
	}
}
