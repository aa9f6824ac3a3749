/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), apply flag overrides
  2. Build the zap logger
  3. Initialize SQLite store
  4. Build the engine: snowflake ids, optional Redis locker, metrics
  5. Wire the asset service, configure the HTTP router and start the
     rebuild scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides SERVER_PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  See config/config.go. Notable: REDIS_ADDRESS enables distributed item
  locks, JWT_SIGNING_KEY enables bearer tokens, REBUILD_INTERVAL enables
  periodic verification.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database and Redis connections

SEE ALSO:
  - api/server.go: Router configuration
  - stock/engine.go: Engine wiring
*/
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

	"go.uber.org/zap"

	"github.com/warp/stock-ledger/api"
	"github.com/warp/stock-ledger/assets"
	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/idgen"
	"github.com/warp/stock-ledger/logger"
	"github.com/warp/stock-ledger/metrics"
	"github.com/warp/stock-ledger/stock"
	"github.com/warp/stock-ledger/store/locker"
	"github.com/warp/stock-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.String("port", cfg.Server.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DB.Path, "SQLite database path")
	flag.Parse()

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		Service:     "stock-ledger",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, *port, *dbPath, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, port, dbPath string, log *zap.Logger) error {
	// Initialize store
	store, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	ids, err := idgen.New(cfg.Stock.SnowflakeNode)
	if err != nil {
		return err
	}

	collector := metrics.New("stock_ledger")

	engine := stock.NewEngine(store)
	engine.IDs = ids
	engine.Window = cfg.Stock.WindowDays
	engine.Grace = cfg.Stock.SoftDeleteGrace
	engine.Location = cfg.Stock.Location
	engine.Log = log.Named("stock")
	engine.Observer = collector

	if cfg.Redis.Address != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := locker.Connect(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			return err
		}
		defer rdb.Close()
		engine.Locker = locker.New(rdb, cfg.Redis.LockTTL, log.Named("locker"))
		log.Info("using redis item locks", zap.String("address", cfg.Redis.Address))
	}

	// Initialize handler
	handler := api.NewHandler(engine, log.Named("api"))
	handler.Pinger = store

	assetService := assets.NewService(store.Assets())
	assetService.IDs = ids
	assetService.Log = log.Named("assets")
	assetService.Observer = collector
	handler.Assets = assetService

	// Create router
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     collector,
		Log:         log.Named("http"),
		Auth:        &api.Authenticator{SigningKey: []byte(cfg.JWT.SigningKey)},
	})
	if cfg.JWT.SigningKey == "" {
		log.Warn("JWT_SIGNING_KEY not set, trusting X-Actor and X-Role headers")
	}

	scheduler := api.NewRebuildScheduler(engine, log)
	scheduler.CheckInterval = cfg.Stock.RebuildInterval
	scheduler.Enabled = cfg.Stock.RebuildInterval > 0
	handler.Scheduler = scheduler
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr), zap.String("db", dbPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
