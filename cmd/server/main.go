/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the store operations server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (defaults, optional file, .env, STOREOPS_* env)
  2. Build the zap logger
  3. Open the SQLite store (migrations run on open)
  4. Start the notification hub
  5. Load the incentive program
  6. Create the API handler and router
  7. Start the session sweeper
  8. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config  Optional YAML config file (see config/config.go for keys)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper, close the hub and the database
  4. Exit

EXAMPLES:
  # Defaults: :8080, ./storeops.db
  ./server

  # Throwaway database on another port
  STOREOPS_DB_PATH=":memory:" STOREOPS_HTTP_ADDR=":3000" ./server

  # Config file
  ./server -config=./storeops.yaml

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
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
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/storeops-engine/api"
	"github.com/warp/storeops-engine/config"
	"github.com/warp/storeops-engine/factory"
	"github.com/warp/storeops-engine/incentive"
	"github.com/warp/storeops-engine/notify"
	"github.com/warp/storeops-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "storeops: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	denoms, err := cfg.Denominations()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := sqlite.New(cfg.DB.Path, sqlite.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	hub := notify.NewHub(logger, notify.Options{})
	hub.Start()
	defer hub.Close()

	program := incentive.DefaultProgram()
	if cfg.Incentive.ProgramFile != "" {
		if program, err = factory.NewProgramFactory().LoadFile(cfg.Incentive.ProgramFile); err != nil {
			return err
		}
		logger.Info("incentive program loaded",
			zap.String("program", program.Name), zap.String("file", cfg.Incentive.ProgramFile))
	}

	handler := api.NewHandler(store, api.Options{
		Program:       &program,
		Hub:           hub,
		Logger:        logger,
		Denominations: denoms,
	})
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		ExposeMetrics:  cfg.Metrics.Enabled,
	})

	sweeper := api.NewSessionSweeper(handler, cfg.Sessions.TTL, cfg.Sessions.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.HTTP.Addr), zap.String("db", cfg.DB.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// newLogger builds a JSON zap logger at level, falling back to info.
func newLogger(level string) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		_ = lvl.UnmarshalText([]byte("info"))
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.MessageKey = "message"
	encoderCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	cfg := zap.Config{
		Level:             lvl,
		Encoding:          "json",
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}
