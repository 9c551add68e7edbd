// Package main wires together the harvester service binary.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/screenarc/tmdb-harvester/internal/catalog"
	"github.com/screenarc/tmdb-harvester/internal/config"
	"github.com/screenarc/tmdb-harvester/internal/dumps"
	"github.com/screenarc/tmdb-harvester/internal/logging"
	"github.com/screenarc/tmdb-harvester/internal/ops"
	"github.com/screenarc/tmdb-harvester/internal/orchestrator"
	"github.com/screenarc/tmdb-harvester/internal/ratelimit"
	"github.com/screenarc/tmdb-harvester/internal/state"
	"github.com/screenarc/tmdb-harvester/internal/tmdb"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("harvester exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns
	poolCfg.MinConns = cfg.DB.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	limiter := ratelimit.New(cfg.API.RequestsPerSecond, cfg.API.Burst)
	policy := tmdb.NewExponentialRetryPolicy(
		cfg.API.MaxAttempts,
		time.Duration(cfg.API.BackoffInitialSec)*time.Second,
		time.Duration(cfg.API.BackoffMaxSec)*time.Second,
	)
	client := tmdb.NewClient(tmdb.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.APITimeout(),
	}, limiter, policy, logger)
	defer client.Close()

	states := state.NewStore(pool, cfg.Pipeline.MaxRetries, logger)
	dumpStore := dumps.NewStore(pool)
	dumpSource := dumps.NewSource(dumpStore, cfg.Dumps.BaseURL, cfg.DumpTimeout(), logger)
	normalizer := catalog.NewNormalizer(pool, logger)

	orch := orchestrator.New(orchestrator.Config{
		BatchSize:          cfg.Pipeline.BatchSize,
		CheckpointInterval: cfg.Pipeline.CheckpointInterval,
		StuckThreshold:     cfg.StuckThreshold(),
		Staleness:          cfg.Staleness(),
		DumpInterval:       cfg.DumpInterval(),
		UpdateInterval:     cfg.UpdateInterval(),
		IdlePollMax:        cfg.IdlePollMax(),
	}, client, normalizer, states, dumpSource, logger)

	opsServer := ops.NewServer(states, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Ops.Port),
		Handler:           opsServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server started", zap.Int("port", cfg.Ops.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown initiated")
		orch.Stop()
	}()

	// A signal only requests the stop; the in-flight batch finishes on a
	// context that outlives it.
	runErr := orch.Run(context.WithoutCancel(ctx))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return runErr
}
