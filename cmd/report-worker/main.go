package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nilay/reportgen/internal/config"
	"github.com/nilay/reportgen/internal/db"
	"github.com/nilay/reportgen/internal/executor"
	"github.com/nilay/reportgen/internal/logging"
	"github.com/nilay/reportgen/internal/metrics"
	"github.com/nilay/reportgen/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate("report-worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	metricsServer := metrics.NewServer(cfg.MetricsListenAddr)
	go func() {
		logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	exec := executor.New(pool, pool, executor.Options{
		JobTimeout:   cfg.JobTimeout,
		OutputDir:    cfg.OutputDir,
		JoinColumn:   cfg.JoinColumnName,
		MainIDColumn: cfg.MainIDColumnIdx,
	}, logger)

	srv, err := queue.NewServer(cfg.RedisURL, cfg.WorkerConcurrency)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure queue server")
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info().Msg("shutting down worker")
		srv.Shutdown()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("starting report worker")
	if err := srv.Run(exec.Mux()); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
}
