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

	"github.com/nilay/reportgen/internal/api"
	"github.com/nilay/reportgen/internal/config"
	"github.com/nilay/reportgen/internal/core"
	"github.com/nilay/reportgen/internal/db"
	"github.com/nilay/reportgen/internal/executor"
	"github.com/nilay/reportgen/internal/logging"
	"github.com/nilay/reportgen/internal/metrics"
	"github.com/nilay/reportgen/internal/queue"
	"github.com/nilay/reportgen/internal/scheduler"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate("report-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	publisher, err := queue.NewPublisher(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer publisher.Close()

	exec := executor.New(pool, pool, executor.Options{
		JobTimeout:   cfg.JobTimeout,
		OutputDir:    cfg.OutputDir,
		JoinColumn:   cfg.JoinColumnName,
		MainIDColumn: cfg.MainIDColumnIdx,
	}, logger)

	services := core.NewServices(pool)
	dispatcher := scheduler.NewDispatcher(services.Job, services.Registry, publisher, scheduler.Options{
		Interval:   cfg.DispatchInterval,
		Warmup:     cfg.DispatchWarmup,
		RetryLimit: cfg.RetryLimit,
		RetryDelay: cfg.RetryDelay,
	}, logger)
	go func() {
		logger.Info().
			Dur("interval", cfg.DispatchInterval).
			Dur("warmup", cfg.DispatchWarmup).
			Msg("starting dispatch loop")
		if err := dispatcher.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("dispatch loop stopped")
		}
	}()

	srv := api.NewServer(logger, pool, exec, cfg)
	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting report API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
