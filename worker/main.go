package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/sirupsen/logrus"
	"github.com/videoflix/videoflix/internal"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("worker error")
	}
}

func run(log *logrus.Logger) error {
	// Create context that listens for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := internal.NewDBPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}
	defer pool.Close()

	log.Info("running database migrations")
	if err := internal.MigrateUp(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	transcoder := internal.NewTranscoder(cfg.Transcode.FFmpegBin, log)
	videos := internal.NewVideoStore(pool)

	workers := river.NewWorkers()
	internal.RegisterWorkers(workers, transcoder, videos, log)

	// JobTimeout bounds a single attempt; when it fires the work context is
	// cancelled, which also kills any encoder child process. The retry
	// policy then reschedules on the fixed backoff ladder.
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			cfg.Queue.Name: {MaxWorkers: cfg.Worker.MaxWorkers},
		},
		Workers:     workers,
		JobTimeout:  cfg.Queue.JobTimeout,
		MaxAttempts: cfg.Queue.MaxAttempts,
		RetryPolicy: &internal.LinearRetryPolicy{Intervals: cfg.Queue.Backoff},
	})
	if err != nil {
		return fmt.Errorf("failed to create river client: %w", err)
	}

	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start river client: %w", err)
	}

	log.Info("worker started, waiting for jobs")

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutdown signal received, shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := riverClient.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("river client shutdown error: %w", err)
	}

	log.Info("worker shutdown complete")
	return nil
}
