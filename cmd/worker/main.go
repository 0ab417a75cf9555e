// Package main provides the entrypoint for the CleanRoute corridor warm-up worker.
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

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/bootstrap"
	"github.com/breatheroute/cleanroute/internal/config"
	"github.com/breatheroute/cleanroute/internal/metrics"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
	"github.com/breatheroute/cleanroute/internal/telemetry"
	"github.com/breatheroute/cleanroute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "cleanroute-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting CleanRoute worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.FromConfig(cfg, serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	engine := metrics.New()
	registry := resilience.NewRegistry()

	directions, err := bootstrap.NewDirections(cfg, registry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize directions provider")
	}
	defer directions.Close()

	corridors := worker.DefaultCorridors()
	if cfg.Worker.CorridorsFile != "" {
		corridors, err = worker.LoadCorridors(cfg.Worker.CorridorsFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Worker.CorridorsFile).Msg("failed to load corridors")
		}
	}

	job := worker.NewWarmupJob(worker.WarmupJobConfig{
		Config: worker.WarmupConfig{
			Corridors:   corridors,
			Concurrency: cfg.Worker.Concurrency,
			TargetCount: cfg.Discovery.TargetCount,
		},
		Discoverer: bootstrap.NewDiscoverer(cfg, directions.Provider, engine, log),
		Metrics:    engine,
		Logger:     log,
	})
	dispatcher := worker.NewDispatcher(job, log)

	log.Info().
		Int("corridors", len(corridors)).
		Int("concurrency", job.Config().Concurrency).
		Msg("warm-up job configured")

	// Pub/Sub delivery is optional; without a project the worker only serves /jobs.
	if cfg.PubSub.ProjectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.SubscriptionID,
			Dispatcher:       dispatcher,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub client")
			}
		}()

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub receive stopped")
			}
		}()
	} else {
		log.Warn().Msg("pubsub project not configured - jobs accepted over HTTP only")
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Worker.HealthPort),
		Handler: worker.NewHTTPHandler(worker.HTTPConfig{
			Version:    Version,
			Job:        job,
			Dispatcher: dispatcher,
			Metrics:    engine.Handler(),
		}),
		ReadTimeout: cfg.Server.ReadTimeout,
		// Warm-ups pushed over HTTP run inline.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("worker http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("worker http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("worker http server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
