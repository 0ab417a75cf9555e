// Package main provides the entrypoint for the CleanRoute API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/airquality/openweathermap"
	"github.com/breatheroute/cleanroute/internal/api"
	"github.com/breatheroute/cleanroute/internal/api/handler"
	"github.com/breatheroute/cleanroute/internal/api/middleware"
	"github.com/breatheroute/cleanroute/internal/bootstrap"
	"github.com/breatheroute/cleanroute/internal/config"
	"github.com/breatheroute/cleanroute/internal/database"
	"github.com/breatheroute/cleanroute/internal/events"
	"github.com/breatheroute/cleanroute/internal/geocoding/nominatim"
	"github.com/breatheroute/cleanroute/internal/history"
	"github.com/breatheroute/cleanroute/internal/metrics"
	"github.com/breatheroute/cleanroute/internal/planner"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
	"github.com/breatheroute/cleanroute/internal/scoring"
	"github.com/breatheroute/cleanroute/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// inMemoryHistorySize bounds plan history when no database is configured.
const inMemoryHistorySize = 1000

func main() {
	const serviceName = "cleanroute-api"

	// Setup structured logging
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
		Msg("starting CleanRoute API")

	ctx := context.Background()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.FromConfig(cfg, serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	engine := metrics.New()
	registry := resilience.NewRegistry()

	var checks []handler.DependencyCheck

	// Directions provider behind the shared cache
	directions, err := bootstrap.NewDirections(cfg, registry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize directions provider")
	}
	defer directions.Close()
	if directions.Ping != nil {
		checks = append(checks, handler.DependencyCheck{Name: "directions-cache", Check: directions.Ping})
	}

	discoverer := bootstrap.NewDiscoverer(cfg, directions.Provider, engine, log)
	scorer := scoring.NewClient(scoring.ClientConfig{
		BaseURL:  cfg.Scorer.BaseURL,
		Timeout:  cfg.Scorer.Timeout,
		Registry: registry,
		Metrics:  engine,
		Logger:   log,
	})

	// Plan history
	var historyRepo history.Repository
	if cfg.Database.Enabled {
		dbConfig := cfg.Database.Pool()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		pgRepo := history.NewPostgresRepository(pool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare plan history schema")
		}
		historyRepo = pgRepo
		checks = append(checks, handler.DependencyCheck{Name: "postgres", Check: pool.Ping})
	} else {
		historyRepo = history.NewInMemoryRepository(inMemoryHistorySize)
		log.Info().Int("max_records", inMemoryHistorySize).Msg("plan history kept in memory")
	}
	historyService := history.NewService(history.ServiceConfig{
		Repository: historyRepo,
		Logger:     log,
	})

	// Route events
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Events.Enabled {
		natsPublisher, err := events.Connect(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		publisher = natsPublisher
		log.Info().
			Str("url", cfg.Events.NATSURL).
			Str("subject", cfg.Events.Subject).
			Msg("route events enabled")
	}
	defer publisher.Close()
	publish := events.OnSuccess(publisher, log)

	onSuccess := func(ctx context.Context, o planner.Outcome) {
		historyService.OnSuccess(ctx, o)
		publish(ctx, o)
	}

	// Planning sessions
	sessions := planner.NewSessions(planner.SessionsConfig{
		NewController: func() *planner.Controller {
			return planner.New(planner.Config{
				Discoverer:   discoverer,
				Scorer:       scorer,
				TargetCount:  cfg.Discovery.TargetCount,
				FetchTimeout: cfg.Discovery.FetchTimeout,
				OnSuccess:    onSuccess,
				Metrics:      engine,
				Logger:       log,
			})
		},
		IdleTTL:         cfg.Session.IdleTTL,
		CleanupInterval: cfg.Session.CleanupInterval,
		MaxSessions:     cfg.Session.MaxSessions,
		Metrics:         engine,
		Logger:          log,
	})
	sessions.Start()

	geocoder := nominatim.NewClient(nominatim.ClientConfig{
		BaseURL:      cfg.Geocoding.BaseURL,
		UserAgent:    cfg.Geocoding.UserAgent,
		CountryCodes: cfg.Geocoding.CountryCodes,
		Interval:     cfg.Geocoding.Interval,
		Registry:     registry,
		Logger:       log,
	})

	if cfg.AirQuality.APIKey == "" {
		log.Warn().Msg("air quality API key not configured - /v1/air-quality will return 503")
	}
	airQuality := airquality.NewService(airquality.ServiceConfig{
		Provider: openweathermap.NewClient(openweathermap.ClientConfig{
			APIKey:   cfg.AirQuality.APIKey,
			BaseURL:  cfg.AirQuality.BaseURL,
			Registry: registry,
			Logger:   log,
		}),
		Logger:   log,
		CacheTTL: cfg.AirQuality.CacheTTL,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        httpMetrics,
		MetricsHandler: engine.Handler(),
		RequireTLS:     cfg.Server.RequireTLS,
		Registry:       registry,
		Sessions:       sessions,
		WaitTimeout:    cfg.Discovery.FetchTimeout,
		Geocoder:       geocoder,
		AirQuality:     airQuality,
		History:        historyService,
		Checks:         checks,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Let running route requests record their outcome before the publisher and pool close.
	sessions.Stop()
	sessions.DrainAll()

	log.Info().Msg("server stopped")
}
