// Package api provides the HTTP API for CleanRoute.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/api/handler"
	"github.com/breatheroute/cleanroute/internal/api/middleware"
	"github.com/breatheroute/cleanroute/internal/geocoding"
	"github.com/breatheroute/cleanroute/internal/history"
	"github.com/breatheroute/cleanroute/internal/planner"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	// MetricsHandler serves Prometheus metrics at /metrics when set.
	MetricsHandler http.Handler
	RequireTLS     bool

	Registry    *resilience.Registry
	Sessions    *planner.Sessions
	WaitTimeout time.Duration
	Geocoder    geocoding.Geocoder
	AirQuality  handler.AirQualityReader
	History     *history.Service
	Checks      []handler.DependencyCheck
}

// NewRouter creates a new chi router with all API routes configured.
// Route groups whose backing service is nil are not mounted.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "cleanroute-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Sessions:  cfg.Sessions,
		Checks:    cfg.Checks,
	})
	exposureHandler := handler.NewExposureHandler()

	planningRateLimit := middleware.RateLimitBySession(middleware.PlanningRateLimit) // 30 req/min
	geocodeRateLimit := middleware.RateLimitByIP(middleware.GeocodeRateLimit)        // 60 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)      // 100 req/min

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		if cfg.Sessions != nil {
			sessionHandler := handler.NewSessionHandler(cfg.Sessions, cfg.WaitTimeout, cfg.Logger)
			r.Route("/sessions", func(r chi.Router) {
				r.With(standardRateLimit).Post("/", sessionHandler.CreateSession)
				r.Route("/{"+middleware.SessionIDParam+"}", func(r chi.Router) {
					r.Use(middleware.RequireJSON)
					r.Delete("/", sessionHandler.DeleteSession)
					r.With(planningRateLimit).Put("/endpoints", sessionHandler.SetEndpoints)
					r.With(planningRateLimit).Post("/refetch", sessionHandler.Refetch)
					r.Get("/route", sessionHandler.GetRoute)
					r.Put("/selection", sessionHandler.SelectRoute)
					r.Get("/exposure", sessionHandler.GetExposure)
				})
			})
		}

		r.With(standardRateLimit, middleware.RequireJSON).Post("/exposure", exposureHandler.Score)

		if cfg.Geocoder != nil {
			geocodeHandler := handler.NewGeocodeHandler(cfg.Geocoder, cfg.Logger)
			r.Route("/geocode", func(r chi.Router) {
				r.Use(geocodeRateLimit)
				r.Get("/search", geocodeHandler.Search)
				r.Get("/reverse", geocodeHandler.Reverse)
			})
		}

		if cfg.AirQuality != nil {
			airQualityHandler := handler.NewAirQualityHandler(cfg.AirQuality, cfg.Logger)
			r.With(standardRateLimit).Get("/air-quality", airQualityHandler.GetCurrent)
		}

		if cfg.History != nil {
			planHandler := handler.NewPlanHandler(cfg.History)
			r.Route("/plans", func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/", planHandler.ListPlans)
				r.Get("/{planId}", planHandler.GetPlan)
			})
		}
	})

	return r
}
