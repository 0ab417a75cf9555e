// Package bootstrap assembles the directions stack shared by the API server and the worker.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/config"
	"github.com/breatheroute/cleanroute/internal/discovery"
	"github.com/breatheroute/cleanroute/internal/metrics"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
	"github.com/breatheroute/cleanroute/internal/routing"
	"github.com/breatheroute/cleanroute/internal/routing/mapbox"
	"github.com/breatheroute/cleanroute/internal/routing/openrouteservice"
	"github.com/breatheroute/cleanroute/internal/routing/valkeystore"
)

// Directions is the configured upstream provider behind the shared response cache.
type Directions struct {
	// Provider serves cached directions.
	Provider routing.Provider

	// Ping checks the cache backend. Nil for the in-process store.
	Ping func(ctx context.Context) error

	closeFn func()
}

// Close releases the cache backend connection.
func (d *Directions) Close() {
	if d.closeFn != nil {
		d.closeFn()
	}
}

// NewDirections builds the upstream client selected by cfg.Directions and wraps it in
// the cache selected by cfg.Cache.
func NewDirections(cfg *config.Config, registry *resilience.Registry, logger zerolog.Logger) (*Directions, error) {
	upstream, err := newUpstream(cfg.Directions, registry, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Directions.Token == "" {
		logger.Warn().
			Str("provider", upstream.Name()).
			Msg("directions token not configured, route requests will fail")
	}

	d := &Directions{}
	var store routing.CacheStore
	switch cfg.Cache.Backend {
	case config.CacheValkey:
		vs, err := valkeystore.New(valkeystore.Config{
			Addr:      cfg.Cache.ValkeyAddr,
			KeyPrefix: cfg.Cache.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect directions cache: %w", err)
		}
		store = vs
		d.Ping = vs.Ping
		d.closeFn = vs.Close
	default:
		store = routing.NewMemoryStore(routing.MemoryStoreConfig{})
	}

	d.Provider = routing.NewCachingProvider(routing.CachingProviderConfig{
		Provider:        upstream,
		Store:           store,
		Logger:          logger,
		CacheTTL:        cfg.Cache.TTL,
		StaleIfErrorTTL: cfg.Cache.StaleIfErrorTTL,
		FetchTimeout:    cfg.Discovery.FetchTimeout,
	})

	logger.Info().
		Str("provider", upstream.Name()).
		Str("cache", cfg.Cache.Backend).
		Msg("directions provider initialized")

	return d, nil
}

func newUpstream(cfg config.DirectionsConfig, registry *resilience.Registry, logger zerolog.Logger) (routing.Provider, error) {
	switch cfg.Provider {
	case config.ProviderMapbox:
		return mapbox.NewClient(mapbox.ClientConfig{
			AccessToken: cfg.Token,
			BaseURL:     cfg.BaseURL,
			Timeout:     cfg.Timeout,
			Registry:    registry,
			Logger:      logger,
		}), nil
	case config.ProviderOpenRouteService:
		return openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   cfg.Token,
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
			Registry: registry,
			Logger:   logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown directions provider %q", cfg.Provider)
	}
}

// NewDiscoverer builds candidate discovery over provider using cfg.Discovery.
func NewDiscoverer(cfg *config.Config, provider routing.Provider, m *metrics.Engine, logger zerolog.Logger) *discovery.Discoverer {
	return discovery.New(discovery.Config{
		Provider:    provider,
		Profile:     routing.Profile(cfg.Directions.Profile),
		Offsets:     cfg.Discovery.Offsets,
		Concurrency: cfg.Discovery.Concurrency,
		Metrics:     m,
		Logger:      logger,
	})
}
