package routing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// CachedDirections is a directions response held by a CacheStore.
type CachedDirections struct {
	Response  *DirectionsResponse
	FetchedAt time.Time
	ExpiresAt time.Time
}

// CacheStore persists directions responses keyed by request.
// Implementations must be safe for concurrent use.
type CacheStore interface {
	// Get returns the entry for key, or found=false when absent.
	Get(ctx context.Context, key string) (entry *CachedDirections, found bool, err error)
	// Set stores the entry; the store may drop it after retention.
	Set(ctx context.Context, key string, entry *CachedDirections, retention time.Duration) error
}

// CachingProviderConfig holds configuration for the caching provider.
type CachingProviderConfig struct {
	// Provider is the upstream directions provider.
	Provider Provider

	// Store holds cached responses (default: in-memory store).
	Store CacheStore

	// Logger for cache operations.
	Logger zerolog.Logger

	// CacheTTL is how long a response is served without refetching (default: 5 minutes).
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 15 minutes).
	StaleIfErrorTTL time.Duration

	// FetchTimeout bounds a shared upstream fetch, which runs detached from any
	// single caller's context (default: 60 seconds).
	FetchTimeout time.Duration
}

// CachingProvider wraps a Provider with a response cache.
// Concurrent lookups for the same key share one upstream call.
type CachingProvider struct {
	provider        Provider
	store           CacheStore
	logger          zerolog.Logger
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration
	fetchTimeout    time.Duration

	group singleflight.Group
}

// NewCachingProvider creates a new caching provider.
func NewCachingProvider(cfg CachingProviderConfig) *CachingProvider {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 15 * time.Minute
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = 60 * time.Second
	}

	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(MemoryStoreConfig{})
	}

	return &CachingProvider{
		provider:        cfg.Provider,
		store:           store,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		fetchTimeout:    fetchTimeout,
	}
}

// Name returns the name of the underlying provider.
func (p *CachingProvider) Name() string {
	return p.provider.Name()
}

// GetDirections returns cached directions when fresh, otherwise fetches from the provider.
func (p *CachingProvider) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, &Error{
			Provider: p.provider.Name(),
			Code:     "INVALID_COORDINATES",
			Message:  "invalid directions request",
			Err:      err,
		}
	}

	key := CacheKey(req)

	cached := p.lookup(ctx, key)
	if cached != nil && time.Now().Before(cached.ExpiresAt) {
		p.logger.Debug().
			Str("cache_key", key).
			Msg("cache hit for directions")
		return cached.Response, nil
	}

	// The flight outlives whichever caller started it; each caller stops
	// waiting on its own context.
	flightCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(flightCtx, p.fetchTimeout)
		defer cancel()
		return p.fetch(fctx, req, key)
	})

	select {
	case res := <-ch:
		if res.Shared {
			p.logger.Debug().
				Str("cache_key", key).
				Msg("shared in-flight directions fetch")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*DirectionsResponse), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *CachingProvider) lookup(ctx context.Context, key string) *CachedDirections {
	entry, found, err := p.store.Get(ctx, key)
	if err != nil {
		p.logger.Warn().Err(err).
			Str("cache_key", key).
			Msg("directions cache read failed")
		return nil
	}
	if !found {
		return nil
	}
	return entry
}

func (p *CachingProvider) fetch(ctx context.Context, req DirectionsRequest, key string) (*DirectionsResponse, error) {
	// Double-check: another caller may have filled the entry while we waited.
	cached := p.lookup(ctx, key)
	if cached != nil && time.Now().Before(cached.ExpiresAt) {
		p.logger.Debug().
			Str("cache_key", key).
			Msg("cache hit after double-check")
		return cached.Response, nil
	}

	p.logger.Debug().
		Int("coordinate_count", len(req.Coordinates)).
		Bool("alternatives", req.Alternatives).
		Str("profile", string(req.Profile)).
		Str("provider", p.provider.Name()).
		Msg("fetching directions from provider")

	resp, err := p.provider.GetDirections(ctx, req)
	if err != nil {
		p.logger.Error().Err(err).
			Str("cache_key", key).
			Str("profile", string(req.Profile)).
			Msg("failed to fetch directions")

		// Credential errors are never masked by stale data.
		if cached != nil && !IsConfigurationError(err) &&
			time.Now().Before(cached.FetchedAt.Add(p.staleIfErrorTTL)) {
			p.logger.Warn().
				Time("fetched_at", cached.FetchedAt).
				Str("cache_key", key).
				Msg("serving stale directions data due to provider error")
			return cached.Response, nil
		}

		return nil, err
	}

	now := time.Now()
	entry := &CachedDirections{
		Response:  resp,
		FetchedAt: now,
		ExpiresAt: now.Add(p.cacheTTL),
	}
	if err := p.store.Set(ctx, key, entry, p.staleIfErrorTTL); err != nil {
		p.logger.Warn().Err(err).
			Str("cache_key", key).
			Msg("directions cache write failed")
	} else {
		p.logger.Debug().
			Str("cache_key", key).
			Int("route_count", len(resp.Routes)).
			Msg("cached directions response")
	}

	return resp, nil
}

// CacheKey generates a cache key for a directions request.
// Format: {profile}:{alternatives}:{lon},{lat};{lon},{lat}... with 5 decimal places.
func CacheKey(req DirectionsRequest) string {
	profile := req.Profile
	if profile == "" {
		profile = ProfileDriving
	}

	var b strings.Builder
	b.WriteString(string(profile))
	b.WriteByte(':')
	b.WriteString(strconv.FormatBool(req.Alternatives))
	b.WriteByte(':')
	for i, c := range req.Coordinates {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%.5f,%.5f", c.Lon, c.Lat)
	}
	return b.String()
}

// MemoryStoreConfig holds configuration for the in-memory cache store.
type MemoryStoreConfig struct {
	// CleanupInterval is how often to clean up expired entries (default: 5 minutes).
	CleanupInterval time.Duration
}

// MemoryStore is a process-local CacheStore.
type MemoryStore struct {
	cleanupInterval time.Duration

	mu          sync.RWMutex
	entries     map[string]memoryEntry
	lastCleanup time.Time
}

type memoryEntry struct {
	value    *CachedDirections
	deadline time.Time
}

// NewMemoryStore creates a new in-memory cache store.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}
	return &MemoryStore{
		cleanupInterval: cleanupInterval,
		entries:         make(map[string]memoryEntry),
	}
}

// Get implements CacheStore.
func (s *MemoryStore) Get(_ context.Context, key string) (*CachedDirections, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || time.Now().After(e.deadline) {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements CacheStore.
func (s *MemoryStore) Set(_ context.Context, key string, entry *CachedDirections, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		value:    entry,
		deadline: entry.FetchedAt.Add(retention),
	}
	s.cleanupIfNeeded()
	return nil
}

// Len returns the number of entries currently held, including expired ones not yet cleaned up.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all entries.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
}

// cleanupIfNeeded removes expired entries if the cleanup interval has passed.
// Callers must hold s.mu.
func (s *MemoryStore) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	for key, e := range s.entries {
		if now.After(e.deadline) {
			delete(s.entries, key)
		}
	}
}
