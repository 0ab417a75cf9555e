package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
)

// mockProvider is a mock directions provider for testing.
type mockProvider struct {
	name      string
	response  *DirectionsResponse
	err       error
	callCount atomic.Int32
	delay     time.Duration
}

func (m *mockProvider) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	m.callCount.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockProvider) Name() string {
	return m.name
}

func testResponse() *DirectionsResponse {
	return &DirectionsResponse{
		Routes: []Route{
			{
				Geometry:        orb.LineString{{4.9041, 52.3676}, {5.1214, 52.0907}},
				DistanceMeters:  12345,
				DurationSeconds: 2456,
			},
		},
		Provider:  "test-provider",
		FetchedAt: time.Now(),
	}
}

func testRequest() DirectionsRequest {
	return DirectionsRequest{
		Coordinates: []Coordinate{
			{Lon: 4.9041, Lat: 52.3676},
			{Lon: 5.1214, Lat: 52.0907},
		},
		Alternatives: true,
		Profile:      ProfileCycling,
	}
}

func TestCachingProvider_GetDirections_CacheMiss(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: testResponse()}

	cp := NewCachingProvider(CachingProviderConfig{
		Provider: provider,
		CacheTTL: 5 * time.Minute,
	})

	resp, err := cp.GetDirections(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.callCount.Load() != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.callCount.Load())
	}
	if len(resp.Routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(resp.Routes))
	}
	if resp.Routes[0].DistanceMeters != 12345 {
		t.Errorf("expected distance 12345, got %f", resp.Routes[0].DistanceMeters)
	}
}

func TestCachingProvider_GetDirections_CacheHit(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: testResponse()}

	cp := NewCachingProvider(CachingProviderConfig{
		Provider: provider,
		CacheTTL: 5 * time.Minute,
	})

	req := testRequest()

	if _, err := cp.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}
	if _, err := cp.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}

	if provider.callCount.Load() != 1 {
		t.Errorf("expected 1 provider call (cache hit), got %d", provider.callCount.Load())
	}
}

func TestCachingProvider_GetDirections_WaypointsAreDistinctKeys(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: testResponse()}

	cp := NewCachingProvider(CachingProviderConfig{Provider: provider})

	start := Coordinate{Lon: 81.0, Lat: 26.9}
	end := Coordinate{Lon: 81.2, Lat: 27.0}

	for _, wp := range []Coordinate{
		{Lon: 81.095, Lat: 26.97},
		{Lon: 81.105, Lat: 26.93},
		{Lon: 81.095, Lat: 26.97},
	} {
		_, err := cp.GetDirections(context.Background(), DirectionsRequest{
			Coordinates: []Coordinate{start, wp, end},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if provider.callCount.Load() != 2 {
		t.Errorf("expected 2 provider calls (one per distinct waypoint), got %d", provider.callCount.Load())
	}
}

func TestCachingProvider_GetDirections_DifferentProfilesNotCached(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: testResponse()}

	cp := NewCachingProvider(CachingProviderConfig{Provider: provider})

	req := testRequest()
	_, _ = cp.GetDirections(context.Background(), req)

	req.Profile = ProfileWalking
	_, _ = cp.GetDirections(context.Background(), req)

	if provider.callCount.Load() != 2 {
		t.Errorf("expected 2 provider calls (different profiles), got %d", provider.callCount.Load())
	}
}

func TestCachingProvider_GetDirections_StaleIfError(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: testResponse()}

	cp := NewCachingProvider(CachingProviderConfig{
		Provider:        provider,
		CacheTTL:        50 * time.Millisecond,
		StaleIfErrorTTL: 500 * time.Millisecond,
	})

	req := testRequest()

	if _, err := cp.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Wait for the entry to expire but stay within the stale window.
	time.Sleep(100 * time.Millisecond)

	provider.err = errors.New("provider error")

	resp, err := cp.GetDirections(context.Background(), req)
	if err != nil {
		t.Fatalf("expected stale data to be served, got error: %v", err)
	}
	if resp.Routes[0].DistanceMeters != 12345 {
		t.Errorf("expected stale distance 12345, got %f", resp.Routes[0].DistanceMeters)
	}
	if provider.callCount.Load() != 2 {
		t.Errorf("expected 2 provider calls, got %d", provider.callCount.Load())
	}
}

func TestCachingProvider_GetDirections_MissingCredentialNotMasked(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: testResponse()}

	cp := NewCachingProvider(CachingProviderConfig{
		Provider:        provider,
		CacheTTL:        10 * time.Millisecond,
		StaleIfErrorTTL: time.Minute,
	})

	req := testRequest()
	if _, err := cp.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	provider.err = &Error{Provider: "test-provider", Code: "MISSING_CREDENTIAL", Message: "no token", Err: ErrMissingCredential}

	_, err := cp.GetDirections(context.Background(), req)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestCachingProvider_GetDirections_InvalidCoordinates(t *testing.T) {
	provider := &mockProvider{name: "test-provider"}

	cp := NewCachingProvider(CachingProviderConfig{Provider: provider})

	tests := []struct {
		name string
		req  DirectionsRequest
	}{
		{
			name: "invalid origin latitude",
			req: DirectionsRequest{
				Coordinates: []Coordinate{{Lat: 91, Lon: 0}, {Lat: 0, Lon: 0}},
			},
		},
		{
			name: "invalid destination longitude",
			req: DirectionsRequest{
				Coordinates: []Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 181}},
			},
		},
		{
			name: "single coordinate",
			req: DirectionsRequest{
				Coordinates: []Coordinate{{Lat: 0, Lon: 0}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cp.GetDirections(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var routingErr *Error
			if !errors.As(err, &routingErr) {
				t.Fatalf("expected Error, got %T", err)
			}
			if !errors.Is(routingErr, ErrInvalidCoordinates) {
				t.Errorf("expected ErrInvalidCoordinates, got %v", routingErr.Err)
			}
		})
	}

	if provider.callCount.Load() != 0 {
		t.Errorf("expected no provider calls, got %d", provider.callCount.Load())
	}
}

func TestCachingProvider_GetDirections_ConcurrentRequests(t *testing.T) {
	provider := &mockProvider{
		name:     "test-provider",
		delay:    50 * time.Millisecond,
		response: testResponse(),
	}

	cp := NewCachingProvider(CachingProviderConfig{
		Provider: provider,
		CacheTTL: 5 * time.Minute,
	})

	req := testRequest()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cp.GetDirections(context.Background(), req); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// Concurrent callers share the in-flight fetch.
	calls := provider.callCount.Load()
	if calls > 3 {
		t.Errorf("expected <= 3 provider calls with shared fetches, got %d", calls)
	}
}

// gatedProvider blocks every call until release is closed, then reports the
// state of the context it was given.
type gatedProvider struct {
	started   chan struct{}
	release   chan struct{}
	callCount atomic.Int32
}

func (g *gatedProvider) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	if g.callCount.Add(1) == 1 {
		close(g.started)
	}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return testResponse(), nil
}

func (g *gatedProvider) Name() string {
	return "gated"
}

func TestCachingProvider_GetDirections_LeaderCancelDoesNotFailFollower(t *testing.T) {
	provider := &gatedProvider{started: make(chan struct{}), release: make(chan struct{})}
	cp := NewCachingProvider(CachingProviderConfig{
		Provider:     provider,
		FetchTimeout: 5 * time.Second,
	})
	req := testRequest()

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cp.GetDirections(leaderCtx, req)
		leaderErr <- err
	}()
	<-provider.started

	type result struct {
		resp *DirectionsResponse
		err  error
	}
	follower := make(chan result, 1)
	go func() {
		resp, err := cp.GetDirections(context.Background(), req)
		follower <- result{resp, err}
	}()

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader error = %v, want context.Canceled", err)
	}

	close(provider.release)
	got := <-follower
	if got.err != nil {
		t.Fatalf("follower error = %v, want nil", got.err)
	}
	if len(got.resp.Routes) != 1 {
		t.Errorf("expected 1 route, got %d", len(got.resp.Routes))
	}

	// The detached flight completed and filled the cache.
	if _, err := cp.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := provider.callCount.Load(); calls > 2 {
		t.Errorf("expected at most 2 provider calls, got %d", calls)
	}
}

func TestCacheKey(t *testing.T) {
	req := DirectionsRequest{
		Coordinates: []Coordinate{{Lon: 81.0, Lat: 26.9}, {Lon: 81.2, Lat: 27.0}},
	}

	if got, want := CacheKey(req), "driving:false:81.00000,26.90000;81.20000,27.00000"; got != want {
		t.Errorf("CacheKey() = %q, want %q", got, want)
	}

	req.Alternatives = true
	req.Profile = ProfileWalking
	if got, want := CacheKey(req), "walking:true:81.00000,26.90000;81.20000,27.00000"; got != want {
		t.Errorf("CacheKey() = %q, want %q", got, want)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{CleanupInterval: time.Millisecond})

	now := time.Now()
	entry := &CachedDirections{Response: testResponse(), FetchedAt: now, ExpiresAt: now.Add(time.Minute)}

	if err := store.Set(context.Background(), "k", entry, 20*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, found, _ := store.Get(context.Background(), "k"); !found {
		t.Fatal("expected entry to be found")
	}

	time.Sleep(40 * time.Millisecond)

	if _, found, _ := store.Get(context.Background(), "k"); found {
		t.Error("expected entry to be gone after retention")
	}

	store.Clear()
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", store.Len())
	}
}

func TestCachedCodec_RoundTripKeepsGeometry(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	entry := &CachedDirections{Response: testResponse(), FetchedAt: now, ExpiresAt: now.Add(time.Minute)}

	data, err := MarshalCached(entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := UnmarshalCached(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ls, ok := got.Response.Routes[0].LineString()
	if !ok {
		t.Fatalf("expected LineString geometry, got %T", got.Response.Routes[0].Geometry)
	}
	if !ls.Equal(entry.Response.Routes[0].Geometry.(orb.LineString)) {
		t.Errorf("geometry mismatch: %v", ls)
	}
	if !got.ExpiresAt.Equal(entry.ExpiresAt) {
		t.Errorf("expected expiry %v, got %v", entry.ExpiresAt, got.ExpiresAt)
	}
}

func TestRoute_LineString(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		ok   bool
	}{
		{"line", orb.LineString{{0, 0}, {1, 1}}, true},
		{"single point line", orb.LineString{{0, 0}}, false},
		{"point", orb.Point{0, 0}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Route{Geometry: tt.geom}.LineString()
			if ok != tt.ok {
				t.Errorf("LineString() ok = %v, want %v", ok, tt.ok)
			}
		})
	}
}
