package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/cleanroute/internal/discovery"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
	"github.com/breatheroute/cleanroute/internal/routing"
)

const twoRouteResponse = `{
  "routes": [
    {
      "index": 0,
      "is_best": false,
      "avg_pm2_5": 82.4,
      "duration_min": 18.5,
      "distance_km": 24.1,
      "geometry": {"type": "LineString", "coordinates": [[81.0, 26.9], [81.1, 26.95], [81.2, 27.0]]},
      "aqi_samples": [{"lat": 26.9, "lon": 81.0, "pm2_5": 80}, {"lat": 27.0, "lon": 81.2, "pm2_5": 84.8}],
      "google_maps_url": "https://www.google.com/maps/dir/?api=1&origin=26.9,81.0&destination=27.0,81.2"
    },
    {
      "index": 1,
      "is_best": true,
      "avg_pm2_5": 61.0,
      "duration_min": 21.0,
      "distance_km": 26.3,
      "geometry": {"type": "LineString", "coordinates": [[81.0, 26.9], [81.09, 26.97], [81.2, 27.0]]}
    }
  ],
  "best_index": 1
}`

func testCandidates() []discovery.Candidate {
	return []discovery.Candidate{
		{Geometry: orb.LineString{{81.0, 26.9}, {81.1, 26.95}, {81.2, 27.0}}, DurationSeconds: 1110, DistanceMeters: 24100},
		{Geometry: orb.LineString{{81.0, 26.9}, {81.09, 26.97}, {81.2, 27.0}}, DurationSeconds: 1260, DistanceMeters: 26300},
	}
}

func newTestClient(serverURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL:    serverURL,
		HTTPClient: http.DefaultClient,
		Logger:     zerolog.Nop(),
	})
}

func TestClient_Score(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/score-routes", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(twoRouteResponse))
	}))
	defer server.Close()

	start := routing.Coordinate{Lon: 81.0, Lat: 26.9}
	end := routing.Coordinate{Lon: 81.2, Lat: 27.0}

	resp, err := newTestClient(server.URL+"/").Score(context.Background(), NewRequest(start, end, testCandidates()))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"lon": 81.0, "lat": 26.9}, got["start"])
	assert.Equal(t, map[string]any{"lon": 81.2, "lat": 27.0}, got["end"])
	candidates, ok := got["candidates"].([]any)
	require.True(t, ok)
	require.Len(t, candidates, 2)
	first := candidates[0].(map[string]any)
	assert.Equal(t, 1110.0, first["duration_s"])
	assert.Equal(t, 24100.0, first["distance_m"])
	assert.Equal(t, "LineString", first["geometry"].(map[string]any)["type"])

	require.Len(t, resp.Routes, 2)
	assert.Equal(t, 1, resp.BestIndex)
	assert.Equal(t, 82.4, resp.Routes[0].AvgPM25)
	assert.Len(t, resp.Routes[0].AQISamples, 2)
	assert.Equal(t, 84.8, resp.Routes[0].AQISamples[1].PM25)
	assert.True(t, resp.Routes[1].IsBest)
}

func TestClient_Score_EmptyRoutes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"routes": [], "best_index": 0}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).Score(context.Background(), Request{})
	require.NoError(t, err)
	assert.Empty(t, resp.Routes)

	_, err = Assemble(resp)
	assert.ErrorIs(t, err, ErrNoRoutes)
}

func TestClient_Score_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail": "AQI source down"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Score(context.Background(), Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScorerUnavailable)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "AQI source down")
}

func TestClient_Score_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"routes": [`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Score(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding score response")
}

func TestClient_Score_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url).Score(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrScorerUnavailable)
}

func TestClient_Score_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(twoRouteResponse))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).Score(ctx, Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_Score_ResilientClientRecordsHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(twoRouteResponse))
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	client := NewClient(ClientConfig{
		BaseURL:  server.URL,
		Registry: registry,
		Logger:   zerolog.Nop(),
	})

	_, err := client.Score(context.Background(), Request{})
	require.NoError(t, err)

	health := registry.Health(UpstreamName)
	require.NotNil(t, health)
	assert.True(t, health.IsHealthy())
	assert.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
}
