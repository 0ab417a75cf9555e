package openrouteservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/routing"
)

var (
	hazratganj = routing.Coordinate{Lat: 26.8508, Lon: 80.9455}
	gomtiNagar = routing.Coordinate{Lat: 26.8606, Lon: 81.0169}
)

func newTestClient(server *httptest.Server) *Client {
	return NewClient(ClientConfig{
		APIKey:     "mock123",
		BaseURL:    server.URL,
		HTTPClient: &mockHTTPClient{client: server.Client()},
		Logger:     zerolog.Nop(),
	})
}

func TestClient_GetDirections_Success(t *testing.T) {
	respBody, err := os.ReadFile("testdata/directions_response.json")
	if err != nil {
		t.Fatalf("failed to load test fixture: %v", err)
	}

	var sent orsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "mock123" {
			t.Errorf("expected Authorization header 'mock123', got '%s'", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type 'application/json', got '%s'", r.Header.Get("Content-Type"))
		}

		expectedPath := "/v2/directions/cycling-regular"
		if r.URL.Path != expectedPath {
			t.Errorf("expected path %s, got %s", expectedPath, r.URL.Path)
		}

		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &sent); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(respBody)
	}))
	defer server.Close()

	client := newTestClient(server)

	resp, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Coordinates:  []routing.Coordinate{hazratganj, gomtiNagar},
		Alternatives: true,
		Profile:      routing.ProfileCycling,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sent.Coordinates) != 2 || sent.Coordinates[0][0] != hazratganj.Lon || sent.Coordinates[0][1] != hazratganj.Lat {
		t.Errorf("expected [lon, lat] coordinates, got %v", sent.Coordinates)
	}
	if sent.AlternativeRoutes == nil || sent.AlternativeRoutes.TargetCount != alternativeTargetCount {
		t.Errorf("expected alternative_routes with target %d, got %+v", alternativeTargetCount, sent.AlternativeRoutes)
	}

	if resp.Provider != ProviderName {
		t.Errorf("expected provider %s, got %s", ProviderName, resp.Provider)
	}
	if len(resp.Routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(resp.Routes))
	}

	route := resp.Routes[0]
	if route.DistanceMeters != 8215.4 {
		t.Errorf("expected distance 8215.4, got %f", route.DistanceMeters)
	}
	if route.DurationSeconds != 1122.7 {
		t.Errorf("expected duration 1122.7, got %f", route.DurationSeconds)
	}
	if route.Summary != "Shaheed Path" {
		t.Errorf("expected summary 'Shaheed Path', got %q", route.Summary)
	}

	line, ok := route.LineString()
	if !ok {
		t.Fatalf("expected LineString geometry, got %T", route.Geometry)
	}
	if len(line) != 4 {
		t.Fatalf("expected 4 decoded points, got %d", len(line))
	}
	if line[0] != (orb.Point{80.9455, 26.8508}) {
		t.Errorf("expected first point at Hazratganj, got %v", line[0])
	}
	if line[3] != (orb.Point{81.0169, 26.8606}) {
		t.Errorf("expected last point at Gomti Nagar, got %v", line[3])
	}
}

func TestClient_GetDirections_WaypointDisablesAlternatives(t *testing.T) {
	var sent orsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/directions/driving-car" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &sent)
		w.Write([]byte(`{"routes":[{"summary":{"distance":10,"duration":5},"geometry":"_p~iF~ps|U_ulLnnqC"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server)

	resp, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Coordinates:  []routing.Coordinate{hazratganj, {Lat: 26.8655, Lon: 80.9812}, gomtiNagar},
		Alternatives: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sent.Coordinates) != 3 {
		t.Errorf("expected 3 coordinates, got %d", len(sent.Coordinates))
	}
	if sent.AlternativeRoutes != nil {
		t.Error("alternatives must not be requested with intermediate waypoints")
	}
	if len(resp.Routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(resp.Routes))
	}
}

func TestClient_GetDirections_SinglePointGeometry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"routes":[{"summary":{"distance":0,"duration":0},"geometry":"_p~iF~ps|U"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server)

	resp, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Coordinates: []routing.Coordinate{hazratganj, hazratganj},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := resp.Routes[0].Geometry.(orb.Point); !ok {
		t.Errorf("expected zero-length route to be a Point, got %T", resp.Routes[0].Geometry)
	}
}

func TestClient_GetDirections_MissingAPIKey(t *testing.T) {
	client := NewClient(ClientConfig{
		HTTPClient: &mockFailingClient{},
		Logger:     zerolog.Nop(),
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Coordinates: []routing.Coordinate{hazratganj, gomtiNagar},
	})
	if !errors.Is(err, routing.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}

	var routingErr *routing.Error
	if errors.As(err, &routingErr) && routingErr.IsRetryable() {
		t.Error("credential errors must not be retryable")
	}
}

func TestClient_GetDirections_ErrorMapping(t *testing.T) {
	fixture, err := os.ReadFile("testdata/error_response.json")
	if err != nil {
		t.Fatalf("failed to load test fixture: %v", err)
	}

	tests := []struct {
		name    string
		status  int
		body    []byte
		wantErr error
	}{
		{"no route found", http.StatusBadRequest, fixture, routing.ErrNoRouteFound},
		{"invalid parameter", http.StatusBadRequest, []byte(`{"error":{"code":2003,"message":"bad"}}`), routing.ErrInvalidCoordinates},
		{"rate limited", http.StatusTooManyRequests, []byte(`{"error":{"code":403,"message":"Rate limit exceeded"}}`), routing.ErrRateLimitExceeded},
		{"forbidden", http.StatusForbidden, []byte(`{"error":{"code":403,"message":"Access denied"}}`), routing.ErrMissingCredential},
		{"not found", http.StatusNotFound, []byte(`{"error":{"code":404,"message":"nope"}}`), routing.ErrNoRouteFound},
		{"server error", http.StatusInternalServerError, []byte(`{"error":{"code":500,"message":"Internal server error"}}`), routing.ErrProviderUnavailable},
		{"unparseable body", http.StatusBadGateway, []byte(`<html>`), routing.ErrProviderUnavailable},
		{"rate limited by proxy", http.StatusTooManyRequests, []byte(`<html>slow down</html>`), routing.ErrRateLimitExceeded},
		{"point not routable", http.StatusBadRequest, []byte(`{"error":{"code":2010,"message":"Could not find routable point"}}`), routing.ErrNoRouteFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write(tt.body)
			}))
			defer server.Close()

			_, err := newTestClient(server).GetDirections(context.Background(), routing.DirectionsRequest{
				Coordinates: []routing.Coordinate{hazratganj, gomtiNagar},
			})
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var routingErr *routing.Error
			if !errors.As(err, &routingErr) {
				t.Fatalf("expected routing.Error, got %T", err)
			}
			if !errors.Is(routingErr.Err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, routingErr.Err)
			}
		})
	}
}

func TestClient_GetDirections_InvalidCoordinates(t *testing.T) {
	tests := []struct {
		name   string
		coords []routing.Coordinate
	}{
		{"latitude out of range", []routing.Coordinate{{Lat: 91.0, Lon: 80.94}, {Lat: 26.86, Lon: 81.01}}},
		{"negative latitude out of range", []routing.Coordinate{{Lat: -91.0, Lon: 80.94}, {Lat: 26.86, Lon: 81.01}}},
		{"longitude out of range", []routing.Coordinate{{Lat: 26.85, Lon: 80.94}, {Lat: 26.86, Lon: 181.0}}},
		{"waypoint out of range", []routing.Coordinate{{Lat: 26.85, Lon: 80.94}, {Lat: 26.86, Lon: -181.0}, {Lat: 26.86, Lon: 81.01}}},
		{"too few coordinates", []routing.Coordinate{{Lat: 26.85, Lon: 80.94}}},
	}

	client := NewClient(ClientConfig{
		APIKey:     "mock123",
		HTTPClient: &mockFailingClient{},
		Logger:     zerolog.Nop(),
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
				Coordinates: tt.coords,
			})
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var routingErr *routing.Error
			if !errors.As(err, &routingErr) {
				t.Fatalf("expected routing.Error, got %T", err)
			}
			if !errors.Is(routingErr.Err, routing.ErrInvalidCoordinates) {
				t.Errorf("expected ErrInvalidCoordinates, got %v", routingErr.Err)
			}
		})
	}
}

func TestClient_Name(t *testing.T) {
	client := NewClient(ClientConfig{
		APIKey: "test",
		Logger: zerolog.Nop(),
	})

	if client.Name() != ProviderName {
		t.Errorf("expected %s, got %s", ProviderName, client.Name())
	}
}

func TestORSProfile(t *testing.T) {
	tests := map[routing.Profile]string{
		routing.ProfileDriving: "driving-car",
		routing.ProfileCycling: "cycling-regular",
		routing.ProfileWalking: "foot-walking",
		"":                     "driving-car",
	}
	for in, want := range tests {
		if got := orsProfile(in); got != want {
			t.Errorf("orsProfile(%q) = %q, want %q", in, got, want)
		}
	}
}

// mockHTTPClient wraps http.Client to implement HTTPDoer interface.
type mockHTTPClient struct {
	client *http.Client
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.client.Do(req)
}

// mockFailingClient simulates network errors.
type mockFailingClient struct{}

func (m *mockFailingClient) Do(req *http.Request) (*http.Response, error) {
	return nil, errors.New("network error")
}

func TestClient_GetDirections_NetworkError(t *testing.T) {
	client := NewClient(ClientConfig{
		APIKey:     "mock123",
		HTTPClient: &mockFailingClient{},
		Logger:     zerolog.Nop(),
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Coordinates: []routing.Coordinate{hazratganj, gomtiNagar},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var routingErr *routing.Error
	if !errors.As(err, &routingErr) {
		t.Fatalf("expected routing.Error, got %T", err)
	}
	if !errors.Is(routingErr.Err, routing.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", routingErr.Err)
	}
	if !routingErr.IsRetryable() {
		t.Error("network errors should be retryable")
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      *routing.Error
		expected bool
	}{
		{"provider unavailable is retryable", &routing.Error{Err: routing.ErrProviderUnavailable}, true},
		{"rate limit is retryable", &routing.Error{Err: routing.ErrRateLimitExceeded}, true},
		{"no route found is not retryable", &routing.Error{Err: routing.ErrNoRouteFound}, false},
		{"invalid coordinates is not retryable", &routing.Error{Err: routing.ErrInvalidCoordinates}, false},
		{"missing credential is not retryable", &routing.Error{Err: routing.ErrMissingCredential}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.IsRetryable() != tt.expected {
				t.Errorf("IsRetryable() = %v, expected %v", tt.err.IsRetryable(), tt.expected)
			}
		})
	}
}
