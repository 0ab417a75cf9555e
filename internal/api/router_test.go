package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/cleanroute/internal/api"
	"github.com/breatheroute/cleanroute/internal/api/handler"
	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/discovery"
	"github.com/breatheroute/cleanroute/internal/history"
	"github.com/breatheroute/cleanroute/internal/metrics"
	"github.com/breatheroute/cleanroute/internal/planner"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
	"github.com/breatheroute/cleanroute/internal/routing"
	"github.com/breatheroute/cleanroute/internal/scoring"
)

type stubDiscoverer struct{}

func (stubDiscoverer) Discover(_ context.Context, start, end routing.Coordinate, _ int) ([]discovery.Candidate, error) {
	return []discovery.Candidate{
		{Geometry: orb.LineString{start.Point(), end.Point()}, DurationSeconds: 900, DistanceMeters: 9500},
		{Geometry: orb.LineString{start.Point(), {start.Lon, end.Lat}, end.Point()}, DurationSeconds: 720, DistanceMeters: 8100},
	}, nil
}

// stubScorer marks the slower, cleaner route as best.
type stubScorer struct{}

func (stubScorer) Score(_ context.Context, req scoring.Request) (*scoring.Response, error) {
	resp := &scoring.Response{BestIndex: 0}
	for i, c := range req.Candidates {
		resp.Routes = append(resp.Routes, scoring.BackendRoute{
			Index:       i,
			IsBest:      i == 0,
			AvgPM25:     20 + float64(i)*40,
			DurationMin: c.DurationSeconds / 60,
			DistanceKm:  c.DistanceMeters / 1000,
			Geometry:    c.Geometry,
		})
	}
	return resp, nil
}

type testEnv struct {
	router   http.Handler
	sessions *planner.Sessions
	history  *history.Service
	registry *resilience.Registry
}

func newTestEnv(t *testing.T, checks ...handler.DependencyCheck) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	hist := history.NewService(history.ServiceConfig{
		Repository: history.NewInMemoryRepository(100),
		Logger:     logger,
	})

	sessions := planner.NewSessions(planner.SessionsConfig{
		NewController: func() *planner.Controller {
			return planner.New(planner.Config{
				Discoverer:   stubDiscoverer{},
				Scorer:       stubScorer{},
				FetchTimeout: 5 * time.Second,
				OnSuccess:    hist.OnSuccess,
				Logger:       logger,
			})
		},
		IdleTTL:     time.Hour,
		MaxSessions: 10,
		Logger:      logger,
	})

	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig(scoring.UpstreamName)
	cfg.Registry = registry
	resilience.NewClient(cfg)

	router := api.NewRouter(api.RouterConfig{
		Version:        "test",
		BuildTime:      "2026-01-01T00:00:00Z",
		Logger:         logger,
		MetricsHandler: metrics.New().Handler(),
		Registry:       registry,
		Sessions:       sessions,
		WaitTimeout:    5 * time.Second,
		History:        hist,
		Checks:         checks,
	})

	return &testEnv{router: router, sessions: sessions, history: hist, registry: registry}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var s models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	require.NotEmpty(t, s.ID)
	assert.Equal(t, "/v1/sessions/"+s.ID, w.Header().Get("Location"))
	assert.Equal(t, "idle", s.State)
	return s.ID
}

var (
	lucknowStart = &models.Point{Lat: 26.8467, Lon: 80.9462}
	lucknowEnd   = &models.Point{Lat: 26.8606, Lon: 81.0169}
)

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	env := newTestEnv(t, handler.DependencyCheck{
		Name:  "directions-cache",
		Check: func(context.Context) error { return nil },
	})

	w := env.do(t, http.MethodGet, "/v1/ops/ready", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_ReadinessCheck_FailingDependency(t *testing.T) {
	env := newTestEnv(t, handler.DependencyCheck{
		Name:  "postgres",
		Check: func(context.Context) error { return errors.New("connection refused") },
	})

	w := env.do(t, http.MethodGet, "/v1/ops/ready", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusFail, health.Status)
	assert.Equal(t, "connection refused", health.Details["postgres"])
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t, handler.DependencyCheck{
		Name:  "directions-cache",
		Check: func(context.Context) error { return nil },
	})
	env.registry.RecordFailure(scoring.UpstreamName, errors.New("status 500"))

	w := env.do(t, http.MethodGet, "/v1/ops/status", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))

	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 1)
	assert.Equal(t, "directions-cache", status.Subsystems[0].Name)
	require.Len(t, status.Providers, 1)
	assert.Equal(t, scoring.UpstreamName, status.Providers[0].Provider)
	assert.Equal(t, "closed", status.Providers[0].CircuitState)
	require.NotNil(t, status.Providers[0].Message)
	assert.Equal(t, "status 500", *status.Providers[0].Message)
}

func TestRouter_Metrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_SessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	w := env.do(t, http.MethodPut, "/v1/sessions/"+id+"/endpoints?wait=true", models.EndpointsRequest{
		Start: lucknowStart,
		End:   lucknowEnd,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var plan models.RoutePlan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
	assert.Equal(t, id, plan.SessionID)
	assert.Equal(t, "success", plan.State)
	assert.Equal(t, "80.9462|26.8467|81.0169|26.8606", plan.RequestKey)
	require.Len(t, plan.Routes, 2)
	assert.True(t, plan.Routes[0].IsBest)
	assert.Equal(t, "Good", plan.Routes[0].Band)
	assert.Equal(t, "Moderate", plan.Routes[1].Band)
	require.NotNil(t, plan.BestIndex)
	assert.Equal(t, 0, *plan.BestIndex)
	require.NotNil(t, plan.SelectedIndex)
	assert.Equal(t, 0, *plan.SelectedIndex)
	require.NotNil(t, plan.Features)
	assert.Len(t, plan.Features.Features, 2)

	w = env.do(t, http.MethodPut, "/v1/sessions/"+id+"/selection", models.SelectRouteRequest{Index: 1})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
	assert.Equal(t, 1, *plan.SelectedIndex)

	w = env.do(t, http.MethodGet, "/v1/sessions/"+id+"/route", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	// Selected route is the faster one, so the reduction against the fastest is zero.
	w = env.do(t, http.MethodGet, "/v1/sessions/"+id+"/exposure?mode=cycling", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var exp models.ExposureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exp))
	require.NotNil(t, exp.RouteIndex)
	assert.Equal(t, 1, *exp.RouteIndex)
	assert.Equal(t, "CYCLING", exp.Mode)
	assert.InDelta(t, 0, exp.DoseReductionPct, 0.001)
	assert.Greater(t, exp.TotalDose, 0.0)

	w = env.do(t, http.MethodGet, "/v1/sessions/"+id+"/exposure?index=0&vulnerable=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exp))
	assert.Equal(t, "DRIVING", exp.Mode)
	assert.Greater(t, exp.DoseReductionPct, 0.0)
	assert.False(t, exp.VulnerableWarning)

	w = env.do(t, http.MethodDelete, "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/v1/sessions/"+id+"/route", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SetEndpoints_ClearingReturnsToIdle(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	w := env.do(t, http.MethodPut, "/v1/sessions/"+id+"/endpoints?wait=true", models.EndpointsRequest{
		Start: lucknowStart,
		End:   lucknowEnd,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPut, "/v1/sessions/"+id+"/endpoints", models.EndpointsRequest{Start: lucknowStart})
	require.Equal(t, http.StatusOK, w.Code)

	var plan models.RoutePlan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
	assert.Equal(t, "idle", plan.State)
	assert.Empty(t, plan.Routes)
	assert.Nil(t, plan.BestIndex)
}

func TestRouter_SetEndpoints_Validation(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	w := env.do(t, http.MethodPut, "/v1/sessions/"+id+"/endpoints", models.EndpointsRequest{
		Start: &models.Point{Lat: 91, Lon: 80},
		End:   lucknowEnd,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "start", problem.Errors[0].Field)

	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/"+id+"/endpoints", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_UnknownSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/v1/sessions/ses_missing/endpoints", models.EndpointsRequest{})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/v1/sessions/ses_missing/refetch", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ExposureWithoutRoutes(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	w := env.do(t, http.MethodGet, "/v1/sessions/"+id+"/exposure", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPut, "/v1/sessions/"+id+"/selection", models.SelectRouteRequest{Index: 0})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_Refetch(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	w := env.do(t, http.MethodPut, "/v1/sessions/"+id+"/endpoints?wait=true", models.EndpointsRequest{
		Start: lucknowStart,
		End:   lucknowEnd,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/refetch?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var plan models.RoutePlan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
	assert.Equal(t, "success", plan.State)
	assert.Len(t, plan.Routes, 2)
}

func TestRouter_StatelessExposure(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/exposure", models.ExposureRequest{
		AvgPM25:         40,
		DurationMinutes: 30,
		Mode:            "WALKING",
		Reference:       &models.ExposureReference{AvgPM25: 80, DurationMinutes: 30},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var exp models.ExposureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exp))
	assert.Equal(t, "WALKING", exp.Mode)
	assert.InDelta(t, 30.0, exp.TotalDose, 0.001)
	assert.InDelta(t, 50.0, exp.DoseReductionPct, 0.001)
	assert.Equal(t, "Moderate", exp.Band)
	assert.Nil(t, exp.RouteIndex)
}

func TestRouter_StatelessExposure_Validation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/exposure", models.ExposureRequest{
		AvgPM25:         -1,
		DurationMinutes: 10,
		Mode:            "FLYING",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Len(t, problem.Errors, 2)
}

func TestRouter_Plans(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	w := env.do(t, http.MethodPut, "/v1/sessions/"+id+"/endpoints?wait=true", models.EndpointsRequest{
		Start: lucknowStart,
		End:   lucknowEnd,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// The history hook runs after the success transition is published.
	var list models.PlanList
	require.Eventually(t, func() bool {
		w = env.do(t, http.MethodGet, "/v1/plans?limit=5", nil)
		if w.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
			return false
		}
		return len(list.Items) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 5, list.Meta.Limit)
	rec := list.Items[0]
	assert.Equal(t, 2, rec.CandidateCount)
	assert.Equal(t, 2, rec.RouteCount)
	assert.InDelta(t, 20.0, rec.BestAvgPM25, 0.001)

	w = env.do(t, http.MethodGet, "/v1/plans/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/v1/plans/pln_missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/v1/plans?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_OptionalGroupsNotMounted(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/geocode/search?q=hazratganj", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/v1/air-quality?lat=26.85&lon=80.95", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ResponseGeometryIsGeoJSON(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	w := env.do(t, http.MethodPut, "/v1/sessions/"+id+"/endpoints?wait=true", models.EndpointsRequest{
		Start: lucknowStart,
		End:   lucknowEnd,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var raw struct {
		Routes []struct {
			Geometry *geojson.Geometry `json:"geometry"`
		} `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.NotEmpty(t, raw.Routes)
	require.NotNil(t, raw.Routes[0].Geometry)
	assert.Equal(t, "LineString", raw.Routes[0].Geometry.Type)
}
