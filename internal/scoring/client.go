// Package scoring talks to the external route scorer, which samples PM2.5 along
// candidate geometries and ranks them, and assembles its answer for display.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/discovery"
	"github.com/breatheroute/cleanroute/internal/metrics"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
	"github.com/breatheroute/cleanroute/internal/routing"
)

const (
	// UpstreamName identifies the scorer in health reporting.
	UpstreamName = "scorer"

	// DefaultTimeout bounds a scoring call; the scorer samples AQI for every candidate.
	DefaultTimeout = 30 * time.Second

	scorePath = "/score-routes"
)

// ErrScorerUnavailable indicates the scorer could not be reached or failed.
var ErrScorerUnavailable = errors.New("route scorer unavailable")

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the scorer client.
type ClientConfig struct {
	// BaseURL is the scorer base URL (required).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 30s).
	Timeout time.Duration

	// Registry is the upstream registry for health tracking (optional).
	Registry *resilience.Registry

	// Metrics records call latency and outcome (optional).
	Metrics *metrics.Engine

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a route scorer client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	metrics    *metrics.Engine
	logger     zerolog.Logger
}

// NewClient creates a new scorer client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(UpstreamName)
		clientCfg.Timeout = timeout
		clientCfg.MaxRetries = 1
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// NewRequest builds a scoring request from discovered candidates.
func NewRequest(start, end routing.Coordinate, candidates []discovery.Candidate) Request {
	req := Request{
		Start:      Point{Lon: start.Lon, Lat: start.Lat},
		End:        Point{Lon: end.Lon, Lat: end.Lat},
		Candidates: make([]Candidate, 0, len(candidates)),
	}
	for _, c := range candidates {
		req.Candidates = append(req.Candidates, Candidate{
			Geometry:        geojson.NewGeometry(c.Geometry),
			DurationSeconds: c.DurationSeconds,
			DistanceMeters:  c.DistanceMeters,
		})
	}
	return req
}

// Score submits candidates to the scorer. A successful call may carry zero routes;
// use Assemble to turn that into ErrNoRoutes.
func (c *Client) Score(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.score(ctx, req)
	c.metrics.ScorerCall(time.Since(start), err)
	return resp, err
}

func (c *Client) score(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding score request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+scorePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Int("candidate_count", len(req.Candidates)).
		Msg("requesting route scores")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScorerUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrScorerUnavailable, resp.StatusCode, truncate(respBody, 200))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decoding score response: %w", err)
	}

	c.logger.Debug().
		Int("route_count", len(out.Routes)).
		Int("best_index", out.BestIndex).
		Msg("received route scores")

	return &out, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
