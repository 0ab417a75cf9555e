// Package openrouteservice provides a client for the OpenRouteService directions API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/provider/resilience"
	"github.com/breatheroute/cleanroute/internal/routing"
	"github.com/breatheroute/cleanroute/pkg/polyline"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// alternativeTargetCount is how many routes ORS is asked for when alternatives are on.
	alternativeTargetCount = 3
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key. Requests fail with routing.ErrMissingCredential when empty.
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the upstream registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// orsProfile maps a routing profile to the ORS profile path segment.
func orsProfile(p routing.Profile) string {
	switch p {
	case routing.ProfileCycling:
		return "cycling-regular"
	case routing.ProfileWalking:
		return "foot-walking"
	default:
		return "driving-car"
	}
}

// GetDirections retrieves routes through the ordered request coordinates.
// The requested geometry format is ignored: ORS always returns an encoded polyline,
// which is decoded into an orb.LineString.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if c.apiKey == "" {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "MISSING_CREDENTIAL",
			Message:  "OpenRouteService API key is not configured",
			Err:      routing.ErrMissingCredential,
		}
	}

	if err := req.Validate(); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_COORDINATES",
			Message:  "invalid directions request",
			Err:      err,
		}
	}

	// ORS uses [lon, lat] order (GeoJSON)
	coords := make([][]float64, 0, len(req.Coordinates))
	for _, co := range req.Coordinates {
		coords = append(coords, []float64{co.Lon, co.Lat})
	}

	orsReq := orsRequest{
		Coordinates:  coords,
		Instructions: true,
		Geometry:     true,
		Units:        "m",
	}
	if req.Alternatives && len(coords) == 2 {
		orsReq.AlternativeRoutes = &alternativeRoutesOpts{
			TargetCount:  alternativeTargetCount,
			ShareFactor:  0.6,
			WeightFactor: 1.4,
		}
	}

	body, err := json.Marshal(orsReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	profile := orsProfile(req.Profile)
	url := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	c.logger.Debug().
		Str("profile", profile).
		Int("coordinate_count", len(coords)).
		Bool("alternatives", orsReq.AlternativeRoutes != nil).
		Msg("requesting directions from ORS")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var orsResp orsResponse
	if err := json.Unmarshal(respBody, &orsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	result, err := c.toDirectionsResponse(&orsResp)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("route_count", len(result.Routes)).
		Msg("received directions from ORS")

	return result, nil
}

// handleErrorResponse maps an ORS error response to a *routing.Error.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var orsErr orsErrorResponse
	decoded := json.Unmarshal(body, &orsErr) == nil

	code, sentinel := classify(statusCode, orsErr.Error.Code)
	message := orsErr.Error.Message
	if !decoded || message == "" {
		message = fmt.Sprintf("routing provider returned status %d", statusCode)
	}

	c.logger.Debug().
		Int("status", statusCode).
		Int("ors_code", orsErr.Error.Code).
		Str("code", code).
		Msg("ORS request rejected")

	return &routing.Error{Provider: ProviderName, Code: code, Message: message, Err: sentinel}
}

// classify maps an HTTP status and ORS error code to an error code and sentinel.
func classify(statusCode, orsCode int) (string, error) {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return "RATE_LIMIT", routing.ErrRateLimitExceeded
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return "FORBIDDEN", routing.ErrMissingCredential
	case statusCode == http.StatusNotFound,
		orsCode == orsErrorCodeNotFound, orsCode == orsErrorCodePointNotFound:
		return "NO_ROUTE", routing.ErrNoRouteFound
	case orsCode == orsErrorCodeInvalidParam:
		return "INVALID_PARAMETER", routing.ErrInvalidCoordinates
	case statusCode == http.StatusBadRequest:
		return "BAD_REQUEST", routing.ErrInvalidCoordinates
	case statusCode >= http.StatusInternalServerError:
		return fmt.Sprintf("SERVER_%d", statusCode), routing.ErrProviderUnavailable
	default:
		return fmt.Sprintf("HTTP_%d", statusCode), routing.ErrProviderUnavailable
	}
}

// toDirectionsResponse converts an ORS response to the domain model.
func (c *Client) toDirectionsResponse(resp *orsResponse) (*routing.DirectionsResponse, error) {
	routes := make([]routing.Route, 0, len(resp.Routes))

	for i := range resp.Routes {
		orsRoute := &resp.Routes[i]

		line, err := polyline.Decode(orsRoute.Geometry, polyline.DefaultPrecision)
		if err != nil {
			return nil, &routing.Error{
				Provider: ProviderName,
				Code:     "BAD_GEOMETRY",
				Message:  fmt.Sprintf("route %d has an undecodable geometry", i),
				Err:      fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err),
			}
		}

		route := routing.Route{
			Geometry:        line,
			DistanceMeters:  orsRoute.Summary.Distance,
			DurationSeconds: orsRoute.Summary.Duration,
			Summary:         routeSummaryName(orsRoute.Segments),
		}
		// ORS returns a single point for zero-length routes.
		if len(line) == 1 {
			route.Geometry = line[0]
		}

		routes = append(routes, route)
	}

	return &routing.DirectionsResponse{
		Routes:    routes,
		Provider:  ProviderName,
		FetchedAt: time.Now(),
	}, nil
}

// routeSummaryName returns the street name of the longest named step.
func routeSummaryName(segments []routeSegment) string {
	var (
		name    string
		longest float64
	)
	for i := range segments {
		for _, step := range segments[i].Steps {
			if step.Name == "" || step.Name == "-" {
				continue
			}
			if step.Distance > longest {
				longest = step.Distance
				name = step.Name
			}
		}
	}
	return name
}
