// Package mapbox provides a client for the Mapbox Directions API.
package mapbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/provider/resilience"
	"github.com/breatheroute/cleanroute/internal/routing"
	"github.com/breatheroute/cleanroute/pkg/polyline"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "mapbox"

	// DefaultBaseURL is the Mapbox API base URL.
	DefaultBaseURL = "https://api.mapbox.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Mapbox client.
type ClientConfig struct {
	// AccessToken is the Mapbox access token. Requests fail with
	// routing.ErrMissingCredential when empty.
	AccessToken string

	// BaseURL is the API base URL (optional, defaults to the Mapbox API).
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

// Client is a Mapbox Directions API client.
type Client struct {
	accessToken string
	baseURL     string
	httpClient  HTTPDoer
	logger      zerolog.Logger
}

// NewClient creates a new Mapbox client.
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
		accessToken: cfg.AccessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		logger:      cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetDirections retrieves routes through the ordered request coordinates.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if c.accessToken == "" {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "MISSING_CREDENTIAL",
			Message:  "Mapbox access token is not configured",
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

	geometries := req.Geometries
	if geometries == "" {
		geometries = routing.GeometryGeoJSON
	}
	profile := req.Profile
	if profile == "" {
		profile = routing.ProfileDriving
	}

	endpoint := fmt.Sprintf("%s/directions/v5/mapbox/%s/%s",
		c.baseURL, profile, coordinatePath(req.Coordinates))

	q := url.Values{}
	q.Set("alternatives", strconv.FormatBool(req.Alternatives))
	q.Set("geometries", string(geometries))
	q.Set("overview", "full")
	q.Set("steps", "false")
	q.Set("access_token", c.accessToken)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("profile", string(profile)).
		Int("coordinate_count", len(req.Coordinates)).
		Bool("alternatives", req.Alternatives).
		Str("geometries", string(geometries)).
		Msg("requesting directions from Mapbox")

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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var mbResp directionsResponse
	decodeErr := json.Unmarshal(body, &mbResp)

	if resp.StatusCode != http.StatusOK || (decodeErr == nil && mbResp.Code != codeOK) {
		return nil, c.handleErrorResponse(resp.StatusCode, &mbResp, decodeErr)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding response: %w", decodeErr)
	}

	result, err := toDirectionsResponse(&mbResp, geometries)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("route_count", len(result.Routes)).
		Msg("received directions from Mapbox")

	return result, nil
}

// coordinatePath renders coordinates as "lon,lat;lon,lat" for the request path.
func coordinatePath(coords []routing.Coordinate) string {
	parts := make([]string, 0, len(coords))
	for _, co := range coords {
		parts = append(parts,
			strconv.FormatFloat(co.Lon, 'f', 6, 64)+","+strconv.FormatFloat(co.Lat, 'f', 6, 64))
	}
	return strings.Join(parts, ";")
}

// handleErrorResponse maps Mapbox error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, resp *directionsResponse, decodeErr error) error {
	message := resp.Message
	if decodeErr != nil || message == "" {
		message = fmt.Sprintf("routing provider returned status %d", statusCode)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden || resp.Code == codeNotAuthorized:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "UNAUTHORIZED",
			Message:  "Mapbox rejected the access token",
			Err:      routing.ErrMissingCredential,
		}
	case statusCode == http.StatusTooManyRequests:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case resp.Code == codeNoRoute || resp.Code == codeNoSegment:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  message,
			Err:      routing.ErrNoRouteFound,
		}
	case resp.Code == codeInvalidInput || resp.Code == codeProfileNotFound ||
		statusCode == http.StatusUnprocessableEntity || statusCode == http.StatusBadRequest:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_INPUT",
			Message:  message,
			Err:      routing.ErrInvalidCoordinates,
		}
	case statusCode >= 500:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "routing provider is temporarily unavailable",
			Err:      routing.ErrProviderUnavailable,
		}
	default:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  message,
			Err:      routing.ErrProviderUnavailable,
		}
	}
}

// toDirectionsResponse converts a Mapbox response to the domain model.
func toDirectionsResponse(resp *directionsResponse, format routing.GeometryFormat) (*routing.DirectionsResponse, error) {
	routes := make([]routing.Route, 0, len(resp.Routes))

	for i := range resp.Routes {
		r := &resp.Routes[i]

		route := routing.Route{
			DistanceMeters:  r.Distance,
			DurationSeconds: r.Duration,
		}
		if len(r.Legs) > 0 {
			route.Summary = r.Legs[0].Summary
		}

		geom, err := decodeGeometry(r.Geometry, format)
		if err != nil {
			return nil, &routing.Error{
				Provider: ProviderName,
				Code:     "BAD_GEOMETRY",
				Message:  fmt.Sprintf("route %d has an undecodable geometry", i),
				Err:      fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err),
			}
		}
		route.Geometry = geom

		routes = append(routes, route)
	}

	return &routing.DirectionsResponse{
		Routes:    routes,
		Provider:  ProviderName,
		FetchedAt: time.Now(),
	}, nil
}

// decodeGeometry handles both GeoJSON objects and encoded polyline strings.
func decodeGeometry(raw json.RawMessage, format routing.GeometryFormat) (orb.Geometry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, err
		}
		line, err := polyline.Decode(encoded, polyline.DefaultPrecision)
		if err != nil {
			return nil, err
		}
		if len(line) == 1 {
			return line[0], nil
		}
		return line, nil
	}

	if format == routing.GeometryPolyline {
		return nil, fmt.Errorf("expected encoded polyline, got %c", raw[0])
	}

	var g geojson.Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return g.Geometry(), nil
}
