// Package nominatim provides a geocoding client for the OpenStreetMap Nominatim API.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/breatheroute/cleanroute/internal/geocoding"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
)

const (
	// ProviderName identifies this geocoding provider.
	ProviderName = "nominatim"

	// DefaultBaseURL is the public Nominatim endpoint.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultUserAgent identifies the service, as the Nominatim usage policy requires.
	DefaultUserAgent = "CleanRoute/1.0"

	// DefaultInterval is the minimum spacing between upstream calls.
	DefaultInterval = 500 * time.Millisecond

	// DefaultLimit is the number of search results requested when none is given.
	DefaultLimit = 5

	// viewboxRadius is the half-width, in degrees, of the proximity viewbox.
	viewboxRadius = 1.0
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Nominatim client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to the public instance).
	BaseURL string

	// UserAgent is sent with every request (default: DefaultUserAgent).
	UserAgent string

	// Language is the accept-language sent upstream (default: "en").
	Language string

	// CountryCodes are applied to searches that do not set their own (optional).
	CountryCodes []string

	// Interval is the minimum spacing between upstream calls (default: 500ms).
	Interval time.Duration

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Registry is the upstream registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Nominatim geocoding client.
type Client struct {
	baseURL      string
	userAgent    string
	language     string
	countryCodes []string
	limiter      *rate.Limiter
	httpClient   HTTPDoer
	logger       zerolog.Logger
}

var _ geocoding.Geocoder = (*Client)(nil)

// NewClient creates a new Nominatim client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	language := cfg.Language
	if language == "" {
		language = "en"
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.UserAgent = userAgent
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		userAgent:    userAgent,
		language:     language,
		countryCodes: cfg.CountryCodes,
		limiter:      rate.NewLimiter(rate.Every(interval), 1),
		httpClient:   httpClient,
		logger:       cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Search performs a forward search.
func (c *Client) Search(ctx context.Context, query string, opts geocoding.SearchOptions) ([]geocoding.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, geocoding.ErrEmptyQuery
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := c.baseParams()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	countryCodes := opts.CountryCodes
	if len(countryCodes) == 0 {
		countryCodes = c.countryCodes
	}
	if len(countryCodes) > 0 {
		q.Set("countrycodes", strings.ToLower(strings.Join(countryCodes, ",")))
	}

	if opts.Near != nil {
		q.Set("viewbox", viewbox(*opts.Near))
		q.Set("bounded", "0")
	}

	var results []searchResult
	if err := c.get(ctx, "/search", q, &results); err != nil {
		return nil, err
	}

	places := make([]geocoding.Place, 0, len(results))
	for _, r := range results {
		p, err := r.toPlace()
		if err != nil {
			c.logger.Warn().Err(err).
				Int64("place_id", r.PlaceID).
				Msg("skipping place with unparseable coordinates")
			continue
		}
		places = append(places, p)
	}

	c.logger.Debug().
		Str("query", query).
		Int("result_count", len(places)).
		Msg("geocoding search completed")

	return places, nil
}

// Reverse returns the display name for a coordinate.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	q := c.baseParams()
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	var result reverseResult
	if err := c.get(ctx, "/reverse", q, &result); err != nil {
		return "", err
	}
	if result.Error != "" || result.DisplayName == "" {
		return "", geocoding.ErrNotFound
	}
	return result.DisplayName, nil
}

func (c *Client) baseParams() url.Values {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("accept-language", c.language)
	return q
}

// get waits for the pacing limiter, then performs the request and decodes JSON into out.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for geocoding slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", geocoding.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("path", path).
			Msg("nominatim returned an error")
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// StatusError is returned when Nominatim answers with a non-200 status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nominatim returned status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return geocoding.ErrProviderUnavailable
}

// viewbox returns "left,top,right,bottom" spanning viewboxRadius around p.
func viewbox(p geocoding.Point) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return strings.Join([]string{
		f(p.Lon - viewboxRadius),
		f(p.Lat + viewboxRadius),
		f(p.Lon + viewboxRadius),
		f(p.Lat - viewboxRadius),
	}, ",")
}

// Nominatim API response structures. Coordinates arrive as strings.

type searchResult struct {
	PlaceID     int64   `json:"place_id"`
	DisplayName string  `json:"display_name"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Importance  float64 `json:"importance"`
}

func (r searchResult) toPlace() (geocoding.Place, error) {
	lat, errLat := strconv.ParseFloat(r.Lat, 64)
	lon, errLon := strconv.ParseFloat(r.Lon, 64)
	if err := errors.Join(errLat, errLon); err != nil {
		return geocoding.Place{}, err
	}
	return geocoding.Place{
		PlaceID:     r.PlaceID,
		DisplayName: r.DisplayName,
		Lon:         lon,
		Lat:         lat,
		Importance:  r.Importance,
	}, nil
}

type reverseResult struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}
