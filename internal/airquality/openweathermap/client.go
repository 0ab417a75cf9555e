// Package openweathermap provides a client for the OpenWeatherMap air pollution API.
package openweathermap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
)

const (
	// ProviderName identifies this air quality provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key. Requests fail with
	// airquality.ErrMissingAPIKey when empty.
	APIKey string

	// BaseURL is the API base URL (optional, defaults to OpenWeatherMap API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Registry is the upstream registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap air pollution client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetCurrent fetches current air pollution for a location.
func (c *Client) GetCurrent(ctx context.Context, lat, lon float64) (*airquality.Reading, error) {
	if c.apiKey == "" {
		return nil, airquality.ErrMissingAPIKey
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/air_pollution?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, airquality.ErrMissingAPIKey
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var owmResp airPollutionResponse
	if err := json.NewDecoder(resp.Body).Decode(&owmResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(owmResp.List) == 0 {
		return nil, airquality.ErrNoData
	}

	c.logger.Debug().
		Float64("lat", lat).
		Float64("lon", lon).
		Int("aqi", owmResp.List[0].Main.AQI).
		Msg("received air pollution reading")

	return toReading(lat, lon, &owmResp.List[0]), nil
}

// toReading converts the first list entry to the domain model.
func toReading(lat, lon float64, item *airPollutionItem) *airquality.Reading {
	return &airquality.Reading{
		Lat:        lat,
		Lon:        lon,
		AQI:        item.Main.AQI,
		PM25:       item.Components.PM25,
		PM10:       item.Components.PM10,
		NO2:        item.Components.NO2,
		O3:         item.Components.O3,
		CO:         item.Components.CO,
		SO2:        item.Components.SO2,
		NH3:        item.Components.NH3,
		MeasuredAt: time.Unix(item.Dt, 0),
		FetchedAt:  time.Now(),
	}
}

// OpenWeatherMap API response structures.

type airPollutionResponse struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	List []airPollutionItem `json:"list"`
}

type airPollutionItem struct {
	Main struct {
		AQI int `json:"aqi"`
	} `json:"main"`
	Components struct {
		CO   float64 `json:"co"`
		NO   float64 `json:"no"`
		NO2  float64 `json:"no2"`
		O3   float64 `json:"o3"`
		SO2  float64 `json:"so2"`
		PM25 float64 `json:"pm2_5"`
		PM10 float64 `json:"pm10"`
		NH3  float64 `json:"nh3"`
	} `json:"components"`
	Dt int64 `json:"dt"`
}
