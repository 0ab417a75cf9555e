// Package airquality provides ambient air quality lookups with grid caching.
package airquality

import (
	"context"
	"errors"
	"time"
)

// Provider errors.
var (
	ErrProviderUnavailable = errors.New("air quality provider unavailable")
	ErrNoData              = errors.New("no air quality data for location")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrMissingAPIKey       = errors.New("air quality API key not configured")
)

// Provider defines the interface for air quality data providers.
type Provider interface {
	// GetCurrent fetches the current reading for a location.
	GetCurrent(ctx context.Context, lat, lon float64) (*Reading, error)

	// Name returns the provider name for logging.
	Name() string
}

// Reading is the air quality at a point. Concentrations are in µg/m³; a
// component the provider did not report is 0.
type Reading struct {
	Lat float64
	Lon float64

	// AQI is the provider index from 1 (good) to 5 (very poor).
	AQI int

	PM25 float64
	PM10 float64
	NO2  float64
	O3   float64
	CO   float64
	SO2  float64
	NH3  float64

	MeasuredAt time.Time
	FetchedAt  time.Time
}

// Level returns the label for the reading's AQI.
func (r *Reading) Level() string {
	return LevelLabel(r.AQI)
}

// LevelLabel returns the label for a 1-5 AQI, or "Unknown".
func LevelLabel(aqi int) string {
	switch aqi {
	case 1:
		return "Good"
	case 2:
		return "Fair"
	case 3:
		return "Moderate"
	case 4:
		return "Poor"
	case 5:
		return "Very Poor"
	default:
		return "Unknown"
	}
}
