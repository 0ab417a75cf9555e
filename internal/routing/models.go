// Package routing provides directions lookups against external providers.
package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrMissingCredential indicates the provider access token is not configured.
	ErrMissingCredential = errors.New("directions provider credential not configured")
)

// Provider defines the interface for directions providers.
type Provider interface {
	// GetDirections retrieves routes through the ordered request coordinates.
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Profile is the travel profile requested from the provider.
type Profile string

const (
	ProfileDriving Profile = "driving"
	ProfileCycling Profile = "cycling"
	ProfileWalking Profile = "walking"
)

// Valid reports whether p is a known profile.
func (p Profile) Valid() bool {
	switch p {
	case ProfileDriving, ProfileCycling, ProfileWalking:
		return true
	}
	return false
}

// GeometryFormat selects how the provider encodes route geometries on the wire.
type GeometryFormat string

const (
	GeometryGeoJSON  GeometryFormat = "geojson"
	GeometryPolyline GeometryFormat = "polyline"
)

// Coordinate represents a geographic point as (longitude, latitude).
type Coordinate struct {
	Lon float64
	Lat float64
}

// Point returns the coordinate as an orb point.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// CoordinateFromPoint converts an orb point to a Coordinate.
func CoordinateFromPoint(p orb.Point) Coordinate {
	return Coordinate{Lon: p.Lon(), Lat: p.Lat()}
}

// ValidateCoordinate checks that the coordinate is finite and within WGS84 bounds.
func ValidateCoordinate(c Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidCoordinates)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidCoordinates, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidCoordinates, c.Lon)
	}
	return nil
}

// DirectionsRequest is the request for computing routes.
type DirectionsRequest struct {
	Coordinates  []Coordinate   // Ordered stops: origin, optional waypoints, destination
	Alternatives bool           // Ask the provider for alternative routes
	Geometries   GeometryFormat // Wire encoding of route geometries (default: geojson)
	Profile      Profile        // Travel profile (default: driving)
}

// MaxCoordinates is the upper bound on stops in a single request.
const MaxCoordinates = 25

// Validate checks the coordinate count and every coordinate.
func (r DirectionsRequest) Validate() error {
	if len(r.Coordinates) < 2 {
		return fmt.Errorf("%w: at least 2 coordinates required, got %d", ErrInvalidCoordinates, len(r.Coordinates))
	}
	if len(r.Coordinates) > MaxCoordinates {
		return fmt.Errorf("%w: at most %d coordinates allowed, got %d", ErrInvalidCoordinates, MaxCoordinates, len(r.Coordinates))
	}
	for i, c := range r.Coordinates {
		if err := ValidateCoordinate(c); err != nil {
			return fmt.Errorf("coordinate %d: %w", i, err)
		}
	}
	return nil
}

// DirectionsResponse is the response containing route alternatives.
type DirectionsResponse struct {
	Routes    []Route
	Provider  string
	FetchedAt time.Time
}

// Route represents a single route returned by a provider.
type Route struct {
	// Geometry is normally an orb.LineString. Some providers return an orb.Point
	// for zero-length routes.
	Geometry        orb.Geometry
	DistanceMeters  float64
	DurationSeconds float64
	Summary         string
}

// LineString returns the route geometry when it is a polyline with at least two points.
func (r Route) LineString() (orb.LineString, bool) {
	ls, ok := r.Geometry.(orb.LineString)
	if !ok || len(ls) < 2 {
		return nil, false
	}
	return ls, true
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// IsConfigurationError reports whether err is caused by missing provider configuration.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrMissingCredential)
}
