// Package geocoding defines place search and reverse lookup used to turn user
// input into route endpoints.
package geocoding

import (
	"context"
	"errors"
)

// Geocoding errors.
var (
	ErrEmptyQuery          = errors.New("search query is empty")
	ErrNotFound            = errors.New("no place found")
	ErrProviderUnavailable = errors.New("geocoding provider unavailable")
)

// Place is a forward search result.
type Place struct {
	PlaceID     int64
	DisplayName string
	Lon         float64
	Lat         float64
	Importance  float64
}

// Point is a location used to bias search results.
type Point struct {
	Lon float64
	Lat float64
}

// SearchOptions narrows a forward search.
type SearchOptions struct {
	// Limit caps the number of results (provider default when 0).
	Limit int

	// CountryCodes restricts results to ISO 3166-1 alpha-2 codes.
	CountryCodes []string

	// Near biases results towards a point without excluding others.
	Near *Point
}

// Geocoder resolves place names and coordinates.
type Geocoder interface {
	// Search returns places matching query, best first.
	Search(ctx context.Context, query string, opts SearchOptions) ([]Place, error)

	// Reverse returns the display name of the place at a coordinate.
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}
