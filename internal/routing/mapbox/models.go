package mapbox

import "encoding/json"

// directionsResponse is the Mapbox Directions API v5 response body.
type directionsResponse struct {
	Code      string          `json:"code"`
	Message   string          `json:"message,omitempty"`
	Routes    []mapboxRoute   `json:"routes"`
	Waypoints json.RawMessage `json:"waypoints,omitempty"`
}

// mapboxRoute is a single route. Geometry is a GeoJSON object or an encoded
// polyline string depending on the geometries parameter.
type mapboxRoute struct {
	Geometry   json.RawMessage `json:"geometry"`
	Distance   float64         `json:"distance"` // meters
	Duration   float64         `json:"duration"` // seconds
	WeightName string          `json:"weight_name,omitempty"`
	Legs       []routeLeg      `json:"legs,omitempty"`
}

type routeLeg struct {
	Summary  string  `json:"summary"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

// Mapbox response codes.
const (
	codeOK              = "Ok"
	codeNoRoute         = "NoRoute"
	codeNoSegment       = "NoSegment"
	codeInvalidInput    = "InvalidInput"
	codeProfileNotFound = "ProfileNotFound"
	codeNotAuthorized   = "NotAuthorized"
)
