package models

import "github.com/paulmach/orb/geojson"

// Session is returned when a planning session is created.
type Session struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	CreatedAt Timestamp `json:"createdAt"`
}

// EndpointsRequest sets or clears the start and end of a planning session.
// Omitting either point returns the session to idle.
type EndpointsRequest struct {
	Start *Point `json:"start"`
	End   *Point `json:"end"`
}

// SelectRouteRequest marks one route of the current result as selected.
type SelectRouteRequest struct {
	Index int `json:"index"`
}

// RoutePlan is the observable state of a planning session.
type RoutePlan struct {
	SessionID     string                     `json:"sessionId"`
	State         string                     `json:"state"`
	RequestKey    string                     `json:"requestKey,omitempty"`
	Start         *Point                     `json:"start,omitempty"`
	End           *Point                     `json:"end,omitempty"`
	Routes        []ScoredRoute              `json:"routes,omitempty"`
	BestIndex     *int                       `json:"bestIndex,omitempty"`
	SelectedIndex *int                       `json:"selectedIndex,omitempty"`
	Features      *geojson.FeatureCollection `json:"features,omitempty"`
	Error         string                     `json:"error,omitempty"`
	Version       uint64                     `json:"version"`
	UpdatedAt     Timestamp                  `json:"updatedAt"`
}

// ScoredRoute is one candidate route annotated with its pollution score.
type ScoredRoute struct {
	Index         int               `json:"index"`
	IsBest        bool              `json:"isBest"`
	AvgPM25       float64           `json:"avgPm25"`
	Band          string            `json:"band"`
	DurationMin   float64           `json:"durationMin"`
	DistanceKm    float64           `json:"distanceKm"`
	Geometry      *geojson.Geometry `json:"geometry,omitempty"`
	AQISamples    []AQISample       `json:"aqiSamples,omitempty"`
	GoogleMapsURL string            `json:"googleMapsUrl,omitempty"`
}

// AQISample is a PM2.5 reading taken along a route.
type AQISample struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	PM25 float64 `json:"pm25"`
}
