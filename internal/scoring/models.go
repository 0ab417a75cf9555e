package scoring

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Point is a wire coordinate.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Candidate is a route geometry submitted for scoring.
type Candidate struct {
	Geometry        *geojson.Geometry `json:"geometry"`
	DurationSeconds float64           `json:"duration_s"`
	DistanceMeters  float64           `json:"distance_m"`
}

// Request is the body of a score-routes call.
type Request struct {
	Start      Point       `json:"start"`
	End        Point       `json:"end"`
	Candidates []Candidate `json:"candidates"`
}

// AQISample is a PM2.5 reading taken along a route.
type AQISample struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	PM25 float64 `json:"pm2_5"`
}

// BackendRoute is one scored route as returned by the scorer.
type BackendRoute struct {
	Index         int               `json:"index"`
	IsBest        bool              `json:"is_best"`
	AvgPM25       float64           `json:"avg_pm2_5"`
	DurationMin   float64           `json:"duration_min"`
	DistanceKm    float64           `json:"distance_km"`
	Geometry      *geojson.Geometry `json:"geometry"`
	AQISamples    []AQISample       `json:"aqi_samples,omitempty"`
	GoogleMapsURL string            `json:"google_maps_url,omitempty"`
}

// Response is the scorer's answer.
type Response struct {
	Routes    []BackendRoute `json:"routes"`
	BestIndex int            `json:"best_index"`
}

// ScoredRoute is a candidate annotated with pollution data.
type ScoredRoute struct {
	Index         int
	IsBest        bool
	AvgPM25       float64
	DurationMin   float64
	DistanceKm    float64
	Geometry      orb.Geometry
	AQISamples    []AQISample
	GoogleMapsURL string
}

// Result is the assembled scoring outcome.
type Result struct {
	Routes    []ScoredRoute
	Features  *geojson.FeatureCollection
	BestIndex int
}

// Best returns the route flagged as best, falling back to the route at BestIndex.
func (r *Result) Best() (ScoredRoute, bool) {
	for _, route := range r.Routes {
		if route.IsBest {
			return route, true
		}
	}
	if r.BestIndex >= 0 && r.BestIndex < len(r.Routes) {
		return r.Routes[r.BestIndex], true
	}
	return ScoredRoute{}, false
}

// Fastest returns the route with the shortest duration.
func (r *Result) Fastest() (ScoredRoute, bool) {
	if len(r.Routes) == 0 {
		return ScoredRoute{}, false
	}
	fastest := r.Routes[0]
	for _, route := range r.Routes[1:] {
		if route.DurationMin < fastest.DurationMin {
			fastest = route
		}
	}
	return fastest, true
}
