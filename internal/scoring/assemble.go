package scoring

import (
	"errors"

	"github.com/paulmach/orb/geojson"
)

// ErrNoRoutes is returned when the scorer yields no routes.
var ErrNoRoutes = errors.New("no routes found between these locations")

// Feature property names on the assembled collection.
const (
	PropIsPrimary  = "isPrimary"
	PropRouteIndex = "routeIndex"
	PropPollution  = "pollution"
	PropDuration   = "duration"
	PropDistance   = "distance"
)

// Assemble maps a scorer response into a Result, keeping backend order and ranking.
func Assemble(resp *Response) (*Result, error) {
	if resp == nil || len(resp.Routes) == 0 {
		return nil, ErrNoRoutes
	}

	routes := make([]ScoredRoute, 0, len(resp.Routes))
	fc := geojson.NewFeatureCollection()

	for _, br := range resp.Routes {
		route := ScoredRoute{
			Index:         br.Index,
			IsBest:        br.IsBest,
			AvgPM25:       br.AvgPM25,
			DurationMin:   br.DurationMin,
			DistanceKm:    br.DistanceKm,
			AQISamples:    br.AQISamples,
			GoogleMapsURL: br.GoogleMapsURL,
		}
		if route.AQISamples == nil {
			route.AQISamples = []AQISample{}
		}
		if br.Geometry != nil {
			route.Geometry = br.Geometry.Geometry()
		}
		routes = append(routes, route)

		f := geojson.NewFeature(route.Geometry)
		f.Properties[PropIsPrimary] = route.IsBest
		f.Properties[PropRouteIndex] = route.Index
		f.Properties[PropPollution] = route.AvgPM25
		f.Properties[PropDuration] = route.DurationMin
		f.Properties[PropDistance] = route.DistanceKm
		fc.Append(f)
	}

	return &Result{
		Routes:    routes,
		Features:  fc,
		BestIndex: resp.BestIndex,
	}, nil
}
