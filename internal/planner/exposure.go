package planner

import (
	"github.com/paulmach/orb"

	"github.com/breatheroute/cleanroute/internal/exposure"
	"github.com/breatheroute/cleanroute/internal/scoring"
)

// ExposureFor scores a route against a reference route, usually the fastest one.
// A nil reference falls back to assuming it is 20% worse. When the route carries
// AQI samples the per-segment breakdown is attached; TotalDose always uses the
// route average.
func ExposureFor(route scoring.ScoredRoute, reference *scoring.ScoredRoute, mode exposure.Mode, isVulnerable bool) exposure.Score {
	var ref *exposure.Reference
	if reference != nil {
		ref = &exposure.Reference{
			AvgPM25:         reference.AvgPM25,
			DurationMinutes: reference.DurationMin,
		}
	}

	score := exposure.Assess(route.AvgPM25, route.DurationMin, ref, mode, isVulnerable)

	if line, ok := route.Geometry.(orb.LineString); ok && len(route.AQISamples) > 0 {
		samples := make([]exposure.Sample, 0, len(route.AQISamples))
		for _, s := range route.AQISamples {
			samples = append(samples, exposure.Sample{Point: orb.Point{s.Lon, s.Lat}, PM25: s.PM25})
		}
		if segments := exposure.SegmentsAlongRoute(line, samples, route.DurationMin, mode); segments != nil {
			score.Segments = segments
		}
	}

	return score
}

// ExposureForIndex scores the route at index in result against the fastest route.
func ExposureForIndex(result *scoring.Result, index int, mode exposure.Mode, isVulnerable bool) (exposure.Score, error) {
	if result == nil || len(result.Routes) == 0 {
		return exposure.Score{}, ErrNoResult
	}
	if index < 0 || index >= len(result.Routes) {
		return exposure.Score{}, ErrIndexOutOfRange
	}

	var ref *scoring.ScoredRoute
	if fastest, ok := result.Fastest(); ok {
		ref = &fastest
	}
	return ExposureFor(result.Routes[index], ref, mode, isVulnerable), nil
}
