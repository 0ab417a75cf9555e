package exposure

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/tidwall/rtree"
)

// Sample is a PM2.5 reading at a location.
type Sample struct {
	Point orb.Point
	PM25  float64
}

// SampleIndex answers nearest-sample queries.
type SampleIndex struct {
	tree rtree.RTreeG[Sample]
}

// NewSampleIndex indexes samples by location.
func NewSampleIndex(samples []Sample) *SampleIndex {
	idx := &SampleIndex{}
	for _, s := range samples {
		p := [2]float64{s.Point.Lon(), s.Point.Lat()}
		idx.tree.Insert(p, p, s)
	}
	return idx
}

// Len returns the number of indexed samples.
func (idx *SampleIndex) Len() int {
	return idx.tree.Len()
}

// Nearest returns the sample closest to p in planar degree space.
func (idx *SampleIndex) Nearest(p orb.Point) (Sample, bool) {
	var (
		found  Sample
		ok     bool
		target = [2]float64{p.Lon(), p.Lat()}
	)
	idx.tree.Nearby(
		rtree.BoxDist[float64, Sample](target, target, nil),
		func(_, _ [2]float64, s Sample, _ float64) bool {
			found, ok = s, true
			return false
		},
	)
	return found, ok
}

// SegmentsAlongRoute splits durationMinutes across the legs of line in proportion
// to their geodesic length and takes each leg's PM2.5 from the sample nearest to
// its midpoint. Zero-length lines spread time evenly over the legs. It returns nil
// when the line has fewer than two points or there are no samples.
func SegmentsAlongRoute(line orb.LineString, samples []Sample, durationMinutes float64, mode Mode) []Segment {
	if len(line) < 2 || len(samples) == 0 {
		return nil
	}

	idx := NewSampleIndex(samples)
	legs := len(line) - 1
	total := geo.Length(line)
	hours := durationMinutes / 60

	segments := make([]Segment, 0, legs)
	for i := 0; i < legs; i++ {
		a, b := line[i], line[i+1]

		share := 1 / float64(legs)
		if total > 0 {
			share = geo.Distance(a, b) / total
		}

		mid := orb.Point{(a.Lon() + b.Lon()) / 2, (a.Lat() + b.Lat()) / 2}
		sample, _ := idx.Nearest(mid)

		legHours := hours * share
		segments = append(segments, Segment{
			PM25:          sample.PM25,
			DurationHours: legHours,
			Dose:          SegmentDose(sample.PM25, legHours, mode),
		})
	}
	return segments
}
