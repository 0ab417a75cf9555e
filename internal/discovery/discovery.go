// Package discovery synthesizes a diverse set of candidate route geometries from a
// single directions provider. The provider is asked once for the direct pair with
// alternatives, then repeatedly through waypoints pushed sideways off the direct
// line until enough distinct geometries are collected.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/breatheroute/cleanroute/internal/metrics"
	"github.com/breatheroute/cleanroute/internal/routing"
)

// DefaultTargetCount is the number of unique candidates discovery aims for.
const DefaultTargetCount = 5

// ErrDirectRequest wraps failures of the baseline start-to-end request.
var ErrDirectRequest = errors.New("direct directions request failed")

// DefaultOffsets returns the signed perpendicular offsets, in degrees, applied to
// the start/end midpoint. They alternate sides and were tuned for city-scale trips.
func DefaultOffsets() []float64 {
	return []float64{0.01, -0.01, 0.015, -0.015, 0.02, -0.02, 0.025, -0.025}
}

// Candidate is an unscored route geometry.
type Candidate struct {
	Geometry        orb.LineString
	DurationSeconds float64
	DistanceMeters  float64
}

// Config holds configuration for the Discoverer.
type Config struct {
	// Provider is the directions provider (required).
	Provider routing.Provider

	// Profile is the travel profile requested (default: driving).
	Profile routing.Profile

	// Offsets are the signed perpendicular waypoint offsets in degrees, tried in order
	// (default: DefaultOffsets()).
	Offsets []float64

	// Concurrency bounds simultaneous waypoint requests (default: 1, strictly sequential).
	Concurrency int

	// Metrics records provider calls and result sizes (optional).
	Metrics *metrics.Engine

	// Logger for discovery operations.
	Logger zerolog.Logger
}

// Discoverer produces deduplicated route candidates.
type Discoverer struct {
	provider    routing.Provider
	profile     routing.Profile
	offsets     []float64
	concurrency int
	metrics     *metrics.Engine
	logger      zerolog.Logger
}

// New creates a new Discoverer.
func New(cfg Config) *Discoverer {
	profile := cfg.Profile
	if profile == "" {
		profile = routing.ProfileDriving
	}

	offsets := cfg.Offsets
	if len(offsets) == 0 {
		offsets = DefaultOffsets()
	} else {
		offsets = append([]float64(nil), offsets...)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Discoverer{
		provider:    cfg.Provider,
		profile:     profile,
		offsets:     offsets,
		concurrency: concurrency,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Discover returns up to about targetCount unique candidates between start and end.
//
// The direct request must succeed. Each waypoint request that fails counts as no
// route from that offset. No waypoint request is issued once targetCount unique
// candidates are held; requests already in flight at that point still contribute,
// so the result can exceed targetCount when Concurrency > 1. Fewer than targetCount
// are returned when offsets run out or ctx ends during the waypoint phase.
//
// Results keep discovery order: direct routes first, then waypoint routes in offset order.
func (d *Discoverer) Discover(ctx context.Context, start, end routing.Coordinate, targetCount int) ([]Candidate, error) {
	if targetCount <= 0 {
		targetCount = DefaultTargetCount
	}

	resp, err := d.provider.GetDirections(ctx, routing.DirectionsRequest{
		Coordinates:  []routing.Coordinate{start, end},
		Alternatives: true,
		Geometries:   routing.GeometryGeoJSON,
		Profile:      d.profile,
	})
	d.metrics.DirectionsCall(metrics.KindDirect, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectRequest, err)
	}

	set := newCandidateSet()
	set.addRoutes(resp.Routes)

	d.logger.Debug().
		Int("direct_routes", len(resp.Routes)).
		Int("candidate_count", set.len()).
		Int("target_count", targetCount).
		Msg("direct directions received")

	if set.len() < targetCount {
		waypoints := PerturbedWaypoints(start, end, d.offsets)
		if len(waypoints) == 0 {
			d.logger.Debug().Msg("start and end coincide, skipping waypoint perturbation")
		} else {
			d.perturb(ctx, set, start, end, waypoints, targetCount)
		}
	}

	d.metrics.CandidatesDiscovered(set.len())
	d.logger.Debug().
		Int("candidate_count", set.len()).
		Msg("candidate discovery finished")

	return set.items, nil
}

// perturb issues waypoint requests in offset order until the target is reached.
// A done ctx stops new requests; whatever was gathered is kept.
func (d *Discoverer) perturb(ctx context.Context, set *candidateSet, start, end routing.Coordinate, waypoints []routing.Coordinate, targetCount int) {
	var (
		mu    sync.Mutex
		seen  = set.signatures()
		slots = make([][]routing.Route, len(waypoints))
		wg    sync.WaitGroup
		sem   = semaphore.NewWeighted(int64(d.concurrency))
	)

	for i, wp := range waypoints {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		mu.Lock()
		reached := len(seen) >= targetCount
		mu.Unlock()
		if reached {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(i int, wp routing.Coordinate) {
			defer wg.Done()
			defer sem.Release(1)

			routes := d.waypointRoutes(ctx, start, wp, end, i)

			mu.Lock()
			slots[i] = routes
			for _, r := range routes {
				if ls, ok := r.LineString(); ok {
					seen[Signature(ls)] = struct{}{}
				}
			}
			mu.Unlock()
		}(i, wp)
	}
	wg.Wait()

	for _, routes := range slots {
		set.addRoutes(routes)
	}

	if err := ctx.Err(); err != nil {
		d.logger.Warn().Err(err).
			Int("candidate_count", set.len()).
			Int("target_count", targetCount).
			Msg("waypoint phase cut short, keeping candidates found so far")
	}
}

// waypointRoutes requests start -> waypoint -> end without alternatives.
// Errors are logged and reported as no routes.
func (d *Discoverer) waypointRoutes(ctx context.Context, start, wp, end routing.Coordinate, index int) []routing.Route {
	resp, err := d.provider.GetDirections(ctx, routing.DirectionsRequest{
		Coordinates:  []routing.Coordinate{start, wp, end},
		Alternatives: false,
		Geometries:   routing.GeometryGeoJSON,
		Profile:      d.profile,
	})
	d.metrics.DirectionsCall(metrics.KindWaypoint, err)
	if err != nil {
		d.logger.Warn().Err(err).
			Int("offset_index", index).
			Float64("offset", d.offsets[index]).
			Float64("waypoint_lon", wp.Lon).
			Float64("waypoint_lat", wp.Lat).
			Msg("waypoint directions failed, skipping offset")
		return nil
	}
	return resp.Routes
}

// PerturbedWaypoints returns one waypoint per offset: the start/end midpoint moved
// along the unit perpendicular of the start->end direction by the signed offset.
// It returns nil when start and end coincide.
func PerturbedWaypoints(start, end routing.Coordinate, offsets []float64) []routing.Coordinate {
	dx := end.Lon - start.Lon
	dy := end.Lat - start.Lat
	length := math.Hypot(dx, dy)
	if length == 0 {
		return nil
	}

	// Unit perpendicular, rotated 90 degrees counter-clockwise.
	px, py := -dy/length, dx/length
	midLon := (start.Lon + end.Lon) / 2
	midLat := (start.Lat + end.Lat) / 2

	waypoints := make([]routing.Coordinate, 0, len(offsets))
	for _, off := range offsets {
		waypoints = append(waypoints, routing.Coordinate{
			Lon: midLon + px*off,
			Lat: midLat + py*off,
		})
	}
	return waypoints
}

// candidateSet keeps first-seen candidates in insertion order.
type candidateSet struct {
	items []Candidate
	index map[string]struct{}
}

func newCandidateSet() *candidateSet {
	return &candidateSet{index: make(map[string]struct{})}
}

func (s *candidateSet) len() int {
	return len(s.items)
}

// addRoutes adds every polyline route with at least two points whose signature is new.
func (s *candidateSet) addRoutes(routes []routing.Route) {
	for _, r := range routes {
		ls, ok := r.LineString()
		if !ok {
			continue
		}
		sig := Signature(ls)
		if _, dup := s.index[sig]; dup {
			continue
		}
		s.index[sig] = struct{}{}
		s.items = append(s.items, Candidate{
			Geometry:        ls,
			DurationSeconds: r.DurationSeconds,
			DistanceMeters:  r.DistanceMeters,
		})
	}
}

func (s *candidateSet) signatures() map[string]struct{} {
	out := make(map[string]struct{}, len(s.index))
	for k := range s.index {
		out[k] = struct{}{}
	}
	return out
}
