// Package metrics holds the Prometheus collectors for route planning.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cleanroute"

// Directions call kinds.
const (
	KindDirect   = "direct"
	KindWaypoint = "waypoint"
)

// Coalesce reasons.
const (
	ReasonInFlight = "in_flight"
	ReasonCacheHit = "cache_hit"
)

// Engine groups the planning collectors. A nil *Engine is valid and records nothing.
type Engine struct {
	registry *prometheus.Registry

	directionsCalls   *prometheus.CounterVec
	candidates        prometheus.Histogram
	planTransitions   *prometheus.CounterVec
	coalescedTriggers *prometheus.CounterVec
	staleDiscards     prometheus.Counter
	scorerDuration    *prometheus.HistogramVec
	warmupCorridors   *prometheus.CounterVec
	activeSessions    prometheus.Gauge
}

// New creates the collectors on a fresh registry that also carries the Go and process collectors.
func New() *Engine {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Engine {
	factory := promauto.With(reg)

	return &Engine{
		registry: reg,

		directionsCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "directions_calls_total",
			Help:      "Directions provider calls made during candidate discovery",
		}, []string{"kind", "outcome"}),

		candidates: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates",
			Help:      "Unique route candidates produced per discovery",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
		}),

		planTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "transitions_total",
			Help:      "Planner state transitions by target state",
		}, []string{"state"}),

		coalescedTriggers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "coalesced_triggers_total",
			Help:      "Plan triggers that did not start a fetch",
		}, []string{"reason"}),

		staleDiscards: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "stale_discards_total",
			Help:      "Completed fetches dropped because the request key moved on",
		}),

		scorerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "request_duration_seconds",
			Help:      "External scorer latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),

		warmupCorridors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "warmup_corridors_total",
			Help:      "Corridors processed by cache warm-up jobs",
		}, []string{"outcome"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "active_sessions",
			Help:      "Planning sessions currently held in memory",
		}),
	}
}

// Registry returns the registry backing the collectors.
func (e *Engine) Registry() *prometheus.Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Engine) Handler() http.Handler {
	if e == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// DirectionsCall records one provider call made by discovery.
func (e *Engine) DirectionsCall(kind string, err error) {
	if e == nil {
		return
	}
	e.directionsCalls.WithLabelValues(kind, outcome(err)).Inc()
}

// CandidatesDiscovered records the size of a discovery result.
func (e *Engine) CandidatesDiscovered(n int) {
	if e == nil {
		return
	}
	e.candidates.Observe(float64(n))
}

// PlanTransition records a planner transition into state.
func (e *Engine) PlanTransition(state string) {
	if e == nil {
		return
	}
	e.planTransitions.WithLabelValues(state).Inc()
}

// Coalesced records a trigger that did not start a fetch.
func (e *Engine) Coalesced(reason string) {
	if e == nil {
		return
	}
	e.coalescedTriggers.WithLabelValues(reason).Inc()
}

// StaleDiscard records a dropped completion.
func (e *Engine) StaleDiscard() {
	if e == nil {
		return
	}
	e.staleDiscards.Inc()
}

// ScorerCall records the latency and outcome of one scorer request.
func (e *Engine) ScorerCall(d time.Duration, err error) {
	if e == nil {
		return
	}
	e.scorerDuration.WithLabelValues(outcome(err)).Observe(d.Seconds())
}

// WarmupCorridor records one corridor processed by a warm-up job.
func (e *Engine) WarmupCorridor(err error) {
	if e == nil {
		return
	}
	e.warmupCorridors.WithLabelValues(outcome(err)).Inc()
}

// SetActiveSessions sets the session gauge.
func (e *Engine) SetActiveSessions(n int) {
	if e == nil {
		return
	}
	e.activeSessions.Set(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
