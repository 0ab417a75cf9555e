// Package events publishes domain events about completed route plans.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/planner"
)

// SubjectRoutePlanned is the default subject for RoutePlanned events.
const SubjectRoutePlanned = "route.planned"

// Point is a longitude/latitude pair on the wire.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// RoutePlanned is emitted after a plan reaches the success state.
type RoutePlanned struct {
	ID             string    `json:"id"`
	RequestKey     string    `json:"requestKey"`
	Start          Point     `json:"start"`
	End            Point     `json:"end"`
	CandidateCount int       `json:"candidateCount"`
	RouteCount     int       `json:"routeCount"`
	BestIndex      int       `json:"bestIndex"`
	BestAvgPM25    float64   `json:"bestAvgPm25"`
	DurationMS     int64     `json:"durationMs"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// NewRoutePlanned builds the event for a successful plan outcome.
func NewRoutePlanned(outcome planner.Outcome, now time.Time) *RoutePlanned {
	event := &RoutePlanned{
		ID:             uuid.NewString(),
		RequestKey:     outcome.Key,
		Start:          Point{Lon: outcome.Start.Lon, Lat: outcome.Start.Lat},
		End:            Point{Lon: outcome.End.Lon, Lat: outcome.End.Lat},
		CandidateCount: outcome.CandidateCount,
		DurationMS:     outcome.Duration.Milliseconds(),
		OccurredAt:     now.UTC(),
	}
	if outcome.Result != nil {
		event.RouteCount = len(outcome.Result.Routes)
		event.BestIndex = outcome.Result.BestIndex
		if best, ok := outcome.Result.Best(); ok {
			event.BestIndex = best.Index
			event.BestAvgPM25 = best.AvgPM25
		}
	}
	return event
}

// Publisher sends route events to a message bus.
type Publisher interface {
	PublishRoutePlanned(ctx context.Context, event *RoutePlanned) error
	Close()
}

// NoopPublisher discards every event. Used when events are disabled.
type NoopPublisher struct{}

// PublishRoutePlanned implements Publisher.
func (NoopPublisher) PublishRoutePlanned(context.Context, *RoutePlanned) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() {}

// OnSuccess returns a planner success hook that publishes a RoutePlanned event.
// Publish failures are logged and never affect the plan.
func OnSuccess(pub Publisher, logger zerolog.Logger) func(context.Context, planner.Outcome) {
	return func(ctx context.Context, outcome planner.Outcome) {
		event := NewRoutePlanned(outcome, time.Now())
		if err := pub.PublishRoutePlanned(ctx, event); err != nil {
			logger.Warn().Err(err).
				Str("request_key", outcome.Key).
				Str("event_id", event.ID).
				Msg("failed to publish route.planned event")
		}
	}
}
