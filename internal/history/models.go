// Package history records successful route plans.
package history

import (
	"errors"
	"time"

	"github.com/breatheroute/cleanroute/internal/routing"
)

// ErrRecordNotFound is returned when a plan record does not exist.
var ErrRecordNotFound = errors.New("plan record not found")

// PlanRecord is a stored summary of one successful plan.
type PlanRecord struct {
	ID             string
	RequestKey     string
	Start          routing.Coordinate
	End            routing.Coordinate
	CandidateCount int
	RouteCount     int
	BestIndex      int
	BestAvgPM25    float64
	Duration       time.Duration
	CreatedAt      time.Time
}
