package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/planner"
)

// List limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ErrEmptyOutcome is returned when an outcome carries no scored routes.
var ErrEmptyOutcome = errors.New("plan outcome has no result")

// ServiceConfig holds configuration for the history service.
type ServiceConfig struct {
	// Repository stores records (required).
	Repository Repository

	// Logger for history operations.
	Logger zerolog.Logger
}

// Service records and lists plan history.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// Record stores a summary of a successful plan outcome.
func (s *Service) Record(ctx context.Context, outcome planner.Outcome) (*PlanRecord, error) {
	if outcome.Result == nil || len(outcome.Result.Routes) == 0 {
		return nil, ErrEmptyOutcome
	}

	record := &PlanRecord{
		ID:             "pln_" + uuid.New().String()[:22],
		RequestKey:     outcome.Key,
		Start:          outcome.Start,
		End:            outcome.End,
		CandidateCount: outcome.CandidateCount,
		RouteCount:     len(outcome.Result.Routes),
		BestIndex:      outcome.Result.BestIndex,
		Duration:       outcome.Duration,
		CreatedAt:      s.now().UTC(),
	}
	if best, ok := outcome.Result.Best(); ok {
		record.BestIndex = best.Index
		record.BestAvgPM25 = best.AvgPM25
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("plan_id", record.ID).
		Str("request_key", record.RequestKey).
		Int("route_count", record.RouteCount).
		Msg("plan recorded")

	return record, nil
}

// OnSuccess adapts Record to the planner's success hook, logging failures.
func (s *Service) OnSuccess(ctx context.Context, outcome planner.Outcome) {
	if _, err := s.Record(ctx, outcome); err != nil {
		s.logger.Warn().Err(err).
			Str("request_key", outcome.Key).
			Msg("failed to record plan")
	}
}

// Get retrieves a record by ID.
func (s *Service) Get(ctx context.Context, id string) (*PlanRecord, error) {
	return s.repo.Get(ctx, id)
}

// List returns the most recent records, newest first. Limit is clamped to
// [1, MaxListLimit], with DefaultListLimit used when it is not positive.
func (s *Service) List(ctx context.Context, limit int) ([]*PlanRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	records, err := s.repo.List(ctx, ListOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*PlanRecord{}
	}
	return records, nil
}
