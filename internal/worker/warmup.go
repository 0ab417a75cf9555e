package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/discovery"
	"github.com/breatheroute/cleanroute/internal/metrics"
	"github.com/breatheroute/cleanroute/internal/routing"
)

// Discoverer finds route candidates for a start/end pair.
type Discoverer interface {
	Discover(ctx context.Context, start, end routing.Coordinate, targetCount int) ([]discovery.Candidate, error)
}

// WarmupJob discovers candidates for configured corridors so later plans hit
// the shared directions cache.
type WarmupJob struct {
	config     WarmupConfig
	discoverer Discoverer
	logger     zerolog.Logger
	metrics    *metrics.Engine

	stats *WarmupStats
}

// WarmupStats tracks warm-up job statistics.
type WarmupStats struct {
	mu sync.RWMutex

	TotalRuns           int64
	SuccessfulCorridors int64
	FailedCorridors     int64
	CandidatesFound     int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// WarmupJobConfig holds configuration for creating a WarmupJob.
type WarmupJobConfig struct {
	Config     WarmupConfig
	Discoverer Discoverer
	Metrics    *metrics.Engine
	Logger     zerolog.Logger
}

// NewWarmupJob creates a new warm-up job.
func NewWarmupJob(cfg WarmupJobConfig) *WarmupJob {
	config := cfg.Config
	defaults := DefaultWarmupConfig()
	if len(config.Corridors) == 0 {
		config.Corridors = defaults.Corridors
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &WarmupJob{
		config:     config,
		discoverer: cfg.Discoverer,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		stats:      &WarmupStats{},
	}
}

// Config returns the effective configuration.
func (j *WarmupJob) Config() WarmupConfig {
	return j.config
}

// WarmupResult contains the result of a warm-up run.
type WarmupResult struct {
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	TotalCorridors int
	Successful     int
	Failed         int
	Candidates     int
	Errors         []CorridorError
}

// CorridorError records a failed corridor.
type CorridorError struct {
	Corridor string
	Error    string
}

// Run warms every configured corridor.
func (j *WarmupJob) Run(ctx context.Context) *WarmupResult {
	return j.RunCorridors(ctx, j.config.ByPriority())
}

// RunCorridors warms the given corridors with bounded concurrency.
func (j *WarmupJob) RunCorridors(ctx context.Context, corridors []Corridor) *WarmupResult {
	startTime := time.Now()
	result := &WarmupResult{
		StartTime:      startTime,
		TotalCorridors: len(corridors),
	}

	j.logger.Info().
		Int("total_corridors", result.TotalCorridors).
		Int("concurrency", j.config.Concurrency).
		Msg("starting corridor warm-up")

	corridorChan := make(chan Corridor, len(corridors))
	resultsChan := make(chan corridorResult, len(corridors))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.warmWorker(ctx, corridorChan, resultsChan)
		}()
	}

	for _, c := range corridors {
		corridorChan <- c
	}
	close(corridorChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for cr := range resultsChan {
		if cr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, CorridorError{
				Corridor: cr.corridor.Name,
				Error:    cr.err.Error(),
			})
			continue
		}
		result.Successful++
		result.Candidates += cr.candidates
	}

	// Corridors never handed to a worker because ctx ended count as failed.
	if skipped := result.TotalCorridors - result.Successful - result.Failed; skipped > 0 {
		result.Failed += skipped
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateStats(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("candidates", result.Candidates).
		Msg("corridor warm-up completed")

	return result
}

type corridorResult struct {
	corridor   Corridor
	candidates int
	err        error
}

func (j *WarmupJob) warmWorker(ctx context.Context, corridors <-chan Corridor, results chan<- corridorResult) {
	for corridor := range corridors {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.warmCorridor(ctx, corridor)
		}
	}
}

func (j *WarmupJob) warmCorridor(ctx context.Context, corridor Corridor) corridorResult {
	corridorCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	candidates, err := j.discoverer.Discover(corridorCtx, corridor.Start.Coordinate(), corridor.End.Coordinate(), j.config.TargetCount)
	j.metrics.WarmupCorridor(err)
	if err != nil {
		j.logger.Warn().Err(err).
			Str("corridor", corridor.Name).
			Msg("corridor warm-up failed")
		return corridorResult{corridor: corridor, err: err}
	}

	j.logger.Debug().
		Str("corridor", corridor.Name).
		Int("candidate_count", len(candidates)).
		Msg("corridor warmed")

	return corridorResult{corridor: corridor, candidates: len(candidates)}
}

// HealthCheck issues a single direct directions request for the highest
// priority corridor to verify provider connectivity.
func (j *WarmupJob) HealthCheck(ctx context.Context) error {
	corridors := j.config.ByPriority()
	if len(corridors) == 0 {
		return fmt.Errorf("no corridors configured")
	}
	corridor := corridors[0]

	checkCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	candidates, err := j.discoverer.Discover(checkCtx, corridor.Start.Coordinate(), corridor.End.Coordinate(), 1)
	if err != nil {
		return fmt.Errorf("health check on %s: %w", corridor.Name, err)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("health check on %s: no candidates returned", corridor.Name)
	}
	return nil
}

func (j *WarmupJob) updateStats(result *WarmupResult) {
	j.stats.mu.Lock()
	defer j.stats.mu.Unlock()

	j.stats.TotalRuns++
	j.stats.SuccessfulCorridors += int64(result.Successful)
	j.stats.FailedCorridors += int64(result.Failed)
	j.stats.CandidatesFound += int64(result.Candidates)
	j.stats.LastRunAt = result.EndTime
	j.stats.LastRunDuration = result.Duration
	j.stats.TotalDuration += result.Duration
}

// GetStats returns a copy of the current statistics.
func (j *WarmupJob) GetStats() WarmupStats {
	j.stats.mu.RLock()
	defer j.stats.mu.RUnlock()

	return WarmupStats{
		TotalRuns:           j.stats.TotalRuns,
		SuccessfulCorridors: j.stats.SuccessfulCorridors,
		FailedCorridors:     j.stats.FailedCorridors,
		CandidatesFound:     j.stats.CandidatesFound,
		LastRunAt:           j.stats.LastRunAt,
		LastRunDuration:     j.stats.LastRunDuration,
		TotalDuration:       j.stats.TotalDuration,
	}
}

// StatsSnapshot returns the current statistics as a map for status endpoints.
func (j *WarmupJob) StatsSnapshot() map[string]any {
	s := j.GetStats()
	return map[string]any{
		"total_runs":           s.TotalRuns,
		"successful_corridors": s.SuccessfulCorridors,
		"failed_corridors":     s.FailedCorridors,
		"candidates_found":     s.CandidatesFound,
		"last_run_at":          s.LastRunAt,
		"last_run_duration":    s.LastRunDuration.String(),
		"total_duration":       s.TotalDuration.String(),
	}
}
