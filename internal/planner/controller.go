// Package planner owns the route request state machine: it turns a pair of
// endpoints into discovered, scored routes while coalescing repeated triggers
// and discarding results that arrive after the endpoints have moved on.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/breatheroute/cleanroute/internal/discovery"
	"github.com/breatheroute/cleanroute/internal/metrics"
	"github.com/breatheroute/cleanroute/internal/routing"
	"github.com/breatheroute/cleanroute/internal/scoring"
	"github.com/breatheroute/cleanroute/internal/telemetry"
)

// State is a controller state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// NoRoutesMessage is the error text shown when the scorer finds nothing.
const NoRoutesMessage = "No routes found between these locations."

// DefaultFetchTimeout bounds one discovery plus scoring attempt.
const DefaultFetchTimeout = 60 * time.Second

var (
	// ErrNoResult is returned by Select when no routes are held.
	ErrNoResult = errors.New("no route result held")
	// ErrIndexOutOfRange is returned by Select for an index outside the held routes.
	ErrIndexOutOfRange = errors.New("route index out of range")
)

// Discoverer produces route candidates.
type Discoverer interface {
	Discover(ctx context.Context, start, end routing.Coordinate, targetCount int) ([]discovery.Candidate, error)
}

// Scorer ranks candidates by pollution exposure.
type Scorer interface {
	Score(ctx context.Context, req scoring.Request) (*scoring.Response, error)
}

// Outcome describes a successful plan. It is passed to Config.OnSuccess.
type Outcome struct {
	Key            string
	Start          routing.Coordinate
	End            routing.Coordinate
	CandidateCount int
	Result         *scoring.Result
	Duration       time.Duration
}

// Config holds configuration for a Controller.
type Config struct {
	// Discoverer finds candidates (required).
	Discoverer Discoverer

	// Scorer scores candidates (required).
	Scorer Scorer

	// TargetCount is the number of candidates to discover (default: discovery.DefaultTargetCount).
	TargetCount int

	// FetchTimeout bounds each attempt (default: 60s).
	FetchTimeout time.Duration

	// OnSuccess is called after every successful attempt that is applied (optional).
	// It runs on the attempt's goroutine, outside the controller lock.
	OnSuccess func(ctx context.Context, o Outcome)

	// Metrics records transitions and coalesced triggers (optional).
	Metrics *metrics.Engine

	// Logger for controller operations.
	Logger zerolog.Logger
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	State State
	Key   string
	Start *routing.Coordinate
	End   *routing.Coordinate

	// Result is set only in StateSuccess.
	Result   *scoring.Result
	Selected int

	// Error is set only in StateError.
	Error string

	Version   uint64
	UpdatedAt time.Time
}

type attempt struct {
	id    uint64
	key   string
	start routing.Coordinate
	end   routing.Coordinate
}

// Controller runs route requests for one pair of endpoints at a time.
// All state lives behind mu.
type Controller struct {
	discoverer   Discoverer
	scorer       Scorer
	targetCount  int
	fetchTimeout time.Duration
	onSuccess    func(ctx context.Context, o Outcome)
	metrics      *metrics.Engine
	logger       zerolog.Logger

	mu         sync.Mutex
	state      State
	key        string
	start, end *routing.Coordinate
	seq        uint64
	current    uint64              // attempt whose completion may be applied
	inFlight   map[string]*attempt // running attempts by request key
	lastKey    string              // key of the last applied success
	result     *scoring.Result
	selected   int
	errMsg     string
	version    uint64
	updatedAt  time.Time
	changed    chan struct{}
	wg         sync.WaitGroup
}

// New creates a new Controller in the idle state.
func New(cfg Config) *Controller {
	targetCount := cfg.TargetCount
	if targetCount <= 0 {
		targetCount = discovery.DefaultTargetCount
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = DefaultFetchTimeout
	}

	return &Controller{
		discoverer:   cfg.Discoverer,
		scorer:       cfg.Scorer,
		targetCount:  targetCount,
		fetchTimeout: fetchTimeout,
		onSuccess:    cfg.OnSuccess,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		state:        StateIdle,
		updatedAt:    time.Now(),
		inFlight:     make(map[string]*attempt),
		changed:      make(chan struct{}),
	}
}

// RequestKey identifies a logical request: start lon, start lat, end lon, end lat,
// each with 4 decimals, joined by "|".
func RequestKey(start, end routing.Coordinate) string {
	parts := []string{
		strconv.FormatFloat(start.Lon, 'f', 4, 64),
		strconv.FormatFloat(start.Lat, 'f', 4, 64),
		strconv.FormatFloat(end.Lon, 'f', 4, 64),
		strconv.FormatFloat(end.Lat, 'f', 4, 64),
	}
	return strings.Join(parts, "|")
}

// Plan sets the endpoints and starts a fetch when needed. It returns immediately.
//
// A nil endpoint moves the controller to idle and drops held results. A key that
// is already in flight is coalesced onto that attempt. A key equal to the last
// successful one reuses the held results. Anything else starts a new attempt that
// runs detached from ctx cancellation, bounded by the fetch timeout.
func (c *Controller) Plan(ctx context.Context, start, end *routing.Coordinate) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if start == nil || end == nil {
		c.start, c.end = copyCoord(start), copyCoord(end)
		c.key = ""
		c.current = 0
		c.result = nil
		c.lastKey = ""
		c.selected = 0
		c.errMsg = ""
		if c.state != StateIdle {
			c.transition(StateIdle)
		}
		return c.snapshot()
	}

	key := RequestKey(*start, *end)
	c.start, c.end = copyCoord(start), copyCoord(end)

	if running, ok := c.inFlight[key]; ok {
		c.metrics.Coalesced(metrics.ReasonInFlight)
		if c.current != running.id {
			// Endpoints came back to a request that is still running.
			c.key = key
			c.current = running.id
			c.errMsg = ""
			c.transition(StateLoading)
		}
		c.logger.Debug().Str("request_key", key).Msg("request already in flight")
		return c.snapshot()
	}

	if key == c.lastKey && c.result != nil {
		c.metrics.Coalesced(metrics.ReasonCacheHit)
		if c.key != key || c.state != StateSuccess {
			c.key = key
			c.current = 0
			c.errMsg = ""
			c.selected = c.result.BestIndex
			c.transition(StateSuccess)
		}
		c.logger.Debug().Str("request_key", key).Msg("reusing held routes")
		return c.snapshot()
	}

	c.seq++
	att := &attempt{id: c.seq, key: key, start: *start, end: *end}
	c.inFlight[key] = att
	c.current = att.id
	c.key = key
	c.errMsg = ""
	c.transition(StateLoading)

	c.logger.Debug().
		Str("request_key", key).
		Uint64("attempt", att.id).
		Msg("starting route request")

	c.wg.Add(1)
	go c.run(context.WithoutCancel(ctx), att)

	return c.snapshot()
}

// Refetch re-triggers Plan with the current endpoints. After a success for the
// same endpoints this is a no-op; after an error it starts a fresh attempt.
func (c *Controller) Refetch(ctx context.Context) Snapshot {
	c.mu.Lock()
	start, end := copyCoord(c.start), copyCoord(c.end)
	c.mu.Unlock()
	return c.Plan(ctx, start, end)
}

// Select marks the route at index as selected.
func (c *Controller) Select(index int) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSuccess || c.result == nil {
		return c.snapshot(), ErrNoResult
	}
	if index < 0 || index >= len(c.result.Routes) {
		return c.snapshot(), fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(c.result.Routes))
	}
	c.selected = index
	c.version++
	c.updatedAt = time.Now()
	c.notify()
	return c.snapshot(), nil
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Changes returns a channel that is closed at the next state change.
func (c *Controller) Changes() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// Wait blocks until the controller is not loading or ctx is done.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		if c.state != StateLoading {
			snap := c.snapshot()
			c.mu.Unlock()
			return snap, nil
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
}

// Drain blocks until every started attempt has finished.
func (c *Controller) Drain() {
	c.wg.Wait()
}

func (c *Controller) run(ctx context.Context, att *attempt) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	began := time.Now()
	result, candidates, err := c.fetch(ctx, att)

	outcome, applied := c.complete(att, result, err)
	if !applied || err != nil || c.onSuccess == nil {
		return
	}
	outcome.CandidateCount = candidates
	outcome.Duration = time.Since(began)
	c.onSuccess(ctx, outcome)
}

func (c *Controller) fetch(ctx context.Context, att *attempt) (result *scoring.Result, candidates int, err error) {
	ctx, span := telemetry.StartSpan(ctx, "planner.fetch",
		attribute.String("request_key", att.key),
		attribute.Int64("attempt", int64(att.id)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Str("request_key", att.key).
				Msg("route request panicked")
			result, err = nil, fmt.Errorf("route request failed: %v", r)
		}
	}()

	discoverCtx, discoverSpan := telemetry.StartSpan(ctx, "planner.discover")
	found, err := c.discoverer.Discover(discoverCtx, att.start, att.end, c.targetCount)
	discoverSpan.SetAttributes(attribute.Int("candidates", len(found)))
	telemetry.EndSpan(discoverSpan, err)
	if err != nil {
		return nil, 0, err
	}
	if len(found) == 0 {
		return nil, 0, scoring.ErrNoRoutes
	}

	scoreCtx, scoreSpan := telemetry.StartSpan(ctx, "planner.score")
	resp, err := c.scorer.Score(scoreCtx, scoring.NewRequest(att.start, att.end, found))
	telemetry.EndSpan(scoreSpan, err)
	if err != nil {
		return nil, len(found), err
	}

	result, err = scoring.Assemble(resp)
	return result, len(found), err
}

// complete applies the attempt's outcome if it is still the current one.
func (c *Controller) complete(att *attempt, result *scoring.Result, err error) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight[att.key] == att {
		delete(c.inFlight, att.key)
	}

	if att.id != c.current {
		c.metrics.StaleDiscard()
		c.logger.Debug().
			Str("request_key", att.key).
			Str("current_key", c.key).
			Msg("discarding stale route result")
		return Outcome{}, false
	}

	if err != nil {
		c.errMsg = err.Error()
		if errors.Is(err, scoring.ErrNoRoutes) {
			c.errMsg = NoRoutesMessage
		}
		c.logger.Warn().Err(err).
			Str("request_key", att.key).
			Msg("route request failed")
		c.transition(StateError)
		return Outcome{}, true
	}

	c.result = result
	c.lastKey = att.key
	c.selected = result.BestIndex
	c.transition(StateSuccess)

	c.logger.Info().
		Str("request_key", att.key).
		Int("route_count", len(result.Routes)).
		Int("best_index", result.BestIndex).
		Msg("route request succeeded")

	return Outcome{Key: att.key, Start: att.start, End: att.end, Result: result}, true
}

// transition moves to state and wakes observers. Callers must hold c.mu.
func (c *Controller) transition(state State) {
	c.state = state
	c.version++
	c.updatedAt = time.Now()
	c.metrics.PlanTransition(string(state))
	c.notify()
}

// notify closes the current change channel. Callers must hold c.mu.
func (c *Controller) notify() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// snapshot builds a Snapshot. Callers must hold c.mu.
func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		State:     c.state,
		Key:       c.key,
		Start:     copyCoord(c.start),
		End:       copyCoord(c.end),
		Version:   c.version,
		UpdatedAt: c.updatedAt,
	}
	switch c.state {
	case StateSuccess:
		s.Result = c.result
		s.Selected = c.selected
	case StateError:
		s.Error = c.errMsg
	}
	return s
}

func copyCoord(c *routing.Coordinate) *routing.Coordinate {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}
