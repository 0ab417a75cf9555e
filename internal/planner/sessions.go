package planner

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/metrics"
)

var (
	// ErrSessionNotFound is returned for unknown or evicted session ids.
	ErrSessionNotFound = errors.New("planning session not found")
	// ErrTooManySessions is returned when the session limit is reached.
	ErrTooManySessions = errors.New("too many planning sessions")
)

// SessionsConfig holds configuration for Sessions.
type SessionsConfig struct {
	// NewController builds the controller for a new session (required).
	NewController func() *Controller

	// IdleTTL is how long an unused session is kept (default: 30 minutes).
	IdleTTL time.Duration

	// CleanupInterval is how often idle sessions are evicted (default: 1 minute).
	CleanupInterval time.Duration

	// MaxSessions caps concurrent sessions (default: 10000).
	MaxSessions int

	// Metrics records the active session count (optional).
	Metrics *metrics.Engine

	// Logger for session operations.
	Logger zerolog.Logger
}

// Sessions holds one Controller per anonymous planning session.
type Sessions struct {
	newController   func() *Controller
	idleTTL         time.Duration
	cleanupInterval time.Duration
	maxSessions     int
	metrics         *metrics.Engine
	logger          zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type session struct {
	controller *Controller
	createdAt  time.Time
	lastUsed   time.Time
}

// NewSessions creates a session registry. Call Start to run idle eviction.
func NewSessions(cfg SessionsConfig) *Sessions {
	idleTTL := cfg.IdleTTL
	if idleTTL == 0 {
		idleTTL = 30 * time.Minute
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = time.Minute
	}

	maxSessions := cfg.MaxSessions
	if maxSessions == 0 {
		maxSessions = 10000
	}

	return &Sessions{
		newController:   cfg.NewController,
		idleTTL:         idleTTL,
		cleanupInterval: cleanupInterval,
		maxSessions:     maxSessions,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		sessions:        make(map[string]*session),
		now:             time.Now,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Start runs idle eviction until Stop is called.
func (s *Sessions) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := s.EvictIdle(); n > 0 {
					s.logger.Debug().Int("evicted", n).Msg("evicted idle planning sessions")
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop ends idle eviction and waits for it to exit. It is safe to call if Start
// was never called.
func (s *Sessions) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if s.started.Load() {
		<-s.doneCh
	}
}

// Create starts a new session.
func (s *Sessions) Create() (string, *Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.maxSessions {
		return "", nil, ErrTooManySessions
	}

	id := uuid.NewString()
	now := s.now()
	ctrl := s.newController()
	s.sessions[id] = &session{controller: ctrl, createdAt: now, lastUsed: now}
	s.metrics.SetActiveSessions(len(s.sessions))

	s.logger.Debug().Str("session_id", id).Msg("planning session created")
	return id, ctrl, nil
}

// Get returns the session's controller and marks the session as used.
func (s *Sessions) Get(id string) (*Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastUsed = s.now()
	return sess.controller, nil
}

// Delete removes a session.
func (s *Sessions) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.metrics.SetActiveSessions(len(s.sessions))
	return nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// EvictIdle removes sessions unused for longer than the idle TTL and returns how many.
// Attempts still running in an evicted controller finish and are dropped with it.
func (s *Sessions) EvictIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTTL)
	evicted := 0
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.metrics.SetActiveSessions(len(s.sessions))
	}
	return evicted
}

// DrainAll waits for the in-flight attempts of every live session to finish.
func (s *Sessions) DrainAll() {
	s.mu.Lock()
	controllers := make([]*Controller, 0, len(s.sessions))
	for _, sess := range s.sessions {
		controllers = append(controllers, sess.controller)
	}
	s.mu.Unlock()

	for _, c := range controllers {
		c.Drain()
	}
}
