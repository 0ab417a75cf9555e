// Package handler provides HTTP handlers for the CleanRoute API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/api/response"
	"github.com/breatheroute/cleanroute/internal/planner"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
)

// readinessTimeout bounds each dependency check.
const readinessTimeout = 2 * time.Second

// DependencyCheck probes a local dependency such as the database or the directions cache.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsConfig configures the OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string
	Registry  *resilience.Registry
	Sessions  *planner.Sessions
	Checks    []DependencyCheck
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	sessions  *planner.Sessions
	checks    []DependencyCheck
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		registry:  cfg.Registry,
		sessions:  cfg.Sessions,
		checks:    cfg.Checks,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
// Fails with 503 when any local dependency is unreachable.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.runChecks(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	for _, s := range subsystems {
		if s.Status != models.HealthStatusOK {
			if health.Details == nil {
				health.Details = make(map[string]interface{})
			}
			health.Status = models.HealthStatusFail
			health.Details[s.Name] = *s.Detail
		}
	}

	status := http.StatusOK
	if health.Status != models.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.runChecks(r.Context()),
		Providers:  []models.ProviderStatus{},
	}
	if h.sessions != nil {
		status.ActiveSessions = h.sessions.Len()
	}

	if h.registry != nil {
		for _, u := range h.registry.AllHealth() {
			status.Providers = append(status.Providers, providerStatus(u))
		}
		switch h.registry.Overall() {
		case resilience.StatusUnhealthy:
			status.Status = models.HealthStatusFail
		case resilience.StatusDegraded:
			status.Status = models.HealthStatusDegraded
		}
	}

	for _, s := range status.Subsystems {
		if s.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusFail
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.checks))
	for _, c := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		err := c.Check(checkCtx)
		cancel()

		s := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}

func providerStatus(u *resilience.UpstreamHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:            u.Name,
		Status:              models.HealthStatusOK,
		CircuitState:        u.CircuitState.String(),
		Requests:            u.Counts.Requests,
		ConsecutiveFailures: u.Counts.ConsecutiveFailures,
	}
	switch {
	case u.IsUnhealthy():
		ps.Status = models.HealthStatusFail
	case u.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}
	if u.LastSuccessAt != nil {
		t := models.Timestamp(*u.LastSuccessAt)
		ps.LastSuccessAt = &t
	}
	if u.LastFailureAt != nil {
		t := models.Timestamp(*u.LastFailureAt)
		ps.LastFailureAt = &t
	}
	if u.LastError != "" {
		msg := u.LastError
		ps.Message = &msg
	}
	return ps
}
