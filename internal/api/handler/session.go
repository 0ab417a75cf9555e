package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/api/middleware"
	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/api/response"
	"github.com/breatheroute/cleanroute/internal/exposure"
	"github.com/breatheroute/cleanroute/internal/planner"
)

// DefaultWaitTimeout bounds how long ?wait=true holds a request open.
const DefaultWaitTimeout = 60 * time.Second

// SessionHandler handles planning session endpoints.
type SessionHandler struct {
	sessions    *planner.Sessions
	waitTimeout time.Duration
	logger      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *planner.Sessions, waitTimeout time.Duration, logger zerolog.Logger) *SessionHandler {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	return &SessionHandler{
		sessions:    sessions,
		waitTimeout: waitTimeout,
		logger:      logger,
	}
}

// CreateSession handles POST /v1/sessions - start a planning session.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, ctrl, err := h.sessions.Create()
	if err != nil {
		if errors.Is(err, planner.ErrTooManySessions) {
			response.ServiceUnavailable(w, r, err.Error())
			return
		}
		response.InternalError(w, r, "failed to create session")
		return
	}

	snap := ctrl.Snapshot()
	response.Created(w, r, "/v1/sessions/"+id, models.Session{
		ID:        id,
		State:     string(snap.State),
		CreatedAt: models.Timestamp(time.Now()),
	})
}

// DeleteSession handles DELETE /v1/sessions/{sessionId} - end a planning session.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, middleware.SessionIDParam)); err != nil {
		h.sessionError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// SetEndpoints handles PUT /v1/sessions/{sessionId}/endpoints - set or clear the route endpoints.
// With ?wait=true the response is held until the request settles.
func (h *SessionHandler) SetEndpoints(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, middleware.SessionIDParam)
	ctrl, err := h.sessions.Get(id)
	if err != nil {
		h.sessionError(w, r, err)
		return
	}

	var input models.EndpointsRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var fieldErrs []models.FieldError
	start, fe := coordinate("start", input.Start)
	if fe != nil {
		fieldErrs = append(fieldErrs, *fe)
	}
	end, fe := coordinate("end", input.End)
	if fe != nil {
		fieldErrs = append(fieldErrs, *fe)
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid endpoints", fieldErrs)
		return
	}

	wait, err := queryBool(r, "wait")
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	snap := ctrl.Plan(r.Context(), start, end)
	if wait {
		snap = h.wait(r.Context(), ctrl, snap)
	}
	response.JSON(w, r, http.StatusOK, routePlan(id, snap))
}

// GetRoute handles GET /v1/sessions/{sessionId}/route - current planning state.
func (h *SessionHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, middleware.SessionIDParam)
	ctrl, err := h.sessions.Get(id)
	if err != nil {
		h.sessionError(w, r, err)
		return
	}

	wait, err := queryBool(r, "wait")
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	snap := ctrl.Snapshot()
	if wait {
		snap = h.wait(r.Context(), ctrl, snap)
	}
	w.Header().Set("Cache-Control", "no-store")
	response.JSON(w, r, http.StatusOK, routePlan(id, snap))
}

// Refetch handles POST /v1/sessions/{sessionId}/refetch - retry the current endpoints.
func (h *SessionHandler) Refetch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, middleware.SessionIDParam)
	ctrl, err := h.sessions.Get(id)
	if err != nil {
		h.sessionError(w, r, err)
		return
	}

	wait, err := queryBool(r, "wait")
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	snap := ctrl.Refetch(r.Context())
	if wait {
		snap = h.wait(r.Context(), ctrl, snap)
	}
	response.JSON(w, r, http.StatusOK, routePlan(id, snap))
}

// SelectRoute handles PUT /v1/sessions/{sessionId}/selection - choose a route.
func (h *SessionHandler) SelectRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, middleware.SessionIDParam)
	ctrl, err := h.sessions.Get(id)
	if err != nil {
		h.sessionError(w, r, err)
		return
	}

	var input models.SelectRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	snap, err := ctrl.Select(input.Index)
	switch {
	case errors.Is(err, planner.ErrNoResult):
		response.Conflict(w, r, "no routes to select from")
		return
	case errors.Is(err, planner.ErrIndexOutOfRange):
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "index", Message: err.Error(), Code: "out_of_range"},
		})
		return
	case err != nil:
		response.InternalError(w, r, "failed to select route")
		return
	}
	response.JSON(w, r, http.StatusOK, routePlan(id, snap))
}

// GetExposure handles GET /v1/sessions/{sessionId}/exposure - exposure of one held route.
// The index defaults to the selected route and the dose reduction is measured
// against the fastest route.
func (h *SessionHandler) GetExposure(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.sessions.Get(chi.URLParam(r, middleware.SessionIDParam))
	if err != nil {
		h.sessionError(w, r, err)
		return
	}

	mode, err := exposure.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "mode", Message: "must be one of DRIVING, CYCLING, WALKING", Code: "invalid"},
		})
		return
	}
	vulnerable, err := queryBool(r, "vulnerable")
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	index, hasIndex, err := queryInt(r, "index")
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	snap := ctrl.Snapshot()
	if snap.State != planner.StateSuccess || snap.Result == nil {
		response.Conflict(w, r, "no routes available for exposure")
		return
	}
	if !hasIndex {
		index = snap.Selected
	}

	score, err := planner.ExposureForIndex(snap.Result, index, mode, vulnerable)
	if err != nil {
		if errors.Is(err, planner.ErrIndexOutOfRange) {
			response.BadRequest(w, r, err.Error(), []models.FieldError{
				{Field: "index", Message: err.Error(), Code: "out_of_range"},
			})
			return
		}
		response.Conflict(w, r, err.Error())
		return
	}

	resp := exposureResponse(score, snap.Result.Routes[index].AvgPM25)
	resp.RouteIndex = &index
	response.JSON(w, r, http.StatusOK, resp)
}

func (h *SessionHandler) wait(ctx context.Context, ctrl *planner.Controller, snap planner.Snapshot) planner.Snapshot {
	if snap.State != planner.StateLoading {
		return snap
	}
	ctx, cancel := context.WithTimeout(ctx, h.waitTimeout)
	defer cancel()

	settled, err := ctrl.Wait(ctx)
	if err != nil {
		h.logger.Debug().Err(err).Str("request_key", snap.Key).Msg("stopped waiting for route request")
	}
	return settled
}

func (h *SessionHandler) sessionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, planner.ErrSessionNotFound) {
		response.NotFound(w, r, "planning session not found")
		return
	}
	response.InternalError(w, r, "session lookup failed")
}
