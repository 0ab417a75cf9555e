package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/api/response"
	"github.com/breatheroute/cleanroute/internal/history"
)

// PlanHandler exposes the plan history log.
type PlanHandler struct {
	history *history.Service
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(svc *history.Service) *PlanHandler {
	return &PlanHandler{history: svc}
}

// ListPlans handles GET /v1/plans?limit= - most recent plans first.
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	limit, _, err := queryInt(r, "limit")
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if limit < 0 {
		response.BadRequest(w, r, "limit must not be negative", nil)
		return
	}
	if limit == 0 {
		limit = history.DefaultListLimit
	}
	if limit > history.MaxListLimit {
		limit = history.MaxListLimit
	}

	records, err := h.history.List(r.Context(), limit)
	if err != nil {
		response.InternalError(w, r, "failed to list plans")
		return
	}

	items := make([]models.PlanRecord, 0, len(records))
	for _, rec := range records {
		items = append(items, planRecord(rec))
	}
	response.JSON(w, r, http.StatusOK, models.PlanList{
		Items: items,
		Meta:  models.PagedResponseMeta{Limit: limit, Count: len(items)},
	})
}

// GetPlan handles GET /v1/plans/{planId}.
func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	rec, err := h.history.Get(r.Context(), chi.URLParam(r, "planId"))
	if err != nil {
		if errors.Is(err, history.ErrRecordNotFound) {
			response.NotFound(w, r, "plan not found")
			return
		}
		response.InternalError(w, r, "failed to load plan")
		return
	}
	response.JSON(w, r, http.StatusOK, planRecord(rec))
}
