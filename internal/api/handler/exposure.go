package handler

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/api/response"
	"github.com/breatheroute/cleanroute/internal/exposure"
)

// ExposureHandler scores routes that are not held by a session.
type ExposureHandler struct{}

// NewExposureHandler creates a new ExposureHandler.
func NewExposureHandler() *ExposureHandler {
	return &ExposureHandler{}
}

// Score handles POST /v1/exposure - inhaled dose for a route summary.
func (h *ExposureHandler) Score(w http.ResponseWriter, r *http.Request) {
	var input models.ExposureRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var fieldErrs []models.FieldError
	mode, err := exposure.ParseMode(input.Mode)
	if err != nil {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "mode", Message: "must be one of DRIVING, CYCLING, WALKING", Code: "invalid"})
	}
	if !nonNegative(input.AvgPM25) {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "avgPm25", Message: "must be a non-negative number", Code: "out_of_range"})
	}
	if !nonNegative(input.DurationMinutes) {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "durationMinutes", Message: "must be a non-negative number", Code: "out_of_range"})
	}

	var ref *exposure.Reference
	if input.Reference != nil {
		if !nonNegative(input.Reference.AvgPM25) || !nonNegative(input.Reference.DurationMinutes) {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "reference", Message: "values must be non-negative numbers", Code: "out_of_range"})
		}
		ref = &exposure.Reference{
			AvgPM25:         input.Reference.AvgPM25,
			DurationMinutes: input.Reference.DurationMinutes,
		}
	}

	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid exposure request", fieldErrs)
		return
	}

	score := exposure.Assess(input.AvgPM25, input.DurationMinutes, ref, mode, input.IsVulnerable)
	response.JSON(w, r, http.StatusOK, exposureResponse(score, input.AvgPM25))
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
