package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/api/response"
	"github.com/breatheroute/cleanroute/internal/geocoding"
)

// MaxGeocodeResults caps the limit query parameter.
const MaxGeocodeResults = 10

// GeocodeHandler handles place search endpoints.
type GeocodeHandler struct {
	geocoder geocoding.Geocoder
	logger   zerolog.Logger
}

// NewGeocodeHandler creates a new GeocodeHandler.
func NewGeocodeHandler(geocoder geocoding.Geocoder, logger zerolog.Logger) *GeocodeHandler {
	return &GeocodeHandler{geocoder: geocoder, logger: logger}
}

// Search handles GET /v1/geocode/search?q=&limit=&lat=&lon= - forward geocoding.
// When lat and lon are given, results near that point are preferred.
func (h *GeocodeHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		response.BadRequest(w, r, "q is required", []models.FieldError{
			{Field: "q", Message: "search text is required", Code: "required"},
		})
		return
	}

	limit, _, err := queryInt(r, "limit")
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if limit < 0 || limit > MaxGeocodeResults {
		response.BadRequest(w, r, "limit out of range", []models.FieldError{
			{Field: "limit", Message: "must be between 1 and 10", Code: "out_of_range"},
		})
		return
	}

	opts := geocoding.SearchOptions{Limit: limit}
	if r.URL.Query().Has("lat") || r.URL.Query().Has("lon") {
		near, fieldErrs := queryPoint(r)
		if fieldErrs != nil {
			response.BadRequest(w, r, "invalid bias point", fieldErrs)
			return
		}
		opts.Near = &geocoding.Point{Lon: near.Lon, Lat: near.Lat}
	}

	places, err := h.geocoder.Search(r.Context(), query, opts)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}

	resp := models.GeocodeSearchResponse{
		Query:   query,
		Results: make([]models.GeocodeResult, 0, len(places)),
	}
	for _, p := range places {
		resp.Results = append(resp.Results, models.GeocodeResult{
			PlaceID:     p.PlaceID,
			DisplayName: p.DisplayName,
			Lat:         p.Lat,
			Lon:         p.Lon,
			Importance:  p.Importance,
		})
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	response.JSON(w, r, http.StatusOK, resp)
}

// Reverse handles GET /v1/geocode/reverse?lat=&lon= - name the place at a point.
func (h *GeocodeHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	point, fieldErrs := queryPoint(r)
	if fieldErrs != nil {
		response.BadRequest(w, r, "invalid coordinates", fieldErrs)
		return
	}

	name, err := h.geocoder.Reverse(r.Context(), point.Lat, point.Lon)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	response.JSON(w, r, http.StatusOK, models.ReverseGeocodeResponse{
		Lat:         point.Lat,
		Lon:         point.Lon,
		DisplayName: name,
	})
}

func (h *GeocodeHandler) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, geocoding.ErrEmptyQuery):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, geocoding.ErrNotFound):
		response.NotFound(w, r, "no place found at this location")
	case errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "geocoder timed out")
	default:
		h.logger.Warn().Err(err).Msg("geocoding failed")
		response.BadGateway(w, r, "geocoder unavailable")
	}
}
