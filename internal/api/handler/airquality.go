package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/api/response"
)

// AirQualityReader returns the current reading at a location.
type AirQualityReader interface {
	GetCurrent(ctx context.Context, lat, lon float64) (*airquality.Reading, error)
}

// AirQualityHandler handles ambient air quality lookups.
type AirQualityHandler struct {
	reader AirQualityReader
	logger zerolog.Logger
}

// NewAirQualityHandler creates a new AirQualityHandler.
func NewAirQualityHandler(reader AirQualityReader, logger zerolog.Logger) *AirQualityHandler {
	return &AirQualityHandler{reader: reader, logger: logger}
}

// GetCurrent handles GET /v1/air-quality?lat=&lon= - current AQI at a point.
func (h *AirQualityHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	point, fieldErrs := queryPoint(r)
	if fieldErrs != nil {
		response.BadRequest(w, r, "invalid coordinates", fieldErrs)
		return
	}

	reading, err := h.reader.GetCurrent(r.Context(), point.Lat, point.Lon)
	if err != nil {
		switch {
		case errors.Is(err, airquality.ErrInvalidCoordinates):
			response.BadRequest(w, r, err.Error(), nil)
		case errors.Is(err, airquality.ErrNoData):
			response.NotFound(w, r, "no air quality data for this location")
		case errors.Is(err, airquality.ErrMissingAPIKey):
			response.ServiceUnavailable(w, r, "air quality lookups are not configured")
		default:
			h.logger.Warn().Err(err).Float64("lat", point.Lat).Float64("lon", point.Lon).Msg("air quality lookup failed")
			response.BadGateway(w, r, "air quality provider unavailable")
		}
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=600")
	response.JSON(w, r, http.StatusOK, models.AirQuality{
		Lat:        point.Lat,
		Lon:        point.Lon,
		AQI:        reading.AQI,
		Label:      reading.Level(),
		PM25:       reading.PM25,
		PM10:       reading.PM10,
		NO2:        reading.NO2,
		O3:         reading.O3,
		MeasuredAt: models.Timestamp(reading.MeasuredAt),
	})
}
