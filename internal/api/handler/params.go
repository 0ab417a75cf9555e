package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/routing"
)

// queryFloat parses an optional float query parameter.
func queryFloat(r *http.Request, name string) (float64, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, true, fmt.Errorf("%s must be a number", name)
	}
	return v, true, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s must be an integer", name)
	}
	return v, true, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false", name)
	}
	return v, nil
}

// queryPoint reads a required lat/lon pair from the query string.
func queryPoint(r *http.Request) (routing.Coordinate, []models.FieldError) {
	var errs []models.FieldError

	lat, okLat, err := queryFloat(r, "lat")
	if err != nil {
		errs = append(errs, models.FieldError{Field: "lat", Message: err.Error()})
	} else if !okLat {
		errs = append(errs, models.FieldError{Field: "lat", Message: "lat is required", Code: "required"})
	}

	lon, okLon, err := queryFloat(r, "lon")
	if err != nil {
		errs = append(errs, models.FieldError{Field: "lon", Message: err.Error()})
	} else if !okLon {
		errs = append(errs, models.FieldError{Field: "lon", Message: "lon is required", Code: "required"})
	}

	if len(errs) > 0 {
		return routing.Coordinate{}, errs
	}

	c := routing.Coordinate{Lon: lon, Lat: lat}
	if err := routing.ValidateCoordinate(c); err != nil {
		return c, []models.FieldError{{Field: "lat,lon", Message: err.Error(), Code: "out_of_range"}}
	}
	return c, nil
}

// coordinate converts an API point, validating its bounds.
func coordinate(field string, p *models.Point) (*routing.Coordinate, *models.FieldError) {
	if p == nil {
		return nil, nil
	}
	c := routing.Coordinate{Lon: p.Lon, Lat: p.Lat}
	if err := routing.ValidateCoordinate(c); err != nil {
		return nil, &models.FieldError{Field: field, Message: err.Error(), Code: "out_of_range"}
	}
	return &c, nil
}
