package handler

import (
	"github.com/paulmach/orb/geojson"

	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/exposure"
	"github.com/breatheroute/cleanroute/internal/history"
	"github.com/breatheroute/cleanroute/internal/planner"
	"github.com/breatheroute/cleanroute/internal/routing"
	"github.com/breatheroute/cleanroute/internal/scoring"
)

func pointOf(c routing.Coordinate) models.Point {
	return models.Point{Lat: c.Lat, Lon: c.Lon}
}

func pointPtr(c *routing.Coordinate) *models.Point {
	if c == nil {
		return nil
	}
	p := pointOf(*c)
	return &p
}

func routePlan(sessionID string, snap planner.Snapshot) models.RoutePlan {
	plan := models.RoutePlan{
		SessionID:  sessionID,
		State:      string(snap.State),
		RequestKey: snap.Key,
		Start:      pointPtr(snap.Start),
		End:        pointPtr(snap.End),
		Error:      snap.Error,
		Version:    snap.Version,
		UpdatedAt:  models.Timestamp(snap.UpdatedAt),
	}

	if snap.Result != nil {
		plan.Routes = make([]models.ScoredRoute, 0, len(snap.Result.Routes))
		for _, r := range snap.Result.Routes {
			plan.Routes = append(plan.Routes, scoredRoute(r))
		}
		best, selected := snap.Result.BestIndex, snap.Selected
		plan.BestIndex = &best
		plan.SelectedIndex = &selected
		plan.Features = snap.Result.Features
	}

	return plan
}

func scoredRoute(r scoring.ScoredRoute) models.ScoredRoute {
	out := models.ScoredRoute{
		Index:         r.Index,
		IsBest:        r.IsBest,
		AvgPM25:       r.AvgPM25,
		Band:          exposure.Band(r.AvgPM25),
		DurationMin:   r.DurationMin,
		DistanceKm:    r.DistanceKm,
		GoogleMapsURL: r.GoogleMapsURL,
	}
	if r.Geometry != nil {
		out.Geometry = geojson.NewGeometry(r.Geometry)
	}
	if len(r.AQISamples) > 0 {
		out.AQISamples = make([]models.AQISample, 0, len(r.AQISamples))
		for _, s := range r.AQISamples {
			out.AQISamples = append(out.AQISamples, models.AQISample{Lat: s.Lat, Lon: s.Lon, PM25: s.PM25})
		}
	}
	return out
}

func exposureResponse(score exposure.Score, avgPM25 float64) models.ExposureResponse {
	resp := models.ExposureResponse{
		Mode:              string(score.Mode),
		TotalDose:         score.TotalDose,
		DoseReductionPct:  score.DoseReductionPct,
		VulnerableWarning: score.VulnerableWarning,
		Band:              exposure.Band(avgPM25),
	}
	for _, s := range score.Segments {
		resp.Segments = append(resp.Segments, models.ExposureSegment{
			PM25:          s.PM25,
			DurationHours: s.DurationHours,
			Dose:          s.Dose,
		})
	}
	return resp
}

func planRecord(rec *history.PlanRecord) models.PlanRecord {
	return models.PlanRecord{
		ID:             rec.ID,
		RequestKey:     rec.RequestKey,
		Start:          pointOf(rec.Start),
		End:            pointOf(rec.End),
		CandidateCount: rec.CandidateCount,
		RouteCount:     rec.RouteCount,
		BestIndex:      rec.BestIndex,
		BestAvgPM25:    rec.BestAvgPM25,
		DurationMS:     rec.Duration.Milliseconds(),
		CreatedAt:      models.Timestamp(rec.CreatedAt),
	}
}
