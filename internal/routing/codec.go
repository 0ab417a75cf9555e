package routing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
)

type cachedRecord struct {
	Provider  string        `json:"provider"`
	FetchedAt time.Time     `json:"fetched_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Routes    []cachedRoute `json:"routes"`
}

type cachedRoute struct {
	Geometry        *geojson.Geometry `json:"geometry"`
	DistanceMeters  float64           `json:"distance_m"`
	DurationSeconds float64           `json:"duration_s"`
	Summary         string            `json:"summary,omitempty"`
}

// MarshalCached encodes a cache entry for shared stores. Geometries are stored as GeoJSON.
func MarshalCached(entry *CachedDirections) ([]byte, error) {
	rec := cachedRecord{
		FetchedAt: entry.FetchedAt,
		ExpiresAt: entry.ExpiresAt,
	}
	if entry.Response != nil {
		rec.Provider = entry.Response.Provider
		rec.Routes = make([]cachedRoute, 0, len(entry.Response.Routes))
		for _, r := range entry.Response.Routes {
			cr := cachedRoute{
				DistanceMeters:  r.DistanceMeters,
				DurationSeconds: r.DurationSeconds,
				Summary:         r.Summary,
			}
			if r.Geometry != nil {
				cr.Geometry = geojson.NewGeometry(r.Geometry)
			}
			rec.Routes = append(rec.Routes, cr)
		}
	}
	return json.Marshal(rec)
}

// UnmarshalCached decodes a cache entry written by MarshalCached.
func UnmarshalCached(data []byte) (*CachedDirections, error) {
	var rec cachedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode cached directions: %w", err)
	}

	resp := &DirectionsResponse{
		Provider:  rec.Provider,
		FetchedAt: rec.FetchedAt,
		Routes:    make([]Route, 0, len(rec.Routes)),
	}
	for _, cr := range rec.Routes {
		r := Route{
			DistanceMeters:  cr.DistanceMeters,
			DurationSeconds: cr.DurationSeconds,
			Summary:         cr.Summary,
		}
		if cr.Geometry != nil {
			r.Geometry = cr.Geometry.Geometry()
		}
		resp.Routes = append(resp.Routes, r)
	}

	return &CachedDirections{
		Response:  resp,
		FetchedAt: rec.FetchedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}
