package models

// GeocodeResult is one place matching a search query.
type GeocodeResult struct {
	PlaceID     int64   `json:"placeId"`
	DisplayName string  `json:"displayName"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Importance  float64 `json:"importance,omitempty"`
}

// GeocodeSearchResponse lists the places matching a query.
type GeocodeSearchResponse struct {
	Query   string          `json:"query"`
	Results []GeocodeResult `json:"results"`
}

// ReverseGeocodeResponse names the place at a coordinate.
type ReverseGeocodeResponse struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"displayName"`
}
