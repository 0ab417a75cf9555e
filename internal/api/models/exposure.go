package models

// ExposureRequest asks for the inhaled dose of a single route.
type ExposureRequest struct {
	AvgPM25         float64            `json:"avgPm25"`
	DurationMinutes float64            `json:"durationMinutes"`
	Mode            string             `json:"mode"`
	IsVulnerable    bool               `json:"isVulnerable"`
	Reference       *ExposureReference `json:"reference,omitempty"`
}

// ExposureReference is the route the dose reduction is measured against.
type ExposureReference struct {
	AvgPM25         float64 `json:"avgPm25"`
	DurationMinutes float64 `json:"durationMinutes"`
}

// ExposureResponse is the exposure score for a route.
type ExposureResponse struct {
	RouteIndex        *int              `json:"routeIndex,omitempty"`
	Mode              string            `json:"mode"`
	TotalDose         float64           `json:"totalDose"`
	DoseReductionPct  float64           `json:"doseReductionPct"`
	VulnerableWarning bool              `json:"vulnerableWarning"`
	Band              string            `json:"band"`
	Segments          []ExposureSegment `json:"segments,omitempty"`
}

// ExposureSegment is the dose accumulated over one leg of a route.
type ExposureSegment struct {
	PM25          float64 `json:"pm25"`
	DurationHours float64 `json:"durationHours"`
	Dose          float64 `json:"dose"`
}
