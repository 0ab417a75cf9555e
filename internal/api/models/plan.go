package models

// PlanRecord is a completed route plan from the history log.
type PlanRecord struct {
	ID             string    `json:"id"`
	RequestKey     string    `json:"requestKey"`
	Start          Point     `json:"start"`
	End            Point     `json:"end"`
	CandidateCount int       `json:"candidateCount"`
	RouteCount     int       `json:"routeCount"`
	BestIndex      int       `json:"bestIndex"`
	BestAvgPM25    float64   `json:"bestAvgPm25"`
	DurationMS     int64     `json:"durationMs"`
	CreatedAt      Timestamp `json:"createdAt"`
}

// PlanList is a page of plan history.
type PlanList struct {
	Items []PlanRecord      `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
