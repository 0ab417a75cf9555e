package models

// AirQuality is the current ambient air quality at a location.
// AQI uses the 1 (good) to 5 (very poor) scale.
type AirQuality struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AQI        int       `json:"aqi"`
	Label      string    `json:"label"`
	PM25       float64   `json:"pm25"`
	PM10       float64   `json:"pm10"`
	NO2        float64   `json:"no2"`
	O3         float64   `json:"o3"`
	MeasuredAt Timestamp `json:"measuredAt"`
}
