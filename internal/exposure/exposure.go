// Package exposure implements the Cumulative Exposure Model (CEM): the inhaled
// PM2.5 dose along a route is the sum over its segments of concentration times
// breathing rate times time spent.
package exposure

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownMode is returned when a transport mode string is not recognized.
var ErrUnknownMode = errors.New("unknown transport mode")

// Mode is the transport mode, which determines the breathing rate.
type Mode string

const (
	ModeDriving Mode = "DRIVING"
	ModeCycling Mode = "CYCLING"
	ModeWalking Mode = "WALKING"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeDriving, ModeCycling, ModeWalking:
		return true
	}
	return false
}

// ParseMode parses a mode name case-insensitively. An empty string means driving.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeDriving, nil
	}
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// Breathing rates in m³/h.
const (
	drivingRate = 0.6
	cyclingRate = 2.5
	walkingRate = 1.5
)

// BreathingRate returns the breathing rate in m³/h for mode, or 0 for an unknown mode.
func BreathingRate(mode Mode) float64 {
	switch mode {
	case ModeDriving:
		return drivingRate
	case ModeCycling:
		return cyclingRate
	case ModeWalking:
		return walkingRate
	}
	return 0
}

// SegmentDose returns the inhaled dose in µg for pm25 µg/m³ over durationHours,
// rounded to 2 decimals. Inputs are not clamped.
func SegmentDose(pm25, durationHours float64, mode Mode) float64 {
	return round(pm25*BreathingRate(mode)*durationHours, 2)
}

// RouteDose estimates the dose for a whole route from its average PM2.5 and
// duration in minutes.
func RouteDose(avgPM25, durationMinutes float64, mode Mode) float64 {
	return SegmentDose(avgPM25, durationMinutes/60, mode)
}

// DoseReductionPct returns how much lower candidate is than reference, in percent
// rounded to 1 decimal. Positive means the candidate is cleaner. A zero reference
// yields 0.
func DoseReductionPct(candidate, reference float64) float64 {
	if reference == 0 {
		return 0
	}
	return round((reference-candidate)/reference*100, 1)
}

// VulnerableThreshold is the average PM2.5 above which vulnerable travellers are warned.
const VulnerableThreshold = 100

// VulnerableWarning reports whether a vulnerable traveller should be warned.
func VulnerableWarning(avgPM25 float64, isVulnerable bool) bool {
	return isVulnerable && avgPM25 > VulnerableThreshold
}

// Band labels a PM2.5 concentration.
func Band(pm25 float64) string {
	switch {
	case pm25 <= 35:
		return "Good"
	case pm25 <= 75:
		return "Moderate"
	default:
		return "Unhealthy"
	}
}

// round rounds half up to the given number of decimals.
func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Floor(v*p+0.5) / p
}
