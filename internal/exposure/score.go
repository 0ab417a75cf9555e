package exposure

// unknownReferenceFactor is the assumed reference penalty when no reference route is known.
const unknownReferenceFactor = 1.2

// Segment is the exposure on one leg of a route.
type Segment struct {
	PM25          float64
	DurationHours float64
	Dose          float64
}

// Score summarizes the exposure of a route.
type Score struct {
	TotalDose         float64
	DoseReductionPct  float64
	VulnerableWarning bool
	Mode              Mode
	Segments          []Segment
}

// Reference describes the route a candidate is compared against, usually the fastest.
type Reference struct {
	AvgPM25         float64
	DurationMinutes float64
}

// known reports whether the reference carries enough data to compute a dose.
func (r *Reference) known() bool {
	return r != nil && r.AvgPM25 > 0 && r.DurationMinutes > 0
}

// Assess scores a route from its average PM2.5 and duration. When reference is nil
// or incomplete, its dose is estimated as 20% above the candidate's.
func Assess(avgPM25, durationMinutes float64, reference *Reference, mode Mode, isVulnerable bool) Score {
	dose := RouteDose(avgPM25, durationMinutes, mode)

	refDose := dose * unknownReferenceFactor
	if reference.known() {
		refDose = RouteDose(reference.AvgPM25, reference.DurationMinutes, mode)
	}

	return Score{
		TotalDose:         dose,
		DoseReductionPct:  DoseReductionPct(dose, refDose),
		VulnerableWarning: VulnerableWarning(avgPM25, isVulnerable),
		Mode:              mode,
		Segments:          []Segment{},
	}
}

// RouteExposure sums segment doses into a Score. DoseReductionPct is left at zero.
func RouteExposure(segments []Segment, mode Mode) Score {
	var total float64
	for _, s := range segments {
		total += s.Dose
	}
	if segments == nil {
		segments = []Segment{}
	}
	return Score{
		TotalDose: round(total, 2),
		Mode:      mode,
		Segments:  segments,
	}
}
