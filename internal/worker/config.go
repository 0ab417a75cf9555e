// Package worker provides background job processing for CleanRoute.
package worker

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/breatheroute/cleanroute/internal/routing"
)

// Point represents a geographic coordinate.
type Point struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Coordinate converts the point to a routing coordinate.
func (p Point) Coordinate() routing.Coordinate {
	return routing.Coordinate{Lon: p.Lon, Lat: p.Lat}
}

// Corridor is a frequently planned start/end pair whose candidates are
// discovered ahead of time to fill the shared directions cache.
type Corridor struct {
	// Name is the human-readable name of the corridor.
	Name string `yaml:"name"`

	Start Point `yaml:"start"`
	End   Point `yaml:"end"`

	// Priority determines warm-up order (lower = higher priority).
	Priority int `yaml:"priority"`
}

// corridorFile is the on-disk layout of a corridor list.
type corridorFile struct {
	Corridors []Corridor `yaml:"corridors"`
}

// WarmupConfig holds configuration for the corridor warm-up job.
type WarmupConfig struct {
	// Corridors are the start/end pairs to warm.
	// If empty, uses DefaultCorridors.
	Corridors []Corridor

	// Concurrency is the number of corridors discovered at once.
	// Default: 2
	Concurrency int

	// Timeout bounds discovery for a single corridor.
	// Default: 60 seconds
	Timeout time.Duration

	// TargetCount is the candidate target passed to discovery.
	// Default: discovery's own default
	TargetCount int
}

// DefaultWarmupConfig returns the default warm-up configuration.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Corridors:   DefaultCorridors(),
		Concurrency: 2,
		Timeout:     60 * time.Second,
	}
}

// DefaultCorridors returns commuter corridors around Lucknow.
func DefaultCorridors() []Corridor {
	return []Corridor{
		{
			Name:     "Charbagh to Hazratganj",
			Start:    Point{Lat: 26.8317, Lon: 80.9198},
			End:      Point{Lat: 26.8500, Lon: 80.9462},
			Priority: 1,
		},
		{
			Name:     "Hazratganj to Gomti Nagar",
			Start:    Point{Lat: 26.8500, Lon: 80.9462},
			End:      Point{Lat: 26.8486, Lon: 81.0080},
			Priority: 1,
		},
		{
			Name:     "City centre to Bakshi Ka Talab",
			Start:    Point{Lat: 26.83928, Lon: 80.92313},
			End:      Point{Lat: 26.951515, Lon: 81.098317},
			Priority: 1,
		},
		{
			Name:     "Amausi Airport to Charbagh",
			Start:    Point{Lat: 26.7606, Lon: 80.8893},
			End:      Point{Lat: 26.8317, Lon: 80.9198},
			Priority: 2,
		},
		{
			Name:     "Aliganj to Indira Nagar",
			Start:    Point{Lat: 26.8913, Lon: 80.9416},
			End:      Point{Lat: 26.8784, Lon: 80.9982},
			Priority: 2,
		},
		{
			Name:     "Alambagh to Gomti Nagar",
			Start:    Point{Lat: 26.8136, Lon: 80.9023},
			End:      Point{Lat: 26.8486, Lon: 81.0080},
			Priority: 3,
		},
	}
}

// LoadCorridors reads a corridor list from a YAML file of the form:
//
//	corridors:
//	  - name: Charbagh to Hazratganj
//	    start: {lat: 26.8317, lon: 80.9198}
//	    end: {lat: 26.85, lon: 80.9462}
//	    priority: 1
func LoadCorridors(path string) ([]Corridor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("corridor file not found: %s", path)
		}
		return nil, fmt.Errorf("reading corridor file: %w", err)
	}

	var file corridorFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing corridor YAML: %w", err)
	}

	if len(file.Corridors) == 0 {
		return nil, errors.New("at least one corridor must be defined")
	}

	for i, c := range file.Corridors {
		if c.Name == "" {
			return nil, fmt.Errorf("corridors[%d].name is required", i)
		}
		if err := routing.ValidateCoordinate(c.Start.Coordinate()); err != nil {
			return nil, fmt.Errorf("corridors[%d].start for %s: %w", i, c.Name, err)
		}
		if err := routing.ValidateCoordinate(c.End.Coordinate()); err != nil {
			return nil, fmt.Errorf("corridors[%d].end for %s: %w", i, c.Name, err)
		}
	}

	return file.Corridors, nil
}

// ByPriority returns the corridors ordered by priority, stable within a priority.
func (c WarmupConfig) ByPriority() []Corridor {
	corridors := make([]Corridor, len(c.Corridors))
	copy(corridors, c.Corridors)
	sort.SliceStable(corridors, func(i, j int) bool {
		return corridors[i].Priority < corridors[j].Priority
	})
	return corridors
}

// Select returns the corridors whose names are listed, preserving config order.
// An empty names list selects every corridor.
func (c WarmupConfig) Select(names []string) []Corridor {
	if len(names) == 0 {
		return c.ByPriority()
	}

	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}

	var selected []Corridor
	for _, corridor := range c.ByPriority() {
		if _, ok := wanted[corridor.Name]; ok {
			selected = append(selected, corridor)
		}
	}
	return selected
}
