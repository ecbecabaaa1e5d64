package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Location is a planar coordinate of a candidate well in the formation's projection.
// Two locations are the same well only if both coordinates are exactly equal.
type Location struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Offset returns the location displaced by (dx, dy)
func (l Location) Offset(dx, dy float64) Location {
	return Location{X: l.X + dx, Y: l.Y + dy}
}

func (l Location) String() string {
	return fmt.Sprintf("(%.1f, %.1f)", l.X, l.Y)
}

// Category indexes the trapping inventory rows of a SimulationResult
type Category int

const (
	StructuralResidual Category = iota
	Residual
	ResidualInPlume
	StructuralPlume
	FreePlume
	Exited
)

// CategoryCount is the number of trapping categories reported by the simulator
const CategoryCount = 6

var categoryNames = [CategoryCount]string{
	"Structural residual",
	"Residual",
	"Residual in plume",
	"Structural plume",
	"Free plume",
	"Exited",
}

func (c Category) String() string {
	if c < 0 || int(c) >= CategoryCount {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// Categories returns all trapping categories in row order
func Categories() []Category {
	return []Category{StructuralResidual, Residual, ResidualInPlume, StructuralPlume, FreePlume, Exited}
}

// SimulationParameters is the immutable input of one simulator invocation.
// The struct is comparable so it can take part in cache keys directly.
type SimulationParameters struct {
	Formation           string  `json:"formation" yaml:"formation"`
	InjectionRate       float64 `json:"injection_rate" yaml:"injection_rate"`             // Mt/year
	InjectionPeriod     float64 `json:"injection_period" yaml:"injection_period"`         // years
	InjectionSteps      int     `json:"injection_steps" yaml:"injection_steps"`           // time steps
	MigrationPeriod     float64 `json:"migration_period" yaml:"migration_period"`         // years
	MigrationSteps      int     `json:"migration_steps" yaml:"migration_steps"`           // time steps
	SeafloorDepth       float64 `json:"seafloor_depth" yaml:"seafloor_depth"`             // meters
	SeafloorTemperature float64 `json:"seafloor_temperature" yaml:"seafloor_temperature"` // Celsius
	WaterResidual       float64 `json:"water_residual" yaml:"water_residual"`
	CO2Residual         float64 `json:"co2_residual" yaml:"co2_residual"`
	UseDissolution      bool    `json:"use_dissolution" yaml:"use_dissolution"`
}

// DefaultSimulationParameters returns the reference parameter set used by the dashboard
func DefaultSimulationParameters() SimulationParameters {
	return SimulationParameters{
		Formation:           "Stofm",
		InjectionRate:       10,
		InjectionPeriod:     50,
		InjectionSteps:      5,
		MigrationPeriod:     100,
		MigrationSteps:      5,
		SeafloorDepth:       100,
		SeafloorTemperature: 7,
		WaterResidual:       0.11,
		CO2Residual:         0.21,
		UseDissolution:      false,
	}
}

// TimeSteps returns the number of reported time steps, including the initial state
func (p SimulationParameters) TimeSteps() int {
	return p.InjectionSteps + p.MigrationSteps + 1
}

// Validate checks the parameter ranges the simulator accepts
func (p SimulationParameters) Validate() error {
	if p.Formation == "" {
		return errors.New("formation is required")
	}
	if p.InjectionRate <= 0 {
		return fmt.Errorf("injection_rate must be positive, got %g", p.InjectionRate)
	}
	if p.InjectionPeriod <= 0 {
		return fmt.Errorf("injection_period must be positive, got %g", p.InjectionPeriod)
	}
	if p.InjectionSteps <= 0 {
		return fmt.Errorf("injection_steps must be positive, got %d", p.InjectionSteps)
	}
	if p.MigrationPeriod < 0 {
		return fmt.Errorf("migration_period cannot be negative, got %g", p.MigrationPeriod)
	}
	if p.MigrationSteps < 0 {
		return fmt.Errorf("migration_steps cannot be negative, got %d", p.MigrationSteps)
	}
	if p.SeafloorDepth < 0 {
		return fmt.Errorf("seafloor_depth cannot be negative, got %g", p.SeafloorDepth)
	}
	if p.WaterResidual < 0 || p.WaterResidual >= 1 {
		return fmt.Errorf("water_residual must be in [0, 1), got %g", p.WaterResidual)
	}
	if p.CO2Residual < 0 || p.CO2Residual >= 1 {
		return fmt.Errorf("co2_residual must be in [0, 1), got %g", p.CO2Residual)
	}
	if p.WaterResidual+p.CO2Residual >= 1 {
		return fmt.Errorf("water_residual + co2_residual must be below 1, got %g", p.WaterResidual+p.CO2Residual)
	}
	return nil
}

// SimulationResult is the trapping inventory of one simulated well.
// Masses[c][t] is the mass (Mt) of category c at time step t; Time[t] is in seconds.
// A result is never mutated after the simulator client returns it.
type SimulationResult struct {
	Location Location                 `json:"location"`
	Masses   [CategoryCount][]float64 `json:"masses"`
	Time     []float64                `json:"time"`
}

// Steps returns the number of time steps in the result
func (r *SimulationResult) Steps() int {
	return len(r.Time)
}

// Mass returns the mass of a category at a time step
func (r *SimulationResult) Mass(c Category, step int) (float64, error) {
	if c < 0 || int(c) >= CategoryCount {
		return 0, fmt.Errorf("unknown category %d", int(c))
	}
	row := r.Masses[c]
	if step < 0 || step >= len(row) {
		return 0, fmt.Errorf("time step %d out of range [0, %d)", step, len(row))
	}
	return row[step], nil
}

// Flatten returns the masses row-major as a single vector
func (r *SimulationResult) Flatten() []float64 {
	out := make([]float64, 0, CategoryCount*r.Steps())
	for c := 0; c < CategoryCount; c++ {
		out = append(out, r.Masses[c]...)
	}
	return out
}

// Validate reports whether the result has the shape the search relies on
func (r *SimulationResult) Validate() error {
	if r == nil {
		return errors.New("nil result")
	}
	steps := len(r.Time)
	if steps == 0 {
		return errors.New("empty time vector")
	}
	for c := 0; c < CategoryCount; c++ {
		if len(r.Masses[c]) != steps {
			return fmt.Errorf("category %s has %d steps, time vector has %d", Category(c), len(r.Masses[c]), steps)
		}
		for t, v := range r.Masses[c] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("category %s step %d is not finite", Category(c), t)
			}
		}
	}
	for t, v := range r.Time {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("time step %d is not finite", t)
		}
	}
	return nil
}

// Episode is one search trajectory: the visited locations and the reward recorded at each.
type Episode struct {
	Path    []Location `json:"path"`
	Rewards []float64  `json:"rewards"`
}

// Clone returns a deep copy of the episode
func (e Episode) Clone() Episode {
	return Episode{
		Path:    append([]Location(nil), e.Path...),
		Rewards: append([]float64(nil), e.Rewards...),
	}
}

// MetricPoint represents a single metric data point
type MetricPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Aggregation represents aggregated statistics for a metric
type Aggregation struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
}
