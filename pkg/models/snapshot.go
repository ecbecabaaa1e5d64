package models

import "slices"

// PathOverlay describes the well paths drawn over the formation map.
// Values are replaced wholesale by the publisher, never edited in place.
type PathOverlay struct {
	Formation   string       `json:"formation"`
	Episodes    []Episode    `json:"episodes"`
	Markers     []Marker     `json:"markers"`
	Annotations []Annotation `json:"annotations"`
}

// Marker is one visited location, sized by its reward
type Marker struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

// Annotation labels the first location of an episode
type Annotation struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
}

// Equal compares two overlays by value
func (o *PathOverlay) Equal(other *PathOverlay) bool {
	if o == nil || other == nil {
		return o == other
	}
	if o.Formation != other.Formation {
		return false
	}
	if !slices.Equal(o.Markers, other.Markers) || !slices.Equal(o.Annotations, other.Annotations) {
		return false
	}
	return slices.EqualFunc(o.Episodes, other.Episodes, func(a, b Episode) bool {
		return slices.Equal(a.Path, b.Path) && slices.Equal(a.Rewards, b.Rewards)
	})
}

// MassChart describes the stacked trapping-inventory chart of one simulation
type MassChart struct {
	Location Location      `json:"location"`
	Years    []float64     `json:"years"`
	Series   []ChartSeries `json:"series"`
	YMax     float64       `json:"y_max"`
}

// ChartSeries is one stacked area of the mass chart
type ChartSeries struct {
	Label  string    `json:"label"`
	Color  string    `json:"color"`
	Values []float64 `json:"values"`
}

// Equal compares two charts by value
func (c *MassChart) Equal(other *MassChart) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.Location != other.Location || c.YMax != other.YMax || !slices.Equal(c.Years, other.Years) {
		return false
	}
	return slices.EqualFunc(c.Series, other.Series, func(a, b ChartSeries) bool {
		return a.Label == b.Label && a.Color == b.Color && slices.Equal(a.Values, b.Values)
	})
}
