// Package viz turns search state into the payloads the dashboard draws: the
// well-path overlay on the formation map and the stacked trapping chart.
package viz

import (
	"math"

	"github.com/dustin/go-humanize"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// secondsPerChartYear converts simulator time to chart years
const secondsPerChartYear = 365 * 24 * 3600

// seriesColors are the fill colors of the six stacked trapping categories
var seriesColors = [models.CategoryCount]string{
	"#2BBD00",
	"#97A5FF",
	"#9FFF59",
	"#FFF51D",
	"#FE9B49",
	"#D90000",
}

// BuildPathOverlay places a marker on every visited location, sized by the
// non-negative part of its reward, and labels the first location of each
// episode with that step's reward.
func BuildPathOverlay(formation string, episodes []models.Episode) *models.PathOverlay {
	overlay := &models.PathOverlay{
		Formation:   formation,
		Episodes:    make([]models.Episode, 0, len(episodes)),
		Markers:     []models.Marker{},
		Annotations: []models.Annotation{},
	}
	for _, ep := range episodes {
		overlay.Episodes = append(overlay.Episodes, ep.Clone())
		for i, loc := range ep.Path {
			size := 0.0
			if i < len(ep.Rewards) {
				size = math.Max(ep.Rewards[i], 0)
			}
			overlay.Markers = append(overlay.Markers, models.Marker{X: loc.X, Y: loc.Y, Size: size})
		}
		if len(ep.Path) > 0 && len(ep.Rewards) > 0 {
			overlay.Annotations = append(overlay.Annotations, models.Annotation{
				X:     ep.Path[0].X,
				Y:     ep.Path[0].Y,
				Label: RewardLabel(ep.Rewards[0]),
			})
		}
	}
	return overlay
}

// RewardLabel formats a reward in megatonnes
func RewardLabel(reward float64) string {
	return humanize.FormatFloat("#,###.", math.Round(reward)) + " Mt"
}

// BuildMassChart stacks the six trapping categories over whole years since
// injection start. YMax is the largest total mass at any time step.
func BuildMassChart(res *models.SimulationResult) *models.MassChart {
	chart := &models.MassChart{
		Location: res.Location,
		Years:    make([]float64, len(res.Time)),
		Series:   make([]models.ChartSeries, 0, models.CategoryCount),
	}
	for i, t := range res.Time {
		chart.Years[i] = math.Floor(t / secondsPerChartYear)
	}
	for _, c := range models.Categories() {
		chart.Series = append(chart.Series, models.ChartSeries{
			Label:  c.String(),
			Color:  seriesColors[c],
			Values: append([]float64(nil), res.Masses[c]...),
		})
	}
	for t := range res.Time {
		total := 0.0
		for c := range res.Masses {
			if t < len(res.Masses[c]) {
				total += res.Masses[c][t]
			}
		}
		chart.YMax = math.Max(chart.YMax, total)
	}
	return chart
}
