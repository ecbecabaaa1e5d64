package simclient

import (
	"context"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// SecondsPerYear is the year length used for simulator time vectors
const SecondsPerYear = 3600 * 24 * 365.2425

// water plus CO2 residual saturation of the reference parameter set
const referenceResidualSum = 0.32

// SyntheticClient is an offline simulator backed by smooth noise fields.
// Two fields describe the rock at each location: trap quality (how much CO2
// ends up structurally trapped) and leakiness (how much exits the formation).
// Results are deterministic for a given seed, location and parameter set.
type SyntheticClient struct {
	trap  opensimplex.Noise
	leak  opensimplex.Noise
	scale float64
}

// NewSyntheticClient creates a synthetic backend. scale is the horizontal
// correlation length of the rock fields in meters; zero selects 20 km.
func NewSyntheticClient(seed int64, scale float64) *SyntheticClient {
	if scale <= 0 {
		scale = 20000
	}
	return &SyntheticClient{
		trap:  opensimplex.NewNormalized(seed),
		leak:  opensimplex.NewNormalized(seed + 1),
		scale: scale,
	}
}

// Invoke produces trapping curves for loc
func (c *SyntheticClient) Invoke(_ context.Context, loc models.Location, params models.SimulationParameters) (*models.SimulationResult, error) {
	x, y := loc.X/c.scale, loc.Y/c.scale
	quality := octaveNoise(c.trap, x, y, 3)
	leak := octaveNoise(c.leak, x, y, 2)

	years := timeGrid(params)
	total := params.InjectionPeriod + params.MigrationPeriod
	residualShare := (params.WaterResidual + params.CO2Residual) / referenceResidualSum

	res := &models.SimulationResult{Location: loc, Time: make([]float64, len(years))}
	for ci := range res.Masses {
		res.Masses[ci] = make([]float64, len(years))
	}

	for t, yr := range years {
		injected := params.InjectionRate * math.Min(yr, params.InjectionPeriod)
		progress := yr / total

		exitedFrac := leak * leak * 0.6 * progress
		if params.UseDissolution {
			exitedFrac *= 0.8
		}
		remaining := 1 - exitedFrac

		fracs := [models.CategoryCount]float64{}
		fracs[models.StructuralResidual] = remaining * quality * (0.2 + 0.4*progress)
		fracs[models.Residual] = math.Min(remaining*(1-quality)*0.3*progress*residualShare, remaining*0.3)
		fracs[models.ResidualInPlume] = remaining * 0.1 * quality
		fracs[models.StructuralPlume] = remaining * 0.3 * quality * (1 - progress)
		trapped := 0.0
		for _, f := range fracs {
			trapped += f
		}
		fracs[models.FreePlume] = math.Max(remaining-trapped, 0)
		fracs[models.Exited] = exitedFrac

		for ci, f := range fracs {
			res.Masses[ci][t] = math.Round(injected * f)
		}
		res.Time[t] = yr * SecondsPerYear
	}
	return res, nil
}

// timeGrid returns the report times in years: the initial state, the
// injection steps, then the migration steps.
func timeGrid(p models.SimulationParameters) []float64 {
	out := make([]float64, 0, p.TimeSteps())
	out = append(out, 0)
	for i := 1; i <= p.InjectionSteps; i++ {
		out = append(out, p.InjectionPeriod*float64(i)/float64(p.InjectionSteps))
	}
	for i := 1; i <= p.MigrationSteps; i++ {
		out = append(out, p.InjectionPeriod+p.MigrationPeriod*float64(i)/float64(p.MigrationSteps))
	}
	return out
}

// octaveNoise sums layered noise samples, normalized back into [0, 1)
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int) float64 {
	total, amplitude, frequency, maxAmp := 0.0, 1.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxAmp += amplitude
		amplitude *= 0.5
		frequency *= 2
	}
	return total / maxAmp
}
