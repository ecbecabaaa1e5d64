package search

import (
	"fmt"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// RewardEvaluator scores a simulation: structurally trapped mass minus
// exited mass at the horizon time step. Rewards are only comparable
// between results of the same parameter set.
type RewardEvaluator struct {
	Horizon int
}

// Reward computes the reward of res
func (r RewardEvaluator) Reward(res *models.SimulationResult) (float64, error) {
	trapped, err := res.Mass(models.StructuralResidual, r.Horizon)
	if err != nil {
		return 0, fmt.Errorf("reward at horizon %d: %w", r.Horizon, err)
	}
	exited, err := res.Mass(models.Exited, r.Horizon)
	if err != nil {
		return 0, fmt.Errorf("reward at horizon %d: %w", r.Horizon, err)
	}
	return trapped - exited, nil
}
