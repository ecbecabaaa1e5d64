package search

import (
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

// DiscountRewards returns G_t = r_t + discount*G_{t+1}, computed tail to head
func DiscountRewards(rewards []float64, discount float64) []float64 {
	out := make([]float64, len(rewards))
	running := 0.0
	for t := len(rewards) - 1; t >= 0; t-- {
		running = rewards[t] + discount*running
		out[t] = running
	}
	return out
}

// NormalizeReturns discounts every episode and standardizes the returns with
// the mean and population standard deviation of the whole batch. The result
// keeps the per-episode shape. It fails with ErrDegenerateBatch when the
// batch has fewer than two steps in total or all returns are equal.
func NormalizeReturns(batch [][]float64, discount float64) ([][]float64, error) {
	discounted := make([][]float64, len(batch))
	var flat []float64
	for i, rewards := range batch {
		discounted[i] = DiscountRewards(rewards, discount)
		flat = append(flat, discounted[i]...)
	}

	normalized, ok := utils.Standardize(flat)
	if !ok {
		return nil, ErrDegenerateBatch
	}

	out := make([][]float64, len(batch))
	offset := 0
	for i, d := range discounted {
		out[i] = normalized[offset : offset+len(d)]
		offset += len(d)
	}
	return out, nil
}
