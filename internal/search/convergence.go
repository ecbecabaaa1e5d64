package search

import (
	"fmt"
	"strings"
)

// ConvergenceStrategy decides from the mean-reward history of a learner
// whether further iterations are worth running. Rewards are maximized.
type ConvergenceStrategy interface {
	CheckConvergence(history []float64) (bool, string)
	Name() string
}

// ConvergenceConfig holds the thresholds shared by the strategies
type ConvergenceConfig struct {
	// MinIterations is the history length below which no strategy converges
	MinIterations int
	// NoImprovementIterations is how many iterations may pass after the best one
	NoImprovementIterations int
	// PlateauIterations is the window whose rewards must lie within Tolerance
	PlateauIterations int
	Tolerance         float64
}

// DefaultConvergenceConfig returns the thresholds used when none are configured
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		MinIterations:           5,
		NoImprovementIterations: 8,
		PlateauIterations:       5,
		Tolerance:               1,
	}
}

// NoImprovementStrategy converges when the best mean reward is too many iterations old
type NoImprovementStrategy struct {
	config ConvergenceConfig
}

func NewNoImprovementStrategy(config ConvergenceConfig) *NoImprovementStrategy {
	return &NoImprovementStrategy{config: config}
}

func (s *NoImprovementStrategy) Name() string {
	return "no_improvement"
}

func (s *NoImprovementStrategy) CheckConvergence(history []float64) (bool, string) {
	if len(history) < s.config.MinIterations || s.config.NoImprovementIterations <= 0 {
		return false, ""
	}
	best := 0
	for i, r := range history {
		if r > history[best] {
			best = i
		}
	}
	since := len(history) - 1 - best
	if since >= s.config.NoImprovementIterations {
		return true, fmt.Sprintf("no improvement for %d iterations (best %.2f at iteration %d)", since, history[best], best)
	}
	return false, ""
}

// PlateauStrategy converges when the last rewards all lie within a tolerance band
type PlateauStrategy struct {
	config ConvergenceConfig
}

func NewPlateauStrategy(config ConvergenceConfig) *PlateauStrategy {
	return &PlateauStrategy{config: config}
}

func (s *PlateauStrategy) Name() string {
	return "plateau"
}

func (s *PlateauStrategy) CheckConvergence(history []float64) (bool, string) {
	n := s.config.PlateauIterations
	if len(history) < s.config.MinIterations || n <= 1 || len(history) < n {
		return false, ""
	}
	recent := history[len(history)-n:]
	lo, hi := recent[0], recent[0]
	for _, r := range recent {
		lo = min(lo, r)
		hi = max(hi, r)
	}
	if hi-lo <= s.config.Tolerance {
		return true, fmt.Sprintf("mean reward plateaued for %d iterations (range %.4f)", n, hi-lo)
	}
	return false, ""
}

// CombinedStrategy converges as soon as any of its strategies does
type CombinedStrategy struct {
	strategies []ConvergenceStrategy
}

func NewCombinedStrategy(strategies ...ConvergenceStrategy) *CombinedStrategy {
	return &CombinedStrategy{strategies: strategies}
}

func (s *CombinedStrategy) Name() string {
	names := make([]string, len(s.strategies))
	for i, st := range s.strategies {
		names[i] = st.Name()
	}
	return "combined(" + strings.Join(names, ",") + ")"
}

func (s *CombinedStrategy) CheckConvergence(history []float64) (bool, string) {
	for _, st := range s.strategies {
		if ok, reason := st.CheckConvergence(history); ok {
			return true, st.Name() + ": " + reason
		}
	}
	return false, ""
}

// NewConvergenceStrategy builds a strategy by name. "" and "none" disable early stopping.
func NewConvergenceStrategy(name string, config ConvergenceConfig) (ConvergenceStrategy, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "no_improvement":
		return NewNoImprovementStrategy(config), nil
	case "plateau":
		return NewPlateauStrategy(config), nil
	case "combined":
		return NewCombinedStrategy(NewNoImprovementStrategy(config), NewPlateauStrategy(config)), nil
	}
	return nil, fmt.Errorf("unknown convergence strategy %q", name)
}
