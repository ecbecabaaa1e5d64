// Package search implements the well placement strategies: a greedy local
// search and a REINFORCE policy-gradient learner. Both run sequentially on
// the caller's goroutine and observe cancellation only at step and episode
// boundaries, never inside a simulator call.
package search

import (
	"errors"
	"log/slog"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/formation"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

// ErrDegenerateBatch means a training batch cannot produce an update: it has
// no completed episodes, or its returns have zero variance.
var ErrDegenerateBatch = errors.New("degenerate training batch")

// Sink receives visualization updates from a running search.
// Implementations must not retain the slices they are given.
type Sink interface {
	// PathUpdated is called after every path extension with all episodes so far
	PathUpdated(formation string, episodes []models.Episode)
	// ResultEvaluated is called after every successful simulation
	ResultEvaluated(result *models.SimulationResult)
}

// Recorder receives search metrics
type Recorder interface {
	RecordNow(name string, value float64, labels map[string]string)
}

// Metric names emitted by searches
const (
	MetricReward            = "reward"
	MetricEpisodeReward     = "episode_reward"
	MetricMeanEpisodeReward = "mean_episode_reward"
	MetricCacheHits         = "cache_hits"
	MetricCacheMisses       = "cache_misses"
)

// Environment is what a search needs from the outside world
type Environment struct {
	Client    simclient.Client
	Formation *formation.Formation
	Params    models.SimulationParameters
	Reward    RewardEvaluator
	Rand      *utils.RandSource
	// Optional collaborators
	Sink     Sink
	Recorder Recorder
	Logger   *slog.Logger
	// OnMiss is called with every freshly simulated result
	OnMiss func(result *models.SimulationResult)
}

func (e *Environment) validate() error {
	switch {
	case e.Client == nil:
		return errors.New("simulation client is required")
	case e.Formation == nil:
		return errors.New("formation is required")
	case e.Rand == nil:
		return errors.New("random source is required")
	}
	return e.Params.Validate()
}

func (e *Environment) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logger.Default
}

func (e *Environment) pathUpdated(episodes []models.Episode) {
	if e.Sink != nil {
		e.Sink.PathUpdated(e.Formation.Name, episodes)
	}
}

func (e *Environment) resultEvaluated(res *models.SimulationResult) {
	if e.Sink != nil {
		e.Sink.ResultEvaluated(res)
	}
}

func (e *Environment) record(name string, value float64) {
	if e.Recorder != nil {
		e.Recorder.RecordNow(name, value, nil)
	}
}

// Candidate is a scored location
type Candidate struct {
	Location models.Location `json:"location"`
	Reward   float64         `json:"reward"`
}

// withCurrent returns episodes plus a snapshot of the in-progress one
func withCurrent(done []models.Episode, current models.Episode) []models.Episode {
	out := make([]models.Episode, 0, len(done)+1)
	for _, ep := range done {
		out = append(out, ep.Clone())
	}
	return append(out, current.Clone())
}

// bestOf returns the higher-reward of best and every step of ep
func bestOf(best *Candidate, ep models.Episode) *Candidate {
	for i, r := range ep.Rewards {
		if best == nil || r > best.Reward {
			best = &Candidate{Location: ep.Path[i], Reward: r}
		}
	}
	return best
}
