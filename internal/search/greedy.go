package search

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/formation"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// GreedyOptions configures a greedy search
type GreedyOptions struct {
	Restarts     int
	MaxSteps     int
	StepDistance float64
}

// GreedyResult is the outcome of a greedy search
type GreedyResult struct {
	// Episodes holds every completed episode with at least one recorded step
	Episodes []models.Episode `json:"episodes"`
	// Evaluated lists every location sent to the simulator, in order
	Evaluated []models.Location `json:"evaluated"`
	// Aborted counts episodes dropped because the simulator failed
	Aborted int        `json:"aborted"`
	Best    *Candidate `json:"best,omitempty"`
}

// GreedySearch is a local hill climb restarted from random cell centroids
type GreedySearch struct {
	env   Environment
	opts  GreedyOptions
	cache *LocationCache
}

// NewGreedySearch creates a greedy search with a fresh cache
func NewGreedySearch(env Environment, opts GreedyOptions) (*GreedySearch, error) {
	if err := env.validate(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if opts.Restarts <= 0 || opts.MaxSteps <= 0 || opts.StepDistance <= 0 {
		return nil, fmt.Errorf("invalid greedy options %+v", opts)
	}
	return &GreedySearch{
		env:   env,
		opts:  opts,
		cache: NewLocationCache(env.Client, env.OnMiss),
	}, nil
}

// Cache returns the run's location cache
func (g *GreedySearch) Cache() *LocationCache {
	return g.cache
}

// Run executes every episode sequentially. On cancellation it returns the
// episodes completed so far together with the context's error; the
// in-progress episode is discarded.
func (g *GreedySearch) Run(ctx context.Context) (*GreedyResult, error) {
	log := g.env.logger()
	result := &GreedyResult{}
	defer func() {
		result.Evaluated = g.cache.Queried()
		hits, misses := g.cache.Stats()
		g.env.record(MetricCacheHits, float64(hits))
		g.env.record(MetricCacheMisses, float64(misses))
	}()

	starts := formation.SampleCentroids(g.env.Formation, g.opts.Restarts, g.env.Rand)
	for i, start := range starts {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("greedy search stopped before episode %d: %w", i, err)
		}

		ep, err := g.runEpisode(ctx, start, result.Episodes)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				log.Info("greedy search cancelled", "episode", i, "completed", len(result.Episodes))
				return result, fmt.Errorf("greedy search stopped in episode %d: %w", i, err)
			}
			result.Aborted++
			log.Warn("greedy episode aborted", "episode", i, "start", start.String(), "error", err)
			continue
		}
		if len(ep.Rewards) == 0 {
			log.Debug("greedy episode produced no steps", "episode", i, "start", start.String())
			continue
		}

		result.Episodes = append(result.Episodes, ep)
		result.Best = bestOf(result.Best, ep)
		last := len(ep.Rewards) - 1
		g.env.record(MetricEpisodeReward, ep.Rewards[last])
		log.Info("greedy episode complete",
			"episode", i,
			"steps", len(ep.Path),
			"final_reward", humanize.FormatFloat("#,###.##", ep.Rewards[last])+" Mt")
	}
	return result, nil
}

// runEpisode climbs from start until no candidate improves on the previous
// best, every candidate is negative, or the step budget is spent.
func (g *GreedySearch) runEpisode(ctx context.Context, start models.Location, done []models.Episode) (models.Episode, error) {
	var ep models.Episode
	current := start
	var prevBest float64

	for step := 0; step < g.opts.MaxSteps; step++ {
		fresh := slices.DeleteFunc(Neighborhood(current, g.opts.StepDistance), func(loc models.Location) bool {
			return g.cache.Contains(loc, g.env.Params)
		})
		if len(fresh) == 0 {
			break
		}

		scored, err := g.evaluate(ctx, fresh)
		if err != nil {
			return models.Episode{}, err
		}
		if len(scored) == 0 {
			break
		}

		rewards := make([]float64, len(scored))
		allNegative := true
		for i, c := range scored {
			rewards[i] = c.Reward
			if c.Reward >= 0 {
				allNegative = false
			}
		}
		best := scored[g.env.Rand.ArgMax(rewards)]

		if step > 0 && best.Reward == prevBest {
			break
		}
		if allNegative {
			break
		}

		ep.Path = append(ep.Path, best.Location)
		ep.Rewards = append(ep.Rewards, best.Reward)
		g.env.pathUpdated(withCurrent(done, ep))

		prevBest = best.Reward
		current = best.Location
	}
	return ep, nil
}

// evaluate simulates each candidate, checking for cancellation before every
// call. Out-of-domain candidates are skipped; any other failure aborts the episode.
func (g *GreedySearch) evaluate(ctx context.Context, locs []models.Location) ([]Candidate, error) {
	scored := make([]Candidate, 0, len(locs))
	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := g.cache.GetOrCompute(ctx, loc, g.env.Params)
		if errors.Is(err, simclient.ErrInvalidLocation) {
			g.env.logger().Debug("skipping candidate", "location", loc.String(), "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		g.env.resultEvaluated(res)

		reward, err := g.env.Reward.Reward(res)
		if err != nil {
			return nil, simclient.EngineFailure(loc, err)
		}
		g.env.record(MetricReward, reward)
		scored = append(scored, Candidate{Location: loc, Reward: reward})
	}
	return scored, nil
}
