package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/formation"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

// PolicyGradientOptions configures a REINFORCE run
type PolicyGradientOptions struct {
	Iterations       int
	EpisodesPerBatch int
	MaxSteps         int
	StepDistance     float64
	Discount         float64
	// OnUpdate runs after every applied update, e.g. to checkpoint the policy.
	// Its error is logged and does not stop training.
	OnUpdate func(iteration int, policy Policy) error
	// Convergence stops training early once the mean-reward history settles.
	// Nil runs every iteration.
	Convergence ConvergenceStrategy
}

// PolicyGradientResult is the outcome of a policy-gradient run
type PolicyGradientResult struct {
	// Updates counts iterations that changed the policy
	Updates int `json:"updates"`
	// Skipped counts iterations dropped as degenerate
	Skipped int `json:"skipped"`
	// MeanRewards holds the mean total reward of each finished iteration's completed episodes
	MeanRewards []float64 `json:"mean_rewards"`
	// Episodes is the last finished batch
	Episodes  []models.Episode  `json:"episodes"`
	Evaluated []models.Location `json:"evaluated"`
	Aborted   int               `json:"aborted"`
	Best      *Candidate        `json:"best,omitempty"`
	// Converged explains an early stop; empty when every iteration ran
	Converged string `json:"converged,omitempty"`
}

// PolicyGradientSearch trains a stochastic move policy with REINFORCE.
// The policy is built on first use, once the observation size is known.
type PolicyGradientSearch struct {
	env     Environment
	opts    PolicyGradientOptions
	factory PolicyFactory
	cache   *LocationCache
	policy  Policy
}

// trajectory is one episode with the per-step gradients needed for the update
type trajectory struct {
	episode models.Episode
	grads   []Gradient
}

// NewPolicyGradientSearch creates a learner with a fresh cache
func NewPolicyGradientSearch(env Environment, opts PolicyGradientOptions, factory PolicyFactory) (*PolicyGradientSearch, error) {
	if err := env.validate(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if opts.Iterations <= 0 || opts.EpisodesPerBatch <= 0 || opts.MaxSteps <= 0 || opts.StepDistance <= 0 {
		return nil, fmt.Errorf("invalid policy gradient options %+v", opts)
	}
	if opts.Discount < 0 || opts.Discount > 1 {
		return nil, fmt.Errorf("discount must be in [0, 1], got %g", opts.Discount)
	}
	if factory == nil {
		return nil, errors.New("policy factory is required")
	}
	return &PolicyGradientSearch{
		env:     env,
		opts:    opts,
		factory: factory,
		cache:   NewLocationCache(env.Client, env.OnMiss),
	}, nil
}

// Cache returns the run's location cache
func (p *PolicyGradientSearch) Cache() *LocationCache {
	return p.cache
}

// Policy returns the trained policy, or nil before the first observation
func (p *PolicyGradientSearch) Policy() Policy {
	return p.policy
}

// Run executes the training iterations sequentially. On cancellation the
// in-progress batch is discarded and the context's error is returned with
// the result accumulated so far.
func (p *PolicyGradientSearch) Run(ctx context.Context) (*PolicyGradientResult, error) {
	log := p.env.logger()
	result := &PolicyGradientResult{}
	defer func() {
		result.Evaluated = p.cache.Queried()
		hits, misses := p.cache.Stats()
		p.env.record(MetricCacheHits, float64(hits))
		p.env.record(MetricCacheMisses, float64(misses))
	}()

	for it := 0; it < p.opts.Iterations; it++ {
		batch, err := p.collectBatch(ctx, result)
		if err != nil {
			log.Info("policy gradient cancelled", "iteration", it, "updates", result.Updates)
			return result, fmt.Errorf("policy gradient stopped in iteration %d: %w", it, err)
		}

		episodes := make([]models.Episode, 0, len(batch))
		for _, tr := range batch {
			episodes = append(episodes, tr.episode)
		}
		result.Episodes = episodes

		if len(batch) == 0 {
			result.Skipped++
			log.Warn("skipping iteration", "iteration", it, "error", ErrDegenerateBatch, "reason", "no completed episodes")
			continue
		}

		mean := meanEpisodeReward(episodes)
		result.MeanRewards = append(result.MeanRewards, mean)
		p.env.record(MetricMeanEpisodeReward, mean)

		if err := p.update(batch); err != nil {
			if errors.Is(err, ErrDegenerateBatch) {
				result.Skipped++
				log.Warn("skipping iteration", "iteration", it, "error", err)
				continue
			}
			return result, fmt.Errorf("policy update in iteration %d: %w", it, err)
		}
		result.Updates++

		if p.opts.OnUpdate != nil {
			if err := p.opts.OnUpdate(it, p.policy); err != nil {
				log.Warn("post-update hook failed", "iteration", it, "error", err)
			}
		}
		log.Info("policy iteration complete",
			"iteration", it,
			"episodes", len(batch),
			"mean_reward", humanize.FormatFloat("#,###.##", mean)+" Mt")

		if p.opts.Convergence != nil {
			if ok, reason := p.opts.Convergence.CheckConvergence(result.MeanRewards); ok {
				result.Converged = reason
				log.Info("policy gradient converged", "iteration", it, "reason", reason)
				break
			}
		}
	}
	return result, nil
}

// collectBatch runs one batch of episodes from distinct random centroids.
// Only a cancellation error is returned; failed episodes are counted and dropped.
func (p *PolicyGradientSearch) collectBatch(ctx context.Context, result *PolicyGradientResult) ([]trajectory, error) {
	log := p.env.logger()
	var batch []trajectory
	var done []models.Episode

	starts := formation.SampleCentroids(p.env.Formation, p.opts.EpisodesPerBatch, p.env.Rand)
	for i, start := range starts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tr, err := p.runEpisode(ctx, start, done)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil, err
			}
			result.Aborted++
			log.Warn("policy episode aborted", "episode", i, "start", start.String(), "error", err)
			continue
		}
		if len(tr.episode.Rewards) == 0 {
			continue
		}

		batch = append(batch, tr)
		done = append(done, tr.episode)
		total := utils.Sum(tr.episode.Rewards)
		p.env.record(MetricEpisodeReward, total)
		result.Best = bestOf(result.Best, tr.episode)
	}
	return batch, nil
}

// runEpisode walks the policy from start. The start centroid is simulated
// first to produce the initial observation. An out-of-domain move ends the
// episode and keeps the steps taken; an engine failure aborts it.
func (p *PolicyGradientSearch) runEpisode(ctx context.Context, start models.Location, done []models.Episode) (trajectory, error) {
	var tr trajectory

	res, err := p.cache.GetOrCompute(ctx, start, p.env.Params)
	if errors.Is(err, simclient.ErrInvalidLocation) {
		return tr, nil
	}
	if err != nil {
		return tr, err
	}
	p.env.resultEvaluated(res)

	current := start
	for step := 0; step < p.opts.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return trajectory{}, err
		}

		obs := Observation(res)
		if p.policy == nil {
			if p.policy, err = p.factory(len(obs)); err != nil {
				return trajectory{}, fmt.Errorf("build policy: %w", err)
			}
		}
		decision, err := p.policy.Act(obs, p.env.Rand)
		if err != nil {
			return trajectory{}, fmt.Errorf("policy step: %w", err)
		}

		next := decision.Action.Apply(current, p.opts.StepDistance)
		nextRes, err := p.cache.GetOrCompute(ctx, next, p.env.Params)
		if errors.Is(err, simclient.ErrInvalidLocation) {
			p.env.logger().Debug("policy left the domain", "location", next.String(), "action", decision.Action.String())
			break
		}
		if err != nil {
			return trajectory{}, err
		}
		p.env.resultEvaluated(nextRes)

		reward, err := p.env.Reward.Reward(nextRes)
		if err != nil {
			return trajectory{}, simclient.EngineFailure(next, err)
		}
		p.env.record(MetricReward, reward)

		tr.episode.Path = append(tr.episode.Path, next)
		tr.episode.Rewards = append(tr.episode.Rewards, reward)
		tr.grads = append(tr.grads, decision.Grad)
		p.env.pathUpdated(withCurrent(done, tr.episode))

		if reward < 0 {
			break
		}
		current = next
		res = nextRes
	}
	return tr, nil
}

// update applies one policy step weighted by the batch-normalized returns
func (p *PolicyGradientSearch) update(batch []trajectory) error {
	rewards := make([][]float64, len(batch))
	for i, tr := range batch {
		rewards[i] = tr.episode.Rewards
	}
	returns, err := NormalizeReturns(rewards, p.opts.Discount)
	if err != nil {
		return err
	}

	var grads []Gradient
	var weights []float64
	for i, tr := range batch {
		grads = append(grads, tr.grads...)
		weights = append(weights, returns[i]...)
	}
	return p.policy.Update(grads, weights)
}

// Observation flattens a result's masses and scales them into [-1, 1] by the
// largest magnitude. An all-zero result maps to zeros.
func Observation(res *models.SimulationResult) []float64 {
	obs := res.Flatten()
	scale := utils.MaxAbs(obs)
	if scale == 0 {
		return obs
	}
	for i := range obs {
		obs[i] /= scale
	}
	return obs
}

func meanEpisodeReward(episodes []models.Episode) float64 {
	totals := make([]float64, len(episodes))
	for i, ep := range episodes {
		totals[i] = utils.Sum(ep.Rewards)
	}
	return utils.Mean(totals)
}
