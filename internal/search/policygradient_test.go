package search

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

// fakePolicy always takes the same move and records its updates
type fakePolicy struct {
	action Action

	mu       sync.Mutex
	acts     int
	inputDim int
	updates  [][]float64
}

func (p *fakePolicy) Act(obs []float64, _ *utils.RandSource) (Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acts++
	p.inputDim = len(obs)
	return Decision{
		Action: p.action,
		Probs:  []float64{0.25, 0.25, 0.25, 0.25},
		Grad:   Gradient{{1, 2}},
	}, nil
}

func (p *fakePolicy) Update(grads []Gradient, weights []float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(grads) != len(weights) {
		return errors.New("mismatched update")
	}
	p.updates = append(p.updates, append([]float64(nil), weights...))
	return nil
}

func fakeFactory(p *fakePolicy, built *int) PolicyFactory {
	return func(inputDim int) (Policy, error) {
		*built++
		return p, nil
	}
}

func northward(loc models.Location) float64 {
	return 1000 + loc.Y/10
}

func newPolicySearch(t *testing.T, env Environment, opts PolicyGradientOptions, factory PolicyFactory) *PolicyGradientSearch {
	t.Helper()
	s, err := NewPolicyGradientSearch(env, opts, factory)
	if err != nil {
		t.Fatalf("NewPolicyGradientSearch failed: %v", err)
	}
	return s
}

func TestPolicyGradientRun(t *testing.T) {
	client := newFakeClient(northward)
	env := testEnv(t, client, 3)
	sink := &recordingSink{}
	env.Sink = sink
	policy := &fakePolicy{action: MoveNorth}
	var built, hooks int

	opts := PolicyGradientOptions{
		Iterations:       3,
		EpisodesPerBatch: 2,
		MaxSteps:         3,
		StepDistance:     testStep,
		Discount:         0.99,
		OnUpdate: func(int, Policy) error {
			hooks++
			return nil
		},
	}
	s := newPolicySearch(t, env, opts, fakeFactory(policy, &built))
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if built != 1 {
		t.Fatalf("policy should be built once, got %d", built)
	}
	if policy.inputDim != models.CategoryCount*11 {
		t.Fatalf("expected observation size %d, got %d", models.CategoryCount*11, policy.inputDim)
	}
	if res.Updates != 3 || res.Skipped != 0 || hooks != 3 {
		t.Fatalf("expected 3 updates and hooks, got %d updates, %d skipped, %d hooks", res.Updates, res.Skipped, hooks)
	}
	if len(res.MeanRewards) != 3 {
		t.Fatalf("expected 3 mean rewards, got %v", res.MeanRewards)
	}
	for i, weights := range policy.updates {
		if len(weights) != 6 {
			t.Fatalf("update %d: expected 6 weighted steps, got %d", i, len(weights))
		}
		if math.Abs(utils.Sum(weights)) > 1e-9 {
			t.Errorf("update %d: normalized returns should sum to 0, got %v", i, weights)
		}
	}

	if len(res.Episodes) != 2 {
		t.Fatalf("expected the last batch to hold 2 episodes, got %d", len(res.Episodes))
	}
	for _, ep := range res.Episodes {
		if len(ep.Path) != 3 {
			t.Fatalf("expected 3 steps per episode, got %d", len(ep.Path))
		}
		for i := 1; i < len(ep.Path); i++ {
			if ep.Path[i].Y-ep.Path[i-1].Y != testStep || ep.Path[i].X != ep.Path[i-1].X {
				t.Fatalf("policy moved north but path is %v", ep.Path)
			}
		}
	}
	if client.MaxCalls() != 1 {
		t.Fatalf("simulator called more than once for a location")
	}
	if sink.paths == 0 {
		t.Fatalf("sink should see path updates")
	}
}

func TestPolicyGradientNegativeRewardEndsEpisode(t *testing.T) {
	client := newFakeClient(func(models.Location) float64 { return -1 })
	env := testEnv(t, client, 3)
	policy := &fakePolicy{action: MoveEast}
	var built int

	opts := PolicyGradientOptions{Iterations: 1, EpisodesPerBatch: 2, MaxSteps: 5, StepDistance: testStep, Discount: 0.99}
	s := newPolicySearch(t, env, opts, fakeFactory(policy, &built))
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, ep := range res.Episodes {
		if len(ep.Rewards) != 1 {
			t.Fatalf("a negative reward must end the episode, got %v", ep.Rewards)
		}
	}
	if res.Skipped != 1 || res.Updates != 0 || len(policy.updates) != 0 {
		t.Fatalf("constant returns must skip the update, got %d skipped, %d updates", res.Skipped, res.Updates)
	}
}

func TestPolicyGradientCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newFakeClient(northward)
	client.after = func(calls int) {
		if calls == 2 {
			cancel()
		}
	}
	env := testEnv(t, client, 3)
	policy := &fakePolicy{action: MoveNorth}
	var built int

	opts := PolicyGradientOptions{Iterations: 5, EpisodesPerBatch: 3, MaxSteps: 5, StepDistance: testStep, Discount: 0.99}
	s := newPolicySearch(t, env, opts, fakeFactory(policy, &built))
	res, err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.Total() != 2 {
		t.Fatalf("no simulation may start after cancellation, got %d calls", client.Total())
	}
	if res.Updates != 0 || len(policy.updates) != 0 {
		t.Fatalf("a cancelled batch must not update the policy")
	}
}

func TestObservationScaling(t *testing.T) {
	obs := Observation(resultWith(models.Location{}, 120, 5))
	if len(obs) != models.CategoryCount*11 {
		t.Fatalf("unexpected observation size %d", len(obs))
	}
	if utils.MaxAbs(obs) != 1 {
		t.Fatalf("expected observation scaled to unit magnitude, got max %v", utils.MaxAbs(obs))
	}

	zero := &models.SimulationResult{Time: []float64{0}}
	for c := range zero.Masses {
		zero.Masses[c] = []float64{0}
	}
	for _, v := range Observation(zero) {
		if v != 0 {
			t.Fatalf("an all-zero result must map to zeros")
		}
	}
}
