package search

import (
	"context"
	"errors"
	"testing"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

func newGreedy(t *testing.T, env Environment, opts GreedyOptions) *GreedySearch {
	t.Helper()
	g, err := NewGreedySearch(env, opts)
	if err != nil {
		t.Fatalf("NewGreedySearch failed: %v", err)
	}
	return g
}

func TestGreedyScenario(t *testing.T) {
	client := newFakeClient(peak)
	sink := &recordingSink{}
	env := testEnv(t, client, 5)
	env.Sink = sink

	g := newGreedy(t, env, GreedyOptions{Restarts: 5, MaxSteps: 5, StepDistance: testStep})
	res, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Episodes) == 0 || len(res.Episodes) > 5 {
		t.Fatalf("expected 1..5 episodes, got %d", len(res.Episodes))
	}
	for i, ep := range res.Episodes {
		if len(ep.Path) == 0 || len(ep.Path) > 5 {
			t.Errorf("episode %d: path length %d out of range", i, len(ep.Path))
		}
		if len(ep.Path) != len(ep.Rewards) {
			t.Errorf("episode %d: %d locations but %d rewards", i, len(ep.Path), len(ep.Rewards))
		}
	}

	seen := make(map[models.Location]bool)
	for _, loc := range res.Evaluated {
		if seen[loc] {
			t.Fatalf("location %v evaluated twice", loc)
		}
		seen[loc] = true
	}
	if client.MaxCalls() != 1 {
		t.Fatalf("simulator called more than once for a location")
	}
	if g.Cache().Len() != len(res.Evaluated) {
		t.Fatalf("cache holds %d results, %d locations evaluated", g.Cache().Len(), len(res.Evaluated))
	}

	if res.Best == nil || res.Best.Reward != peak(res.Best.Location) {
		t.Fatalf("unexpected best candidate %+v", res.Best)
	}
	if sink.paths == 0 || sink.results != len(res.Evaluated) {
		t.Fatalf("sink saw %d path updates and %d results", sink.paths, sink.results)
	}
}

func TestGreedyClimbsToPeak(t *testing.T) {
	client := newFakeClient(peak)
	env := testEnv(t, client, 5)

	g := newGreedy(t, env, GreedyOptions{Restarts: 1, MaxSteps: 10, StepDistance: testStep})
	res, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Episodes) != 1 {
		t.Fatalf("expected one episode, got %d", len(res.Episodes))
	}
	top := models.Location{X: 5000, Y: 5000}
	if res.Best == nil || res.Best.Location != top || res.Best.Reward != 500 {
		t.Fatalf("expected the climb to reach %v, best was %+v", top, res.Best)
	}
}

func TestGreedyAllNegativeProducesNoEpisodes(t *testing.T) {
	client := newFakeClient(func(models.Location) float64 { return -3 })
	env := testEnv(t, client, 3)

	g := newGreedy(t, env, GreedyOptions{Restarts: 3, MaxSteps: 5, StepDistance: testStep})
	res, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Episodes) != 0 {
		t.Fatalf("episodes with no recorded step must be discarded, got %d", len(res.Episodes))
	}
	if len(res.Evaluated) == 0 {
		t.Fatalf("candidates should still have been evaluated")
	}
}

func TestGreedySkipsInvalidLocations(t *testing.T) {
	client := newFakeClient(peak)
	f := gridFormation(t, 5)
	client.fail = func(loc models.Location) error {
		if !f.Contains(loc) {
			return simclient.InvalidLocation(loc, "outside mesh")
		}
		return nil
	}
	env := testEnv(t, client, 5)

	g := newGreedy(t, env, GreedyOptions{Restarts: 5, MaxSteps: 5, StepDistance: testStep})
	res, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Aborted != 0 {
		t.Fatalf("out-of-domain candidates must not abort episodes, %d aborted", res.Aborted)
	}
	for _, ep := range res.Episodes {
		for _, loc := range ep.Path {
			if !f.Contains(loc) {
				t.Fatalf("path visits %v outside the formation", loc)
			}
		}
	}
}

func TestGreedyEngineFailureAbortsEpisode(t *testing.T) {
	client := newFakeClient(peak)
	client.fail = func(loc models.Location) error {
		return simclient.EngineFailure(loc, errors.New("solver diverged"))
	}
	env := testEnv(t, client, 3)

	g := newGreedy(t, env, GreedyOptions{Restarts: 3, MaxSteps: 5, StepDistance: testStep})
	res, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("engine failures must not end the run: %v", err)
	}
	if res.Aborted != 3 || len(res.Episodes) != 0 {
		t.Fatalf("expected 3 aborted episodes and none kept, got %d and %d", res.Aborted, len(res.Episodes))
	}
}

func TestGreedyCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newFakeClient(peak)
	client.after = func(calls int) {
		if calls == 3 {
			cancel()
		}
	}
	env := testEnv(t, client, 5)

	g := newGreedy(t, env, GreedyOptions{Restarts: 5, MaxSteps: 5, StepDistance: testStep})
	res, err := g.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.Total() != 3 {
		t.Fatalf("no simulation may start after cancellation, got %d calls", client.Total())
	}
	if g.Cache().Len() != 3 {
		t.Fatalf("expected 3 cached results, got %d", g.Cache().Len())
	}
	if len(res.Episodes) != 0 {
		t.Fatalf("the in-progress episode must be discarded")
	}
}

func TestNewGreedySearchValidates(t *testing.T) {
	env := testEnv(t, newFakeClient(peak), 2)
	if _, err := NewGreedySearch(env, GreedyOptions{Restarts: 0, MaxSteps: 5, StepDistance: testStep}); err == nil {
		t.Fatalf("expected invalid options error")
	}
	env.Client = nil
	if _, err := NewGreedySearch(env, GreedyOptions{Restarts: 1, MaxSteps: 5, StepDistance: testStep}); err == nil {
		t.Fatalf("expected invalid environment error")
	}
}
