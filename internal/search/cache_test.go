package search

import (
	"context"
	"errors"
	"testing"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

func TestLocationCacheIdempotent(t *testing.T) {
	client := newFakeClient(peak)
	var misses int
	cache := NewLocationCache(client, func(*models.SimulationResult) { misses++ })
	params := models.DefaultSimulationParameters()
	loc := models.Location{X: 1000, Y: 3000}

	first, err := cache.GetOrCompute(context.Background(), loc, params)
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	second, err := cache.GetOrCompute(context.Background(), loc, params)
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected the cached result to be returned")
	}
	if client.Total() != 1 || misses != 1 {
		t.Fatalf("expected one simulator call and one miss, got %d calls and %d misses", client.Total(), misses)
	}

	other := params
	other.InjectionRate = 20
	if _, err := cache.GetOrCompute(context.Background(), loc, other); err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if client.Total() != 2 {
		t.Fatalf("different parameters must not share a cache entry")
	}

	hits, missCount := cache.Stats()
	if hits != 1 || missCount != 2 {
		t.Fatalf("expected 1 hit and 2 misses, got %d and %d", hits, missCount)
	}
	if cache.Len() != 2 || !cache.Contains(loc, other) {
		t.Fatalf("unexpected cache contents")
	}
}

func TestLocationCacheOutAndBackHitsSameEntry(t *testing.T) {
	client := newFakeClient(peak)
	cache := NewLocationCache(client, nil)
	params := models.DefaultSimulationParameters()
	start := models.Location{X: 0.1, Y: 3000}
	back := MoveWest.Apply(MoveEast.Apply(start, 0.2), 0.2)
	if back == start {
		t.Fatalf("expected float drift between %v and %v", start, back)
	}

	first, err := cache.GetOrCompute(context.Background(), start, params)
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	second, err := cache.GetOrCompute(context.Background(), back, params)
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if first != second || client.Total() != 1 {
		t.Fatalf("expected one simulator call for the same cell, got %d", client.Total())
	}
	if !cache.Contains(back, params) {
		t.Fatalf("drifted location must be reported as cached")
	}
}

func TestLocationCacheRemembersFailures(t *testing.T) {
	client := newFakeClient(peak)
	client.fail = func(loc models.Location) error {
		return simclient.InvalidLocation(loc, "outside mesh")
	}
	cache := NewLocationCache(client, nil)
	params := models.DefaultSimulationParameters()
	loc := models.Location{X: -1, Y: -1}

	for i := 0; i < 3; i++ {
		_, err := cache.GetOrCompute(context.Background(), loc, params)
		if !errors.Is(err, simclient.ErrInvalidLocation) {
			t.Fatalf("attempt %d: expected ErrInvalidLocation, got %v", i, err)
		}
	}
	if client.Total() != 1 {
		t.Fatalf("failed pairs must not be simulated again, got %d calls", client.Total())
	}
	if cache.Len() != 0 {
		t.Fatalf("failures must not be stored as results")
	}
	if !cache.Contains(loc, params) {
		t.Fatalf("a failed pair still counts as queried")
	}
}

func TestLocationCacheIgnoresCancellation(t *testing.T) {
	var sawCancel bool
	client := newFakeClient(peak)
	cache := NewLocationCache(clientCheckingContext(client, &sawCancel), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cache.GetOrCompute(ctx, models.Location{X: 1000, Y: 1000}, models.DefaultSimulationParameters()); err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if sawCancel {
		t.Fatalf("simulator call must not observe the caller's cancellation")
	}
}

func clientCheckingContext(next simclient.Client, sawCancel *bool) simclient.Client {
	return simclient.ClientFunc(func(ctx context.Context, loc models.Location, p models.SimulationParameters) (*models.SimulationResult, error) {
		if ctx.Err() != nil {
			*sawCancel = true
		}
		return next.Invoke(ctx, loc, p)
	})
}
