package server

import (
	"context"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/control"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/formation"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/config"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

type staticFormations struct {
	f *formation.Formation
}

func (s staticFormations) Get(_ context.Context, name string) (*formation.Formation, error) {
	if name != s.f.Name {
		return nil, formation.ErrNotFound
	}
	return s.f, nil
}

// grid builds an n x n mesh of 2 km cells named Stofm
func grid(t *testing.T, n int) *formation.Formation {
	t.Helper()
	var vertices []models.Location
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			vertices = append(vertices, models.Location{X: float64(i) * 2000, Y: float64(j) * 2000})
		}
	}
	var faces [][]int
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			v := j*(n+1) + i
			faces = append(faces, []int{v, v + 1, v + n + 2, v + n + 1})
		}
	}
	f, err := formation.New("Stofm", vertices, faces)
	if err != nil {
		t.Fatalf("formation.New failed: %v", err)
	}
	return f
}

func massResult(loc models.Location, trapped float64) *models.SimulationResult {
	r := &models.SimulationResult{Location: loc, Time: make([]float64, 11)}
	for c := range r.Masses {
		r.Masses[c] = make([]float64, 11)
	}
	for t := range r.Time {
		r.Time[t] = float64(t) * 3.15e8
		r.Masses[models.StructuralResidual][t] = trapped
	}
	return r
}

// testClient peaks at (5000, 5000), rejects negative coordinates and fails at x == 1
func testClient() simclient.Client {
	return simclient.ClientFunc(func(_ context.Context, loc models.Location, _ models.SimulationParameters) (*models.SimulationResult, error) {
		if loc.X < 0 || loc.Y < 0 {
			return nil, simclient.InvalidLocation(loc, "outside formation")
		}
		if loc.X == 1 {
			return nil, simclient.EngineFailure(loc, context.DeadlineExceeded)
		}
		d := (loc.X-5000)*(loc.X-5000) + (loc.Y-5000)*(loc.Y-5000)
		return massResult(loc, 1000-d/1e5), nil
	})
}

func newTestController(t *testing.T) *control.Controller {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Search.Seed = 3
	cfg.Search.PolicyGradient.Iterations = 1
	cfg.Search.PolicyGradient.EpisodesPerBatch = 2
	cfg.Search.PolicyGradient.MaxSteps = 2
	cfg.Search.PolicyGradient.Hidden = []int{4}
	c, err := control.NewController(control.Options{
		Client:     testClient(),
		Formations: staticFormations{f: grid(t, 5)},
		Params:     cfg.Simulation,
		Search:     cfg.Search,
	})
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

func waitFor(t *testing.T, c *control.Controller, kind control.Kind) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Wait(ctx, kind); err != nil {
		t.Fatalf("run did not exit: %v", err)
	}
}
