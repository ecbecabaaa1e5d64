// Package simclient holds the simulator backends the search engine calls.
//
// A Client is synchronous and deterministic: the same location and parameters
// always produce the same result. Calls can take minutes and are never
// interrupted by the search; callers detach cancellation before invoking.
package simclient

import (
	"context"
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// Client runs one simulation of a well at loc
type Client interface {
	Invoke(ctx context.Context, loc models.Location, params models.SimulationParameters) (*models.SimulationResult, error)
}

// ClientFunc adapts a function to the Client interface
type ClientFunc func(ctx context.Context, loc models.Location, params models.SimulationParameters) (*models.SimulationResult, error)

// Invoke calls f
func (f ClientFunc) Invoke(ctx context.Context, loc models.Location, params models.SimulationParameters) (*models.SimulationResult, error) {
	return f(ctx, loc, params)
}

// Observer is told about every completed invocation
type Observer func(loc models.Location, elapsed time.Duration, err error)

// Validated wraps a client so malformed results surface as ErrSimulationEngine.
// The optional observer sees every call's latency and outcome.
func Validated(next Client, observe Observer) Client {
	return ClientFunc(func(ctx context.Context, loc models.Location, p models.SimulationParameters) (*models.SimulationResult, error) {
		start := time.Now()
		res, err := next.Invoke(ctx, loc, p)
		if err == nil {
			err = checkResult(loc, res, p)
		}
		if observe != nil {
			observe(loc, time.Since(start), err)
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	})
}

func checkResult(loc models.Location, res *models.SimulationResult, p models.SimulationParameters) error {
	if err := res.Validate(); err != nil {
		return EngineFailure(loc, fmt.Errorf("malformed result: %w", err))
	}
	if want := p.TimeSteps(); res.Steps() != want {
		return EngineFailure(loc, fmt.Errorf("malformed result: %d time steps, expected %d", res.Steps(), want))
	}
	return nil
}
