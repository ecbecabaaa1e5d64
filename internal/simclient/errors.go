package simclient

import (
	"errors"
	"fmt"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

var (
	// ErrInvalidLocation means the location lies outside the formation's usable domain.
	// Only the current step or episode is abandoned.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrSimulationEngine means the simulator failed or returned malformed data.
	// The (location, parameters) pair stays failed for the rest of the run.
	ErrSimulationEngine = errors.New("simulation engine failure")
)

// Error is a failed simulation of one location
type Error struct {
	Location models.Location
	Kind     error // ErrInvalidLocation or ErrSimulationEngine
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v at %s", e.Kind, e.Location)
	}
	return fmt.Sprintf("%v at %s: %v", e.Kind, e.Location, e.Err)
}

// Is matches the error's kind sentinel
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidLocation builds an ErrInvalidLocation error for loc
func InvalidLocation(loc models.Location, reason string) error {
	return &Error{Location: loc, Kind: ErrInvalidLocation, Err: errors.New(reason)}
}

// EngineFailure builds an ErrSimulationEngine error for loc wrapping cause
func EngineFailure(loc models.Location, cause error) error {
	return &Error{Location: loc, Kind: ErrSimulationEngine, Err: cause}
}
