package search

import (
	"fmt"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// Action is one of the four moves of the learned policy
type Action int

const (
	MoveWest  Action = iota // -x
	MoveNorth               // +y
	MoveEast                // +x
	MoveSouth               // -y
)

// ActionCount is the size of the policy's action space
const ActionCount = 4

func (a Action) String() string {
	switch a {
	case MoveWest:
		return "west"
	case MoveNorth:
		return "north"
	case MoveEast:
		return "east"
	case MoveSouth:
		return "south"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Apply moves loc by step meters in the action's direction
func (a Action) Apply(loc models.Location, step float64) models.Location {
	switch a {
	case MoveWest:
		return loc.Offset(-step, 0)
	case MoveNorth:
		return loc.Offset(0, step)
	case MoveEast:
		return loc.Offset(step, 0)
	case MoveSouth:
		return loc.Offset(0, -step)
	default:
		return loc
	}
}

// Neighborhood returns loc followed by its four axis-aligned neighbors at step meters
func Neighborhood(loc models.Location, step float64) []models.Location {
	return []models.Location{
		loc,
		loc.Offset(0, step),
		loc.Offset(0, -step),
		loc.Offset(step, 0),
		loc.Offset(-step, 0),
	}
}
