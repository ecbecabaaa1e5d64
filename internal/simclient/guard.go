package simclient

import (
	"context"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// Domain reports whether a location is inside a formation's usable area
type Domain interface {
	Contains(loc models.Location) bool
}

// DomainGuard rejects out-of-domain locations before they reach the simulator
type DomainGuard struct {
	next    Client
	domains func(formation string) (Domain, error)
}

// NewDomainGuard wraps next. lookup resolves the formation named in the parameters.
func NewDomainGuard(next Client, lookup func(formation string) (Domain, error)) *DomainGuard {
	return &DomainGuard{next: next, domains: lookup}
}

// Invoke checks loc against the formation and forwards to the wrapped client
func (g *DomainGuard) Invoke(ctx context.Context, loc models.Location, params models.SimulationParameters) (*models.SimulationResult, error) {
	domain, err := g.domains(params.Formation)
	if err != nil {
		return nil, EngineFailure(loc, err)
	}
	if !domain.Contains(loc) {
		return nil, InvalidLocation(loc, "outside formation "+params.Formation)
	}
	return g.next.Invoke(ctx, loc, params)
}
