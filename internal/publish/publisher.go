// Package publish hands the latest visualization payloads of a run to
// readers. Writers swap whole values; readers poll and forward changes.
package publish

import (
	"sync"
	"sync/atomic"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/viz"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// Publisher holds the current path overlay and mass chart of one search kind.
// Each channel is written by at most one run at a time and read by any number of pollers.
type Publisher struct {
	path atomic.Pointer[models.PathOverlay]
	mass atomic.Pointer[models.MassChart]
}

// NewPublisher creates an empty publisher
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishPath replaces the path overlay
func (p *Publisher) PublishPath(o *models.PathOverlay) {
	p.path.Store(o)
}

// PublishMass replaces the mass chart
func (p *Publisher) PublishMass(c *models.MassChart) {
	p.mass.Store(c)
}

// Path returns the current overlay or nil
func (p *Publisher) Path() *models.PathOverlay {
	return p.path.Load()
}

// Mass returns the current chart or nil
func (p *Publisher) Mass() *models.MassChart {
	return p.mass.Load()
}

// Reset clears both channels
func (p *Publisher) Reset() {
	p.path.Store(nil)
	p.mass.Store(nil)
}

// Sink adapts a Publisher to a single run. After Stop returns the run can no
// longer write, so a later Reset is not overwritten by a late update.
type Sink struct {
	pub *Publisher

	mu      sync.Mutex
	stopped bool
}

// NewSink binds a run to pub
func NewSink(pub *Publisher) *Sink {
	return &Sink{pub: pub}
}

// PathUpdated publishes the overlay of the run's episodes
func (s *Sink) PathUpdated(formation string, episodes []models.Episode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.pub.PublishPath(viz.BuildPathOverlay(formation, episodes))
}

// ResultEvaluated publishes the trapping chart of res
func (s *Sink) ResultEvaluated(res *models.SimulationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.pub.PublishMass(viz.BuildMassChart(res))
}

// Stop detaches the sink; it waits for an in-flight write
func (s *Sink) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
