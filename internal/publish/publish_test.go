package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

func chartWith(ymax float64) *models.MassChart {
	return &models.MassChart{Years: []float64{0}, YMax: ymax}
}

func massPoller(p *Publisher) *Poller[models.MassChart] {
	return NewPoller(p.Mass, (*models.MassChart).Equal)
}

func TestPublisherReset(t *testing.T) {
	p := NewPublisher()
	if p.Path() != nil || p.Mass() != nil {
		t.Fatalf("new publisher should be empty")
	}
	p.PublishPath(&models.PathOverlay{Formation: "Stofm"})
	p.PublishMass(chartWith(1))
	if p.Path() == nil || p.Mass() == nil {
		t.Fatalf("expected published values")
	}
	p.Reset()
	if p.Path() != nil || p.Mass() != nil {
		t.Fatalf("Reset should clear both channels")
	}
}

func TestPollerForwardsChangesOnce(t *testing.T) {
	p := NewPublisher()
	poller := massPoller(p)

	if _, changed := poller.Poll(); changed {
		t.Fatalf("an empty channel is not a change")
	}

	p.PublishMass(chartWith(5))
	v, changed := poller.Poll()
	if !changed || v.YMax != 5 {
		t.Fatalf("expected the first value to be forwarded, got %v %v", v, changed)
	}
	if _, changed := poller.Poll(); changed {
		t.Fatalf("an unchanged value must not be forwarded twice")
	}

	// an equal value under a new pointer is not a change
	p.PublishMass(chartWith(5))
	if _, changed := poller.Poll(); changed {
		t.Fatalf("an equal value must not be forwarded")
	}

	p.PublishMass(chartWith(7))
	if v, changed := poller.Poll(); !changed || v.YMax != 7 {
		t.Fatalf("expected the new value to be forwarded")
	}

	p.Reset()
	if v, changed := poller.Poll(); !changed || v != nil {
		t.Fatalf("expected one cleared notification, got %v %v", v, changed)
	}
	if _, changed := poller.Poll(); changed {
		t.Fatalf("a cleared channel reports once")
	}
}

func TestPollerRun(t *testing.T) {
	p := NewPublisher()
	p.PublishMass(chartWith(3))
	poller := massPoller(p)

	ctx, cancel := context.WithCancel(context.Background())
	var got []float64
	err := poller.Run(ctx, time.Millisecond, func(c *models.MassChart) error {
		got = append(got, c.YMax)
		if len(got) == 1 {
			p.PublishMass(chartWith(4))
		} else {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("expected [3 4], got %v", got)
	}

	stop := errors.New("client gone")
	p.PublishMass(chartWith(9))
	if err := poller.Run(context.Background(), time.Millisecond, func(*models.MassChart) error { return stop }); !errors.Is(err, stop) {
		t.Fatalf("expected the emit error, got %v", err)
	}
}

func TestSinkStopsWriting(t *testing.T) {
	p := NewPublisher()
	s := NewSink(p)

	res := &models.SimulationResult{Time: []float64{0}}
	for c := range res.Masses {
		res.Masses[c] = []float64{1}
	}
	s.ResultEvaluated(res)
	s.PathUpdated("Stofm", []models.Episode{{Path: []models.Location{{X: 1, Y: 1}}, Rewards: []float64{2}}})
	if p.Mass() == nil || p.Mass().YMax != 6 {
		t.Fatalf("expected a published chart, got %+v", p.Mass())
	}
	if p.Path() == nil || len(p.Path().Markers) != 1 {
		t.Fatalf("expected a published overlay, got %+v", p.Path())
	}

	s.Stop()
	p.Reset()
	s.ResultEvaluated(res)
	s.PathUpdated("Stofm", nil)
	if p.Mass() != nil || p.Path() != nil {
		t.Fatalf("a stopped sink must not write")
	}
}
