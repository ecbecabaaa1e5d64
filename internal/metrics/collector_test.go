package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

func TestCollectorRecordAndGetTimeSeries(t *testing.T) {
	c := NewCollector()
	c.Start()

	now := time.Now()
	c.Record("reward", 10.0, now, nil)
	c.Record("reward", 20.0, now.Add(time.Second), nil)
	c.Record("reward", 30.0, now.Add(2*time.Second), nil)

	points := c.GetTimeSeries("reward", nil)
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	for i, want := range []float64{10, 20, 30} {
		if points[i].Value != want {
			t.Fatalf("point %d: expected %v, got %v", i, want, points[i].Value)
		}
	}

	points[0].Value = 99
	if c.GetTimeSeries("reward", nil)[0].Value != 10 {
		t.Fatalf("GetTimeSeries must return a copy")
	}
	if c.GetTimeSeries("missing", nil) != nil {
		t.Fatalf("expected nil for unknown metric")
	}
}

func TestCollectorLabels(t *testing.T) {
	c := NewCollector()
	c.RecordNow("episode_reward", 1, map[string]string{"kind": "greedy", "run": "a"})
	c.RecordNow("episode_reward", 2, map[string]string{"run": "a", "kind": "greedy"})
	c.RecordNow("episode_reward", 5, map[string]string{"kind": "learned"})

	if n := len(c.GetTimeSeries("episode_reward", map[string]string{"kind": "greedy", "run": "a"})); n != 2 {
		t.Fatalf("label order must not matter, got %d points", n)
	}
	agg := c.GetTotalAggregation("episode_reward")
	if agg == nil || agg.Count != 3 || agg.Sum != 8 || agg.Max != 5 {
		t.Fatalf("unexpected total aggregation %+v", agg)
	}
	if c.GetAggregation("episode_reward", nil) != nil {
		t.Fatalf("no unlabeled points were recorded")
	}
}

func TestCalculateAggregation(t *testing.T) {
	agg := calculateAggregation([]float64{4, 1, 3, 2, 5})
	if agg.Count != 5 || agg.Min != 1 || agg.Max != 5 || agg.Mean != 3 || agg.P50 != 3 {
		t.Fatalf("unexpected aggregation %+v", agg)
	}
	if agg.P95 < 4.5 || agg.P95 > 5 {
		t.Fatalf("unexpected p95 %v", agg.P95)
	}
	if calculateAggregation(nil) != nil {
		t.Fatalf("expected nil aggregation for no values")
	}
}

func TestSummaryAndMetricNames(t *testing.T) {
	c := NewCollector()
	base := time.Now()
	c.Record("mean_episode_reward", 10, base, nil)
	c.Record("mean_episode_reward", 12, base.Add(time.Second), map[string]string{"iteration": "1"})
	c.Stop()

	s := c.GetSummary()
	if s.Aggregations["mean_episode_reward"].Count != 2 || s.Last["mean_episode_reward"] != 12 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if names := c.GetMetricNames(); len(names) != 1 || names[0] != "mean_episode_reward" {
		t.Fatalf("unexpected metric names %v", names)
	}
	if _, ok := s.Last["missing"]; ok {
		t.Fatalf("expected no value for unknown metric")
	}
}

func TestSimulationObserver(t *testing.T) {
	c := NewCollector()
	observe := SimulationObserver(c)
	loc := models.Location{X: 1, Y: 2}

	observe(loc, 2*time.Second, nil)
	observe(loc, time.Second, simclient.InvalidLocation(loc, "outside"))
	observe(loc, time.Second, simclient.EngineFailure(loc, errors.New("boom")))

	if agg := c.GetTotalAggregation(MetricSimulationSeconds); agg == nil || agg.Count != 3 || agg.Sum != 4 {
		t.Fatalf("unexpected latency aggregation %+v", agg)
	}
	if agg := c.GetTotalAggregation(MetricSimulationFailures); agg == nil || agg.Count != 2 {
		t.Fatalf("expected 2 failures, got %+v", agg)
	}
	if n := len(c.GetTimeSeries(MetricSimulationSeconds, map[string]string{"outcome": OutcomeInvalidLocation})); n != 1 {
		t.Fatalf("expected one invalid-location call, got %d", n)
	}
}
