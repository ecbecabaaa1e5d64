package metrics

import (
	"errors"
	"time"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// Simulator metric names; search metrics are named by the search package
const (
	MetricSimulationSeconds  = "simulation_seconds"
	MetricSimulationFailures = "simulation_failures"
)

// Outcome label values of simulator calls
const (
	OutcomeOK              = "ok"
	OutcomeInvalidLocation = "invalid_location"
	OutcomeEngineError     = "engine_error"
)

// OutcomeLabels creates the labels map of a simulator call
func OutcomeLabels(err error) map[string]string {
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, simclient.ErrInvalidLocation):
		outcome = OutcomeInvalidLocation
	default:
		outcome = OutcomeEngineError
	}
	return map[string]string{"outcome": outcome}
}

// SimulationObserver records latency and failures of every simulator call into collector
func SimulationObserver(collector *Collector) simclient.Observer {
	return func(_ models.Location, elapsed time.Duration, err error) {
		labels := OutcomeLabels(err)
		collector.RecordNow(MetricSimulationSeconds, elapsed.Seconds(), labels)
		if err != nil {
			collector.RecordNow(MetricSimulationFailures, 1, labels)
		}
	}
}
