package control

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/metrics"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/search"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

// Status is the lifecycle state of a run
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the run has ended
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// RunSummary condenses a finished search
type RunSummary struct {
	Episodes    int               `json:"episodes"`
	Evaluated   int               `json:"evaluated"`
	Aborted     int               `json:"aborted"`
	Iterations  int               `json:"iterations,omitempty"`
	Skipped     int               `json:"skipped,omitempty"`
	MeanRewards []float64         `json:"mean_rewards,omitempty"`
	Converged   string            `json:"converged,omitempty"`
	Best        *search.Candidate `json:"best,omitempty"`
}

// RunRecord describes one background search execution
type RunRecord struct {
	ID              string      `json:"id"`
	Kind            Kind        `json:"kind"`
	Status          Status      `json:"status"`
	CreatedAtUnixMs int64       `json:"created_at_unix_ms"`
	StartedAtUnixMs int64       `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs   int64       `json:"ended_at_unix_ms,omitempty"`
	Error           string      `json:"error,omitempty"`
	Summary         *RunSummary `json:"summary,omitempty"`
}

type runEntry struct {
	rec     RunRecord
	metrics *metrics.Collector
}

// RunStore keeps the records of every run started by the daemon
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*runEntry
}

// NewRunStore creates an empty store
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*runEntry)}
}

func nowUnixMs() int64 {
	return time.Now().UTC().UnixMilli()
}

// Create registers a pending run of kind. An empty runID gets a generated one.
func (s *RunStore) Create(runID string, kind Kind, collector *metrics.Collector) (RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID == "" {
		runID = utils.GenerateRunID(string(kind))
	}
	if _, exists := s.runs[runID]; exists {
		return RunRecord{}, fmt.Errorf("run already exists: %s", runID)
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	e := &runEntry{
		rec: RunRecord{
			ID:              runID,
			Kind:            kind,
			Status:          StatusPending,
			CreatedAtUnixMs: nowUnixMs(),
		},
		metrics: collector,
	}
	s.runs[runID] = e
	return e.rec, nil
}

// Get returns a copy of the run's record
func (s *RunStore) Get(runID string) (RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.runs[runID]
	if !ok {
		return RunRecord{}, false
	}
	return e.rec, true
}

// Metrics returns the run's metrics collector
func (s *RunStore) Metrics(runID string) (*metrics.Collector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.runs[runID]
	if !ok {
		return nil, false
	}
	return e.metrics, true
}

// List returns up to limit records, newest first. A non-positive limit means 50.
func (s *RunStore) List(limit int) []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := make([]RunRecord, 0, len(s.runs))
	for _, e := range s.runs {
		out = append(out, e.rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtUnixMs != out[j].CreatedAtUnixMs {
			return out[i].CreatedAtUnixMs > out[j].CreatedAtUnixMs
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SetStatus moves a run to status and stamps start and end times
func (s *RunStore) SetStatus(runID string, status Status, errMsg string) (RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.runs[runID]
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	e.rec.Status = status
	if errMsg != "" {
		e.rec.Error = errMsg
	}
	switch {
	case status == StatusRunning:
		if e.rec.StartedAtUnixMs == 0 {
			e.rec.StartedAtUnixMs = nowUnixMs()
		}
	case status.Terminal():
		e.rec.EndedAtUnixMs = nowUnixMs()
	}
	return e.rec, nil
}

// SetSummary attaches the outcome of a run
func (s *RunStore) SetSummary(runID string, summary *RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	e.rec.Summary = summary
	return nil
}
