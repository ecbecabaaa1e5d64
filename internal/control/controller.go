// Package control runs searches in the background: one execution per search
// kind, started and stopped by an idempotent toggle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/formation"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/metrics"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/publish"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/search"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/storage"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/viz"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/config"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

var (
	ErrUnknownKind         = errors.New("unknown search kind")
	ErrPreviousRunDraining = errors.New("previous run of this kind has not exited yet")
	ErrRunNotFound         = errors.New("run not found")
	ErrArchiveUnavailable  = errors.New("result archive not available")
)

// Kind names a search strategy
type Kind string

const (
	KindGreedy  Kind = "greedy"
	KindLearned Kind = "learned"
)

// Kinds returns every search kind
func Kinds() []Kind {
	return []Kind{KindGreedy, KindLearned}
}

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindGreedy, KindLearned:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// FormationLookup resolves formations by name
type FormationLookup interface {
	Get(ctx context.Context, name string) (*formation.Formation, error)
}

// ResultArchive stores simulated results; failures are logged and ignored
type ResultArchive interface {
	SaveResult(ctx context.Context, runID string, params models.SimulationParameters, res *models.SimulationResult) error
}

// ResultLister is implemented by archives that can read a run's results back
type ResultLister interface {
	ListResults(ctx context.Context, runID string) ([]storage.ArchivedResult, error)
}

// Options wires a Controller
type Options struct {
	Client     simclient.Client
	Formations FormationLookup
	Params     models.SimulationParameters
	Search     config.SearchConfig
	// Optional collaborators
	Archive  ResultArchive
	Notifier *Notifier
	// PolicyFactory overrides the policy network built from Search.PolicyGradient
	PolicyFactory search.PolicyFactory
	Logger        *slog.Logger
}

// ToggleResult is the state of a kind after a toggle
type ToggleResult struct {
	Kind    Kind   `json:"kind"`
	Running bool   `json:"running"`
	RunID   string `json:"run_id,omitempty"`
}

// KindStatus is the current state of a kind
type KindStatus struct {
	Kind    Kind   `json:"kind"`
	Running bool   `json:"running"`
	RunID   string `json:"run_id,omitempty"`
}

// kindState is guarded by Controller.mu
type kindState struct {
	pub     *publish.Publisher
	running bool
	runID   string
	cancel  context.CancelFunc
	sink    *publish.Sink
	// done is closed once the current or last execution has exited
	done chan struct{}
}

// Controller owns the background execution of every search kind
type Controller struct {
	opts  Options
	store *RunStore

	mu    sync.Mutex
	kinds map[Kind]*kindState
	wg    sync.WaitGroup
}

// NewController validates opts and creates a controller with idle kinds
func NewController(opts Options) (*Controller, error) {
	if opts.Client == nil {
		return nil, errors.New("simulation client is required")
	}
	if opts.Formations == nil {
		return nil, errors.New("formation lookup is required")
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation parameters: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default
	}
	if opts.PolicyFactory == nil {
		pg := opts.Search.PolicyGradient
		opts.PolicyFactory = search.NewPolicyFactory(pg.Hidden, pg.LearningRate, pg.CheckpointPath)
	}

	c := &Controller{
		opts:  opts,
		store: NewRunStore(),
		kinds: make(map[Kind]*kindState),
	}
	for _, k := range Kinds() {
		c.kinds[k] = &kindState{pub: publish.NewPublisher()}
	}
	return c, nil
}

// Store returns the run records
func (c *Controller) Store() *RunStore {
	return c.store
}

// Publisher returns the snapshot channels of a kind
func (c *Controller) Publisher(kind Kind) (*publish.Publisher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return st.pub, nil
}

// Status reports every kind's running state
func (c *Controller) Status() []KindStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]KindStatus, 0, len(c.kinds))
	for _, k := range Kinds() {
		st := c.kinds[k]
		out = append(out, KindStatus{Kind: k, Running: st.running, RunID: st.runID})
	}
	return out
}

// Toggle starts the kind when it is idle and stops it when it is running.
// Stopping is cooperative: the execution finishes its current simulator call
// and exits at the next checkpoint, and the kind's snapshots are cleared
// immediately. Starting again before that exit fails with ErrPreviousRunDraining.
func (c *Controller) Toggle(kind Kind) (ToggleResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.kinds[kind]
	if !ok {
		return ToggleResult{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if st.running {
		st.running = false
		st.cancel()
		st.sink.Stop()
		st.pub.Reset()
		c.opts.Logger.Info("search stop requested", "kind", kind, "run_id", st.runID)
		return ToggleResult{Kind: kind, Running: false, RunID: st.runID}, nil
	}

	if st.done != nil {
		select {
		case <-st.done:
		default:
			return ToggleResult{}, fmt.Errorf("%w: %s", ErrPreviousRunDraining, st.runID)
		}
	}

	collector := metrics.NewCollector()
	rec, err := c.store.Create("", kind, collector)
	if err != nil {
		return ToggleResult{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	st.running = true
	st.runID = rec.ID
	st.cancel = cancel
	st.sink = publish.NewSink(st.pub)
	st.done = make(chan struct{})

	c.wg.Add(1)
	go c.execute(ctx, kind, rec.ID, st.sink, collector, st.done)

	c.opts.Logger.Info("search started", "kind", kind, "run_id", rec.ID)
	return ToggleResult{Kind: kind, Running: true, RunID: rec.ID}, nil
}

// Wait blocks until the given run's execution has exited or ctx is done
func (c *Controller) Wait(ctx context.Context, kind Kind) error {
	c.mu.Lock()
	st, ok := c.kinds[kind]
	var done chan struct{}
	if ok {
		done = st.done
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops every running kind and waits for the executions to exit
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	for _, st := range c.kinds {
		if st.running {
			st.running = false
			st.cancel()
			st.sink.Stop()
		}
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunSingleSimulation simulates one location outside any search, bypassing
// the run caches. Nil params use the configured parameter set.
func (c *Controller) RunSingleSimulation(ctx context.Context, loc models.Location, params *models.SimulationParameters) (*models.SimulationResult, *models.MassChart, error) {
	p := c.opts.Params
	if params != nil {
		p = *params
	}
	if err := p.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid simulation parameters: %w", err)
	}
	res, err := simclient.Validated(c.opts.Client, nil).Invoke(ctx, loc, p)
	if err != nil {
		return nil, nil, err
	}
	return res, viz.BuildMassChart(res), nil
}

// ArchivedResults returns the results a run wrote to the archive. It fails
// with ErrArchiveUnavailable when the archive cannot be read back.
func (c *Controller) ArchivedResults(ctx context.Context, runID string) ([]storage.ArchivedResult, error) {
	if _, ok := c.store.Get(runID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	lister, ok := c.opts.Archive.(ResultLister)
	if !ok {
		return nil, ErrArchiveUnavailable
	}
	return lister.ListResults(ctx, runID)
}

// execute runs one search to completion or cancellation and records the outcome
func (c *Controller) execute(ctx context.Context, kind Kind, runID string, sink *publish.Sink, collector *metrics.Collector, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	log := c.opts.Logger.With("run_id", runID, "kind", string(kind))
	if _, err := c.store.SetStatus(runID, StatusRunning, ""); err != nil {
		log.Error("failed to mark run running", "error", err)
	}
	collector.Start()

	summary, err := c.runSearch(ctx, kind, runID, sink, collector, log)
	collector.Stop()

	status := StatusCompleted
	errMsg := ""
	switch {
	case err == nil:
		log.Info("search completed")
	case errors.Is(err, context.Canceled):
		status = StatusCancelled
		log.Info("search cancelled", "reason", err)
	default:
		status = StatusFailed
		errMsg = err.Error()
		log.Error("search failed", "error", err)
	}

	if summary != nil {
		if err := c.store.SetSummary(runID, summary); err != nil {
			log.Warn("failed to store run summary", "error", err)
		}
	}
	rec, setErr := c.store.SetStatus(runID, status, errMsg)
	if setErr != nil {
		log.Error("failed to store run status", "error", setErr)
	}

	c.mu.Lock()
	if st := c.kinds[kind]; st.runID == runID && st.running {
		st.running = false
		st.cancel()
	}
	c.mu.Unlock()

	// every terminal state is reported, including cancelled and failed runs
	if setErr == nil {
		c.opts.Notifier.Notify(rec)
	}
}

func (c *Controller) runSearch(ctx context.Context, kind Kind, runID string, sink *publish.Sink, collector *metrics.Collector, log *slog.Logger) (*RunSummary, error) {
	f, err := c.opts.Formations.Get(ctx, c.opts.Params.Formation)
	if err != nil {
		return nil, fmt.Errorf("load formation %s: %w", c.opts.Params.Formation, err)
	}

	env := search.Environment{
		Client:    simclient.Validated(c.opts.Client, metrics.SimulationObserver(collector)),
		Formation: f,
		Params:    c.opts.Params,
		Reward:    search.RewardEvaluator{Horizon: c.opts.Search.Horizon},
		Rand:      utils.NewRandSource(c.opts.Search.Seed),
		Sink:      sink,
		Recorder:  collector,
		Logger:    log,
		OnMiss:    c.archiver(runID, log),
	}

	switch kind {
	case KindGreedy:
		g, err := search.NewGreedySearch(env, search.GreedyOptions{
			Restarts:     c.opts.Search.Greedy.Restarts,
			MaxSteps:     c.opts.Search.Greedy.MaxSteps,
			StepDistance: c.opts.Search.StepDistance,
		})
		if err != nil {
			return nil, err
		}
		res, err := g.Run(ctx)
		return &RunSummary{
			Episodes:  len(res.Episodes),
			Evaluated: len(res.Evaluated),
			Aborted:   res.Aborted,
			Best:      res.Best,
		}, err

	case KindLearned:
		pg := c.opts.Search.PolicyGradient
		conv, err := search.NewConvergenceStrategy(pg.Convergence.Strategy, search.ConvergenceConfig{
			MinIterations:           pg.Convergence.MinIterations,
			NoImprovementIterations: pg.Convergence.NoImprovementIterations,
			PlateauIterations:       pg.Convergence.PlateauIterations,
			Tolerance:               pg.Convergence.Tolerance,
		})
		if err != nil {
			return nil, err
		}
		s, err := search.NewPolicyGradientSearch(env, search.PolicyGradientOptions{
			Iterations:       pg.Iterations,
			EpisodesPerBatch: pg.EpisodesPerBatch,
			MaxSteps:         pg.MaxSteps,
			StepDistance:     c.opts.Search.StepDistance,
			Discount:         pg.Discount,
			OnUpdate:         checkpointer(pg.CheckpointPath),
			Convergence:      conv,
		}, c.opts.PolicyFactory)
		if err != nil {
			return nil, err
		}
		res, err := s.Run(ctx)
		return &RunSummary{
			Episodes:    len(res.Episodes),
			Evaluated:   len(res.Evaluated),
			Aborted:     res.Aborted,
			Iterations:  res.Updates,
			Skipped:     res.Skipped,
			MeanRewards: res.MeanRewards,
			Converged:   res.Converged,
			Best:        res.Best,
		}, err
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// archiver returns the cache-miss hook that archives results, or nil without an archive
func (c *Controller) archiver(runID string, log *slog.Logger) func(*models.SimulationResult) {
	if c.opts.Archive == nil {
		return nil
	}
	params := c.opts.Params
	return func(res *models.SimulationResult) {
		if err := c.opts.Archive.SaveResult(context.Background(), runID, params, res); err != nil {
			log.Warn("failed to archive result", "location", res.Location.String(), "error", err)
		}
	}
}

// checkpointer saves PolicyModel weights after every update when path is set
func checkpointer(path string) func(int, search.Policy) error {
	if path == "" {
		return nil
	}
	return func(_ int, p search.Policy) error {
		m, ok := p.(*search.PolicyModel)
		if !ok {
			return nil
		}
		return m.Save(path)
	}
}
