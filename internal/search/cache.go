package search

import (
	"context"
	"sync"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

type cacheKey struct {
	loc    models.Location
	params models.SimulationParameters
}

// keyDecimals snaps key coordinates to millimetres so that moving out and
// back by the step size lands on the same entry despite float drift
const keyDecimals = 3

func newCacheKey(loc models.Location, params models.SimulationParameters) cacheKey {
	return cacheKey{
		loc:    models.Location{X: utils.Round(loc.X, keyDecimals), Y: utils.Round(loc.Y, keyDecimals)},
		params: params,
	}
}

// LocationCache memoizes simulator results for one run. Locations within
// half a millimetre of each other share an entry.
// Failed pairs are remembered too: they return the original error without
// calling the simulator again and are never stored as results.
type LocationCache struct {
	client simclient.Client
	onMiss func(*models.SimulationResult)

	mu      sync.Mutex
	results map[cacheKey]*models.SimulationResult
	failed  map[cacheKey]error
	order   []models.Location
	hits    int
	misses  int
}

// NewLocationCache creates an empty cache in front of client.
// onMiss, if set, sees every freshly computed result.
func NewLocationCache(client simclient.Client, onMiss func(*models.SimulationResult)) *LocationCache {
	return &LocationCache{
		client:  client,
		onMiss:  onMiss,
		results: make(map[cacheKey]*models.SimulationResult),
		failed:  make(map[cacheKey]error),
	}
}

// GetOrCompute returns the cached result for (loc, params) or simulates it.
// The simulator call is detached from ctx cancellation so it always runs to completion.
func (c *LocationCache) GetOrCompute(ctx context.Context, loc models.Location, params models.SimulationParameters) (*models.SimulationResult, error) {
	key := newCacheKey(loc, params)

	c.mu.Lock()
	if res, ok := c.results[key]; ok {
		c.hits++
		c.mu.Unlock()
		return res, nil
	}
	if err, ok := c.failed[key]; ok {
		c.hits++
		c.mu.Unlock()
		return nil, err
	}
	c.misses++
	c.mu.Unlock()

	res, err := c.client.Invoke(context.WithoutCancel(ctx), loc, params)

	c.mu.Lock()
	c.order = append(c.order, loc)
	if err != nil {
		c.failed[key] = err
		c.mu.Unlock()
		return nil, err
	}
	c.results[key] = res
	c.mu.Unlock()

	if c.onMiss != nil {
		c.onMiss(res)
	}
	return res, nil
}

// Contains reports whether (loc, params) was already simulated, successfully or not
func (c *LocationCache) Contains(loc models.Location, params models.SimulationParameters) bool {
	key := newCacheKey(loc, params)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.results[key]
	_, failed := c.failed[key]
	return ok || failed
}

// Len returns the number of cached results
func (c *LocationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Queried returns every location sent to the simulator, in call order
func (c *LocationCache) Queried() []models.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Location(nil), c.order...)
}

// Stats returns the hit and miss counts
func (c *LocationCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
