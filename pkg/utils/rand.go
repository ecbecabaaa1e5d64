package utils

import (
	"math/rand"
	"sync"
	"time"
)

// RandSource is a thread-safe random number generator
type RandSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandSource creates a new random source with the given seed.
// A zero seed draws one from the clock.
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// Sample returns k distinct indices drawn uniformly from [0, n).
// If k >= n every index is returned in random order.
func (r *RandSource) Sample(n, k int) []int {
	if n <= 0 || k <= 0 {
		return nil
	}
	r.mu.Lock()
	perm := r.rng.Perm(n)
	r.mu.Unlock()
	if k > n {
		k = n
	}
	return perm[:k]
}

// Categorical draws an index with probability proportional to weights.
// Non-positive weights are never drawn unless every weight is non-positive,
// in which case the draw is uniform.
func (r *RandSource) Categorical(weights []float64) int {
	if len(weights) == 0 {
		return -1
	}
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return r.Intn(len(weights))
	}

	u := r.Float64() * total
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		u -= w
		if u < 0 {
			return i
		}
	}
	return last
}

// ArgMax returns the index of the largest value, breaking ties uniformly at random
func (r *RandSource) ArgMax(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	best := values[0]
	ties := []int{0}
	for i := 1; i < len(values); i++ {
		switch {
		case values[i] > best:
			best = values[i]
			ties = ties[:0]
			ties = append(ties, i)
		case values[i] == best:
			ties = append(ties, i)
		}
	}
	if len(ties) == 1 {
		return ties[0]
	}
	return ties[r.Intn(len(ties))]
}
