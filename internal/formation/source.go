package formation

import (
	"context"
	"sync"
)

// Source loads formations by name
type Source interface {
	Load(ctx context.Context, name string) (*Formation, error)
}

// CSVSource loads formations from a directory tree of CSV exports
type CSVSource struct {
	Dir string
}

// Load reads the named formation from disk
func (s CSVSource) Load(_ context.Context, name string) (*Formation, error) {
	return LoadCSV(s.Dir, name)
}

// Registry memoizes formations loaded from a Source.
// Formations are read-only once loaded and are shared between runs.
type Registry struct {
	source Source

	mu     sync.Mutex
	loaded map[string]*Formation
}

// NewRegistry creates a registry backed by source
func NewRegistry(source Source) *Registry {
	return &Registry{source: source, loaded: make(map[string]*Formation)}
}

// Get returns the named formation, loading it on first use
func (r *Registry) Get(ctx context.Context, name string) (*Formation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.loaded[name]; ok {
		return f, nil
	}
	f, err := r.source.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	r.loaded[name] = f
	return f, nil
}
