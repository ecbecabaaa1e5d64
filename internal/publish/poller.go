package publish

import (
	"context"
	"time"
)

// Poller forwards a channel's value only when it differs from the last one forwarded.
// A Poller belongs to a single reader and is not safe for concurrent use.
type Poller[T any] struct {
	read  func() *T
	equal func(a, b *T) bool
	last  *T
}

// NewPoller creates a poller over read. equal must treat two nils as equal.
func NewPoller[T any](read func() *T, equal func(a, b *T) bool) *Poller[T] {
	return &Poller[T]{read: read, equal: equal}
}

// Poll returns the current value and whether it changed since the last
// forwarded one. A cleared channel reports (nil, true) once.
func (p *Poller[T]) Poll() (*T, bool) {
	cur := p.read()
	if p.equal(p.last, cur) {
		return nil, false
	}
	p.last = cur
	return cur, true
}

// Run polls every interval until ctx is done, passing changes to emit.
// It returns ctx's error, or the first error from emit.
func (p *Poller[T]) Run(ctx context.Context, interval time.Duration, emit func(*T) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if v, changed := p.Poll(); changed {
			if err := emit(v); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
