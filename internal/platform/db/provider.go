package db

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Closer is satisfied by *pgxpool.Pool.
type Closer interface {
	Close()
}

// Provider lazily opens a single shared connection handle. Get may be called
// concurrently and any number of times; the first successful open wins and
// every caller receives the same handle. A failed open is not cached.
type Provider[T Closer] struct {
	open  func(context.Context) (T, error)
	group singleflight.Group

	mu     sync.RWMutex
	handle T
	ready  bool
}

// NewProvider wraps an open function, typically a closure over New and a DSN.
func NewProvider[T Closer](open func(context.Context) (T, error)) *Provider[T] {
	return &Provider[T]{open: open}
}

// Get returns the shared handle, opening it on first use.
func (p *Provider[T]) Get(ctx context.Context) (T, error) {
	if h, ok := p.current(); ok {
		return h, nil
	}
	v, err, _ := p.group.Do("open", func() (any, error) {
		if h, ok := p.current(); ok {
			return h, nil
		}
		h, err := p.open(ctx)
		if err != nil {
			return h, err
		}
		p.mu.Lock()
		p.handle, p.ready = h, true
		p.mu.Unlock()
		return h, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	h, ok := v.(T)
	if !ok {
		var zero T
		return zero, errors.New("platform/db: provider returned unexpected handle")
	}
	return h, nil
}

// Close releases the handle if one was opened. Get reopens afterwards.
func (p *Provider[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		p.handle.Close()
		var zero T
		p.handle, p.ready = zero, false
	}
}

func (p *Provider[T]) current() (T, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handle, p.ready
}
