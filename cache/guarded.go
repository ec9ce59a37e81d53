package cache

import (
	"context"
	"sync"

	"github.com/IvanBrykalov/stablelru/internal/singleflight"
)

// Guarded serializes access to a Cache with a mutex so it can be shared by
// multiple goroutines. Scopes run entirely under the lock; the copying
// accessors lock per call. A call from another goroutine while a scope is
// open waits for it instead of raising ViolationScopeActive.
//
// Like sync.Mutex, Guarded is not reentrant: calling any of its methods
// from inside the fn passed to Do deadlocks. Use the Handle there.
type Guarded[K comparable, V any] struct {
	mu sync.Mutex
	c  *Cache[K, V]

	loader func(ctx context.Context, k K) (V, error)
	// singleflight group for coalescing concurrent loads in GetOrLoad.
	sf singleflight.Group[K, V]
}

// NewGuarded builds a Cache from opt and wraps it.
func NewGuarded[K comparable, V any](opt Options[K, V]) (*Guarded[K, V], error) {
	c, err := New(opt)
	if err != nil {
		return nil, err
	}
	return &Guarded[K, V]{c: c, loader: opt.Loader}, nil
}

// Do runs fn as a scope on the underlying cache while holding the lock.
// References obtained inside fn must not escape it, and fn must not call
// back into g.
func (g *Guarded[K, V]) Do(fn func(h *Handle[K, V], p *Perm) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.Do(fn)
}

// Get returns a copy of the value for k and promotes it.
func (g *Guarded[K, V]) Get(k K) (V, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.Get(k)
}

// Peek returns a copy of the value for k without promotion.
func (g *Guarded[K, V]) Peek(k K) (V, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.Peek(k)
}

// Put inserts or updates k -> v with the same return contract as Handle.Put.
func (g *Guarded[K, V]) Put(k K, v V) (V, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.Put(k, v)
}

// Len returns the number of resident entries.
func (g *Guarded[K, V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.Len()
}

// Cap returns the fixed capacity.
func (g *Guarded[K, V]) Cap() int { return g.c.Cap() }

// GetOrLoad returns the value for k; on miss it loads via Options.Loader,
// coalescing concurrent loads for the same key (singleflight), and stores
// the result. If no Loader is configured, returns ErrNoLoader.
func (g *Guarded[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	// fast path
	if v, ok := g.Get(k); ok {
		return v, nil
	}
	if g.loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	v, _, err := g.sf.Do(ctx, k, func() (V, error) {
		// double-check after flight join
		if v, ok := g.Get(k); ok {
			return v, nil
		}
		v, err := g.loader(ctx, k)
		if err == nil {
			g.Put(k, v)
		}
		return v, err
	})
	return v, err
}
