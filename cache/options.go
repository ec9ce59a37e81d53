package cache

import (
	"context"
	"log/slog"
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	// Evict is called once per entry displaced by a capacity eviction.
	Evict()
	Size(entries int)
	// Violation is called right before a *ViolationError is raised.
	Violation(kind ViolationKind)
}

// Options configures the cache behavior. Zero values are safe except for
// Capacity; defaults are applied in New():
//   - nil Metrics => NoopMetrics
//   - nil Logger  => discard
type Options[K comparable, V any] struct {
	// Capacity is the entry count limit. Must be > 0.
	Capacity int

	// OnEvict is called with the displaced pair during Put, while the
	// scope's Perm is held exclusively. Calling back into the Handle from
	// here is a capability violation.
	OnEvict func(k K, v V)

	// Loader fetches a value on miss. Used only by Guarded.GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)

	Metrics Metrics
	Logger  *slog.Logger
}
