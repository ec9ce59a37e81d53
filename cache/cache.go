package cache

import (
	"log/slog"
	"math"
)

// MaxCapacity is the largest accepted Options.Capacity. Slots are addressed
// by int32 and two of them are reserved for the list sentinels.
const MaxCapacity = math.MaxInt32 - 2

// Cache is a fixed-capacity, strict-LRU key/value store.
//
// Values live in an arena whose slots never move, so a scope can hand out
// *V into the cache (see Scope, Handle.Get, Handle.Peek) and keep several
// of them alive across further reads. Structural changes (Put) are gated
// by the scope's Perm: they are refused while any such reference is
// outstanding.
//
// A Cache is not safe for concurrent use; wrap it in Guarded for that.
type Cache[K comparable, V any] struct {
	idx  map[K]int32 // key -> arena slot
	list recency[K, V]
	cap  int

	// open is the tag of the scope currently running on this cache (0 = none).
	open tag

	opt Options[K, V]
	log *slog.Logger
}

// New constructs a cache with the provided Options.
// Defaults:
//   - nil Metrics -> NoopMetrics
//   - nil Logger  -> discard
//
// A Capacity outside [1, MaxCapacity] yields a *ConfigError wrapping
// ErrInvalidCapacity.
func New[K comparable, V any](opt Options[K, V]) (*Cache[K, V], error) {
	if opt.Capacity <= 0 || opt.Capacity > MaxCapacity {
		return nil, &ConfigError{Field: "Capacity", Value: opt.Capacity}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	log := opt.Logger
	if log == nil {
		log = newNopLogger()
	}
	return &Cache[K, V]{
		idx:  make(map[K]int32, opt.Capacity),
		list: newRecency[K, V](opt.Capacity),
		cap:  opt.Capacity,
		opt:  opt,
		log:  log,
	}, nil
}

// MustNew is like New but panics on an invalid configuration.
func MustNew[K comparable, V any](opt Options[K, V]) *Cache[K, V] {
	c, err := New(opt)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of resident entries.
func (c *Cache[K, V]) Len() int { return len(c.idx) }

// IsEmpty reports whether the cache holds no entries.
func (c *Cache[K, V]) IsEmpty() bool { return len(c.idx) == 0 }

// Cap returns the fixed capacity.
func (c *Cache[K, V]) Cap() int { return c.cap }

// Contains reports whether k is resident without promoting it.
func (c *Cache[K, V]) Contains(k K) bool {
	_, ok := c.idx[k]
	return ok
}

// Keys returns a snapshot of resident keys ordered MRU -> LRU.
func (c *Cache[K, V]) Keys() []K {
	out := make([]K, 0, len(c.idx))
	c.list.walk(func(i int32) bool {
		out = append(out, c.list.nodes[i].key)
		return true
	})
	return out
}

// Get returns a copy of the value for k and promotes it to MRU.
// It must not be called while a scope is open on c.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.direct("Get")
	i, ok := c.get(k)
	if !ok {
		var zero V
		return zero, false
	}
	return c.list.nodes[i].val, true
}

// Peek returns a copy of the value for k without touching recency.
// It must not be called while a scope is open on c.
func (c *Cache[K, V]) Peek(k K) (V, bool) {
	c.direct("Peek")
	i, ok := c.idx[k]
	if !ok {
		var zero V
		return zero, false
	}
	return c.list.nodes[i].val, true
}

// Put inserts or updates k -> v; see Handle.Put for the return contract.
// It must not be called while a scope is open on c.
func (c *Cache[K, V]) Put(k K, v V) (V, bool) {
	c.direct("Put")
	return c.put(k, v)
}

// -------------------- internals --------------------

// direct rejects unscoped value access while a scope owns the cache.
func (c *Cache[K, V]) direct(op string) {
	if c.open != 0 {
		c.violate(op, ViolationScopeActive)
	}
}

// get looks up k and promotes it on hit.
func (c *Cache[K, V]) get(k K) (int32, bool) {
	i, ok := c.idx[k]
	if !ok {
		c.opt.Metrics.Miss()
		return 0, false
	}
	c.list.touch(i)
	c.opt.Metrics.Hit()
	return i, true
}

// put implements the insert/update/evict algorithm.
//
// When the cache is full and k is new, the LRU slot is reused in place
// and the value it held is returned with ok == true. That value belongs to
// the evicted key, not to k.
func (c *Cache[K, V]) put(k K, v V) (old V, ok bool) {
	if i, hit := c.idx[k]; hit {
		n := &c.list.nodes[i]
		old, n.val = n.val, v
		c.list.touch(i)
		return old, true
	}

	if len(c.idx) < c.cap {
		i := c.list.alloc(k, v)
		c.list.attach(i)
		c.idx[k] = i
		c.opt.Metrics.Size(len(c.idx))
		return old, false
	}

	i, _ := c.list.back() // cap > 0, so a full cache always has a victim
	n := &c.list.nodes[i]
	delete(c.idx, n.key)
	oldKey := n.key
	old = n.val
	n.key, n.val = k, v
	c.list.touch(i)
	c.idx[k] = i

	c.opt.Metrics.Evict()
	c.opt.Metrics.Size(len(c.idx))
	c.log.Debug("cache: evicted", slog.Any("key", oldKey), slog.Int("slot", int(i)))
	if cb := c.opt.OnEvict; cb != nil {
		cb(oldKey, old)
	}
	return old, true
}

// violate reports and raises a protocol violation. Callers invoke it
// before mutating anything.
func (c *Cache[K, V]) violate(op string, kind ViolationKind) {
	c.opt.Metrics.Violation(kind)
	c.log.Warn("cache: capability violation", slog.String("op", op), slog.String("kind", kind.String()))
	panic(&ViolationError{Op: op, Kind: kind})
}
