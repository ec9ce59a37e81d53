package cache

import (
	"log/slog"
	"sync/atomic"
)

// tag identifies one scope invocation. Zero is never minted.
type tag uint64

// tagSeq is process-wide so tags stay unique across every cache instance.
var tagSeq atomic.Uint64

func mintTag() tag { return tag(tagSeq.Add(1)) }

// violator is the owning cache as seen by the non-generic Perm.
type violator interface {
	violate(op string, kind ViolationKind)
}

// Perm is the permission token of one scope.
//
// Reads (Handle.Get) borrow it shared: any number of Refs may be alive at
// once. Peek and Put borrow it exclusively: they are refused while any Ref
// or MutRef is alive, and nothing else may borrow it while they hold it.
// A Perm only authorizes the Handle minted by the same scope.
type Perm struct {
	tag    tag
	owner  violator
	closed bool

	shared int    // live Refs
	mut    bool   // a MutRef is live
	busy   bool   // a Put is in flight
	epoch  uint64 // bumped by ReleaseAll; older Refs become invalid
}

// Shared returns the number of live shared references.
func (p *Perm) Shared() int { return p.shared }

// ReleaseAll invalidates every Ref and MutRef obtained through p so far,
// which makes a subsequent Put legal again. Invalidated references raise
// a violation if they are read afterwards.
func (p *Perm) ReleaseAll() {
	if p.closed {
		p.owner.violate("Perm.ReleaseAll", ViolationScopeClosed)
	}
	if p.busy {
		p.owner.violate("Perm.ReleaseAll", ViolationExclusiveBorrow)
	}
	p.shared = 0
	p.mut = false
	p.epoch++
}

func (p *Perm) exclusive() bool { return p.mut || p.busy }

// Handle is bound to one cache and one scope tag. It is only valid inside
// the function passed to Scope or Do.
type Handle[K comparable, V any] struct {
	c      *Cache[K, V]
	tag    tag
	closed bool
}

// Scope opens an access scope on c: it mints a fresh tag, passes a Handle
// and a Perm bound to it to fn, and returns fn's result. Handle, Perm and
// every reference obtained through them are invalidated when fn returns
// or panics.
//
// Only one scope may be open on a cache at a time. Scopes over different
// caches may nest freely.
func Scope[K comparable, V, R any](c *Cache[K, V], fn func(h *Handle[K, V], p *Perm) R) R {
	h, p := c.openScope()
	defer c.closeScope(h, p)
	return fn(h, p)
}

// Do runs fn inside a scope like Scope. A capability violation raised
// inside fn is recovered and returned as a *ViolationError; fn's own error
// is returned unchanged. Mutations applied before the failure are kept.
func (c *Cache[K, V]) Do(fn func(h *Handle[K, V], p *Perm) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ve, ok := r.(*ViolationError)
			if !ok {
				panic(r)
			}
			err = ve
		}
	}()
	return Scope(c, fn)
}

func (c *Cache[K, V]) openScope() (*Handle[K, V], *Perm) {
	if c.open != 0 {
		c.violate("Scope", ViolationScopeActive)
	}
	t := mintTag()
	c.open = t
	c.log.Debug("cache: scope opened", slog.Uint64("tag", uint64(t)))
	return &Handle[K, V]{c: c, tag: t}, &Perm{tag: t, owner: c}
}

func (c *Cache[K, V]) closeScope(h *Handle[K, V], p *Perm) {
	h.closed = true
	p.closed = true
	c.open = 0
	c.log.Debug("cache: scope closed", slog.Uint64("tag", uint64(h.tag)), slog.Int("leaked_refs", p.shared))
}

// ---- Handle operations ----

// Len returns the number of resident entries. It needs no Perm and is
// legal while references are outstanding.
func (h *Handle[K, V]) Len() int {
	h.live("Len")
	return h.c.Len()
}

// IsEmpty reports whether the cache holds no entries.
func (h *Handle[K, V]) IsEmpty() bool {
	h.live("IsEmpty")
	return h.c.IsEmpty()
}

// Cap returns the fixed capacity.
func (h *Handle[K, V]) Cap() int {
	h.live("Cap")
	return h.c.Cap()
}

// Get looks up k under a shared borrow of p. On hit the entry is promoted
// to MRU and a Ref to the stored value is returned; the Ref keeps p
// shared-borrowed until it is released. On miss no borrow is taken.
func (h *Handle[K, V]) Get(k K, p *Perm) (*Ref[V], bool) {
	h.authorize("Get", p)
	if p.exclusive() {
		h.c.violate("Get", ViolationExclusiveBorrow)
	}
	i, ok := h.c.get(k)
	if !ok {
		return nil, false
	}
	p.shared++
	return &Ref[V]{v: &h.c.list.nodes[i].val, p: p, epoch: p.epoch}, true
}

// Peek looks up k under an exclusive borrow of p and returns a MutRef to
// the stored value without touching recency. The MutRef keeps p
// exclusively borrowed until it is released. On miss no borrow is taken.
func (h *Handle[K, V]) Peek(k K, p *Perm) (*MutRef[V], bool) {
	h.authorize("Peek", p)
	h.exclusive("Peek", p)
	i, ok := h.c.idx[k]
	if !ok {
		return nil, false
	}
	p.mut = true
	return &MutRef[V]{v: &h.c.list.nodes[i].val, p: p, epoch: p.epoch}, true
}

// Put inserts or updates k -> v under an exclusive borrow of p.
//
//   - k present: the value is replaced, k is promoted, the old value is returned.
//   - below capacity: a new entry is added as MRU; returns zero, false.
//   - at capacity: the LRU entry's slot is overwritten in place with k/v
//     and the evicted entry's value is returned with true.
//
// Put is refused while any Ref or MutRef from p is alive.
func (h *Handle[K, V]) Put(k K, v V, p *Perm) (V, bool) {
	h.authorize("Put", p)
	h.exclusive("Put", p)
	p.busy = true
	defer func() { p.busy = false }()
	return h.c.put(k, v)
}

// Close retires the handle. References already obtained remain valid
// until the scope returns, since nothing can restructure the cache anymore.
func (h *Handle[K, V]) Close() { h.closed = true }

func (h *Handle[K, V]) live(op string) {
	if h.closed {
		h.c.violate(op, ViolationHandleClosed)
	}
}

// authorize checks that p was minted by the same scope as h.
func (h *Handle[K, V]) authorize(op string, p *Perm) {
	h.live(op)
	if p == nil || p.tag != h.tag {
		h.c.violate(op, ViolationTagMismatch)
	}
	if p.closed {
		h.c.violate(op, ViolationScopeClosed)
	}
}

func (h *Handle[K, V]) exclusive(op string, p *Perm) {
	if p.exclusive() {
		h.c.violate(op, ViolationExclusiveBorrow)
	}
	if p.shared > 0 {
		h.c.violate(op, ViolationSharedBorrow)
	}
}
