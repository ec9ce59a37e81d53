// Package cache provides a fixed-capacity, strict-LRU in-memory cache whose
// values can be borrowed by reference across several reads, while later
// inserts and evictions on the same cache stay memory-safe.
//
// Design
//
//   - Storage: values live in an arena of slots sized capacity+2 up front,
//     so a slot's address never changes. Two slots are sentinels bounding
//     an intrusive MRU<->LRU list linked by slot index. Lookups go through
//     a map[K]int32. All operations are O(1) expected.
//
//   - Eviction: when a new key arrives at capacity, the LRU slot is
//     overwritten in place and relinked as MRU. Slots are never freed.
//     Put returns the displaced value, which for a new key is the value of
//     the evicted entry.
//
//   - Scopes: Scope (or Cache.Do) mints a process-unique tag and hands a
//     Handle and a Perm bound to it to a function. Handle.Get borrows the
//     Perm shared and returns a Ref into the arena; Handle.Peek and
//     Handle.Put borrow it exclusively. Put is refused while any Ref or
//     MutRef is alive, because it may overwrite the slot behind it.
//
//   - Violations: misuse (mismatched Perm, Put while borrowed, use after
//     the scope ends, nested scope on the same cache) panics with a
//     *ViolationError before any state changes. Cache.Do turns those
//     panics into returned errors.
//
//   - Concurrency: a Cache is single-goroutine. Guarded adds a mutex and a
//     singleflight-coalesced GetOrLoad.
//
// Basic usage
//
//	c, err := cache.New(cache.Options[string, string]{Capacity: 2})
//	if err != nil {
//	    return err
//	}
//	out := cache.Scope(c, func(h *cache.Handle[string, string], p *cache.Perm) string {
//	    h.Put("a", "b", p)
//	    h.Put("b", "c", p)
//
//	    x, _ := h.Get("a", p)
//	    y, _ := h.Get("b", p)
//	    s := x.Value() + " " + y.Value()
//
//	    x.Release()
//	    y.Release()
//	    h.Put("c", "d", p) // legal again: nothing is borrowed
//	    return s
//	})
//
// Exporting metrics
//
//	m := prom.New(nil, "stablelru", "demo", nil) // implements Metrics
//	c, _ := cache.New(cache.Options[string, []byte]{Capacity: 10_000, Metrics: m})
package cache
