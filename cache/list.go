package cache

// recency is an intrusive doubly linked list laid over the cache arena.
// Slots 0 and 1 are sentinels that never hold data; live nodes sit
// between them ordered MRU (next to head) to LRU (next to tail).
//
// The list does not own the arena; the cache owns both and only ever
// appends to it, so indices stay valid for the cache's lifetime.
type recency[K comparable, V any] struct {
	nodes []node[K, V]
}

// newRecency allocates an arena able to hold capacity live nodes plus the
// two sentinels without ever growing, and links head <-> tail.
func newRecency[K comparable, V any](capacity int) recency[K, V] {
	nodes := make([]node[K, V], 2, capacity+2)
	nodes[headSlot] = node[K, V]{prev: -1, next: tailSlot}
	nodes[tailSlot] = node[K, V]{prev: headSlot, next: -1}
	return recency[K, V]{nodes: nodes}
}

// alloc appends a fresh slot holding k/v and returns its index.
// The caller guarantees len(nodes) < cap(nodes).
func (l *recency[K, V]) alloc(k K, v V) int32 {
	l.nodes = append(l.nodes, node[K, V]{key: k, val: v, prev: -1, next: -1})
	return int32(len(l.nodes) - 1)
}

// attach inserts slot i right after the head sentinel (becomes MRU).
func (l *recency[K, V]) attach(i int32) {
	n := &l.nodes[i]
	h := &l.nodes[headSlot]
	n.prev = headSlot
	n.next = h.next
	l.nodes[h.next].prev = i
	h.next = i
}

// detach unlinks slot i, leaving its neighbours linked to each other.
func (l *recency[K, V]) detach(i int32) {
	if isSentinel(i) {
		panic("cache: detach of sentinel slot")
	}
	n := &l.nodes[i]
	l.nodes[n.prev].next = n.next
	l.nodes[n.next].prev = n.prev
	n.prev, n.next = -1, -1
}

// touch promotes slot i to MRU in O(1).
func (l *recency[K, V]) touch(i int32) {
	if l.nodes[headSlot].next == i {
		return
	}
	l.detach(i)
	l.attach(i)
}

// back returns the current LRU slot, or false when the list is empty.
func (l *recency[K, V]) back() (int32, bool) {
	i := l.nodes[tailSlot].prev
	if i == headSlot {
		return 0, false
	}
	return i, true
}

// walk visits live slots from MRU to LRU until fn returns false.
func (l *recency[K, V]) walk(fn func(i int32) bool) {
	for i := l.nodes[headSlot].next; i != tailSlot; i = l.nodes[i].next {
		if !fn(i) {
			return
		}
	}
}
