package cache

// Fixed arena slots reserved for the list sentinels.
const (
	headSlot int32 = 0 // MRU side
	tailSlot int32 = 1 // LRU side
)

// node is one arena slot. It stores the key/value alongside list links
// expressed as arena indices, so relinking never touches Go pointers.
//
// A slot is never freed while the cache lives: on eviction its key and
// value are overwritten in place and the slot is relinked as MRU. The
// address of val is therefore stable for the cache's lifetime, which is
// what lets Ref and MutRef hand out *V without copying.
type node[K comparable, V any] struct {
	key K
	val V

	// Intrusive list links (arena indices): towards head is MRU, towards tail is LRU.
	prev int32
	next int32
}

// isSentinel reports whether slot i is one of the two fixed boundary slots.
func isSentinel(i int32) bool { return i == headSlot || i == tailSlot }
