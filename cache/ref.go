package cache

// Ref is a shared, zero-copy reference to a value stored in the cache.
// It stays valid until Release, Perm.ReleaseAll, or the end of its scope,
// whichever comes first. A Ref is read-only; mutation goes through
// Handle.Peek.
type Ref[V any] struct {
	v        *V
	p        *Perm
	epoch    uint64
	released bool
}

// Value returns the referenced value.
func (r *Ref[V]) Value() V {
	r.check("Ref.Value")
	return *r.v
}

// Release drops the shared borrow. It is idempotent and a no-op once the
// scope has returned.
func (r *Ref[V]) Release() {
	if r.released || r.p.closed || r.epoch != r.p.epoch {
		r.released = true
		return
	}
	r.released = true
	r.p.shared--
}

func (r *Ref[V]) check(op string) {
	if r.p.closed {
		r.p.owner.violate(op, ViolationScopeClosed)
	}
	if r.released || r.epoch != r.p.epoch {
		r.p.owner.violate(op, ViolationRefReleased)
	}
}

// MutRef is an exclusive, zero-copy reference to a value stored in the
// cache. While it is alive, the scope's Perm cannot be borrowed again.
type MutRef[V any] struct {
	v        *V
	p        *Perm
	epoch    uint64
	released bool
}

// Value returns the referenced value.
func (r *MutRef[V]) Value() V {
	r.check("MutRef.Value")
	return *r.v
}

// Set overwrites the stored value in place.
func (r *MutRef[V]) Set(v V) {
	r.check("MutRef.Set")
	*r.v = v
}

// Ptr returns the address of the stored value for in-place mutation.
// The pointer must not be used after the MutRef is released.
func (r *MutRef[V]) Ptr() *V {
	r.check("MutRef.Ptr")
	return r.v
}

// Release drops the exclusive borrow. It is idempotent.
func (r *MutRef[V]) Release() {
	if r.released || r.p.closed || r.epoch != r.p.epoch {
		r.released = true
		return
	}
	r.released = true
	r.p.mut = false
}

func (r *MutRef[V]) check(op string) {
	if r.p.closed {
		r.p.owner.violate(op, ViolationScopeClosed)
	}
	if r.released || r.epoch != r.p.epoch {
		r.p.owner.violate(op, ViolationRefReleased)
	}
}
