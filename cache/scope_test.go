package cache

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type strHandle = Handle[string, string]

// requireViolation runs fn and asserts it panics with a *ViolationError of kind.
func requireViolation(t *testing.T, kind ViolationKind, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		ve, ok := r.(*ViolationError)
		require.Truef(t, ok, "want *ViolationError panic, got %v", r)
		require.Equal(t, kind, ve.Kind, ve.Error())
		require.ErrorIs(t, ve, ErrCapabilityViolation)
	}()
	fn()
}

func filled(t *testing.T, capacity int, kv ...string) *Cache[string, string] {
	t.Helper()
	c, err := New(Options[string, string]{Capacity: capacity})
	require.NoError(t, err)
	for i := 0; i+1 < len(kv); i += 2 {
		c.Put(kv[i], kv[i+1])
	}
	return c
}

func TestScope_SharedRefsCoexist(t *testing.T) {
	t.Parallel()

	c := filled(t, 3)
	out := Scope(c, func(h *strHandle, p *Perm) string {
		h.Put("a", "b", p)
		h.Put("b", "c", p)
		h.Put("c", "d", p)

		x, _ := h.Get("a", p)
		y, _ := h.Get("b", p)
		z, _ := h.Get("c", p)
		assert.Equal(t, 3, p.Shared())
		return strings.Join([]string{x.Value(), y.Value(), z.Value()}, " ")
	})
	require.Equal(t, "b c d", out)
}

func TestScope_RefsAreZeroCopy(t *testing.T) {
	t.Parallel()

	c := filled(t, 1, "a", "x")
	var first *string
	Scope(c, func(h *strHandle, p *Perm) struct{} {
		r1, _ := h.Get("a", p)
		r2, _ := h.Get("a", p)
		require.Same(t, r1.v, r2.v)
		first = r1.v
		p.ReleaseAll()

		// eviction overwrites the same slot in place
		old, ok := h.Put("b", "y", p)
		require.True(t, ok)
		require.Equal(t, "x", old)
		r3, _ := h.Get("b", p)
		require.Same(t, first, r3.v)
		return struct{}{}
	})
}

func TestScope_PutWhileHoldingRef(t *testing.T) {
	t.Parallel()

	m := &countingMetrics{}
	c := MustNew(Options[string, string]{Capacity: 3, Metrics: m})
	c.Put("a", "b")
	c.Put("b", "c")

	err := c.Do(func(h *strHandle, p *Perm) error {
		x, _ := h.Get("a", p)
		assert.Equal(t, "b", x.Value())
		_, ok := h.Get("c", p)
		require.False(t, ok)

		h.Put("c", "d", p)
		t.Fatal("Put must be rejected while x is borrowed")
		return nil
	})

	var ve *ViolationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ViolationSharedBorrow, ve.Kind)
	assert.Equal(t, "Put", ve.Op)
	assert.Equal(t, 1, m.violations[ViolationSharedBorrow])

	// nothing was inserted
	assert.False(t, c.Contains("c"))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}

func TestScope_ReleaseThenPut(t *testing.T) {
	t.Parallel()

	c := filled(t, 2, "a", "red", "b", "yellow")
	Scope(c, func(h *strHandle, p *Perm) struct{} {
		x, _ := h.Get("a", p)
		assert.Equal(t, "red", x.Value())
		x.Release()
		x.Release() // idempotent
		require.Zero(t, p.Shared())

		old, ok := h.Put("c", "green", p)
		require.True(t, ok)
		assert.Equal(t, "yellow", old) // b was LRU after reading a

		requireViolation(t, ViolationRefReleased, func() { x.Value() })
		return struct{}{}
	})
}

func TestScope_ReleaseAll(t *testing.T) {
	t.Parallel()

	c := filled(t, 2, "a", "1", "b", "2")
	Scope(c, func(h *strHandle, p *Perm) struct{} {
		x, _ := h.Get("a", p)
		m, _ := h.Get("b", p)
		p.ReleaseAll()
		require.Zero(t, p.Shared())

		h.Put("a", "10", p)
		requireViolation(t, ViolationRefReleased, func() { x.Value() })
		requireViolation(t, ViolationRefReleased, func() { m.Value() })
		m.Release() // stale release must not underflow the counter
		require.Zero(t, p.Shared())
		return struct{}{}
	})
}

func TestScope_ReleaseAllInvalidatesMutRef(t *testing.T) {
	t.Parallel()

	c := filled(t, 2, "a", "1", "b", "2")
	Scope(c, func(h *strHandle, p *Perm) struct{} {
		stale, ok := h.Peek("a", p)
		require.True(t, ok)
		p.ReleaseAll()

		requireViolation(t, ViolationRefReleased, func() { stale.Set("x") })
		requireViolation(t, ViolationRefReleased, func() { stale.Ptr() })
		requireViolation(t, ViolationRefReleased, func() { stale.Value() })

		// the Perm is free again once the MutRef was invalidated
		fresh, ok := h.Peek("b", p)
		require.True(t, ok)

		// a stale Release must not drop the exclusive borrow held by fresh
		stale.Release()
		requireViolation(t, ViolationExclusiveBorrow, func() { h.Get("a", p) })
		requireViolation(t, ViolationExclusiveBorrow, func() { h.Put("c", "3", p) })

		fresh.Set("20")
		fresh.Release()
		g, ok := h.Get("b", p)
		require.True(t, ok)
		assert.Equal(t, "20", g.Value())
		return struct{}{}
	})
	assert.Equal(t, "1", mustPeek(t, c, "a"))
}

// Epochs do not wrap at 32 bits, so a Ref from epoch 0 stays stale.
func TestScope_EpochDoesNotWrap(t *testing.T) {
	t.Parallel()

	c := filled(t, 1, "a", "1")
	Scope(c, func(h *strHandle, p *Perm) struct{} {
		r, ok := h.Get("a", p)
		require.True(t, ok)
		p.epoch = math.MaxUint32
		p.ReleaseAll()
		require.NotZero(t, p.epoch)
		requireViolation(t, ViolationRefReleased, func() { r.Value() })
		return struct{}{}
	})
}

func mustPeek(t *testing.T, c *Cache[string, string], k string) string {
	t.Helper()
	v, ok := c.Peek(k)
	require.True(t, ok)
	return v
}

func TestScope_PeekIsExclusive(t *testing.T) {
	t.Parallel()

	c := filled(t, 3)
	Scope(c, func(h *strHandle, p *Perm) struct{} {
		h.Put("a", "b", p)
		h.Put("z", "y", p)

		r, ok := h.Peek("a", p)
		require.True(t, ok)
		// len/cap need no permission and stay legal while a MutRef is out
		assert.Equal(t, 2, h.Len())
		assert.Equal(t, 3, h.Cap())
		assert.False(t, h.IsEmpty())

		requireViolation(t, ViolationExclusiveBorrow, func() { h.Get("a", p) })
		requireViolation(t, ViolationExclusiveBorrow, func() { h.Peek("z", p) })
		requireViolation(t, ViolationExclusiveBorrow, func() { h.Put("q", "w", p) })

		r.Set("c")
		*r.Ptr() += "!"
		assert.Equal(t, "c!", r.Value())
		r.Release()

		g, _ := h.Get("a", p)
		assert.Equal(t, "c!", g.Value())
		requireViolation(t, ViolationSharedBorrow, func() { h.Peek("a", p) })
		g.Release()

		_, ok = h.Peek("missing", p)
		require.False(t, ok)
		h.Put("q", "w", p) // a miss takes no borrow
		return struct{}{}
	})
}

func TestScope_PeekDoesNotPromote(t *testing.T) {
	t.Parallel()

	c := filled(t, 2, "apple", "red", "banana", "yellow")
	Scope(c, func(h *strHandle, p *Perm) struct{} {
		r, _ := h.Peek("apple", p)
		r.Release()
		old, _ := h.Put("pear", "green", p)
		assert.Equal(t, "red", old)

		_, ok := h.Peek("apple", p)
		assert.False(t, ok)
		return struct{}{}
	})
}

func TestScope_TagIsolation(t *testing.T) {
	t.Parallel()

	c1 := filled(t, 3, "a", "b", "b", "c", "c", "d")
	c2 := filled(t, 3)

	// inner perm against outer handle
	Scope(c1, func(h1 *strHandle, p1 *Perm) struct{} {
		Scope(c2, func(_ *strHandle, p2 *Perm) struct{} {
			x, _ := h1.Get("a", p1)
			assert.Equal(t, "b", x.Value())
			x.Release()
			requireViolation(t, ViolationTagMismatch, func() { h1.Put("a", "", p2) })
			requireViolation(t, ViolationTagMismatch, func() { h1.Get("a", p2) })
			return struct{}{}
		})
		return struct{}{}
	})

	// outer perm against inner handle
	Scope(c1, func(_ *strHandle, p1 *Perm) struct{} {
		Scope(c2, func(h2 *strHandle, _ *Perm) struct{} {
			requireViolation(t, ViolationTagMismatch, func() { h2.Put("a", "", p1) })
			requireViolation(t, ViolationTagMismatch, func() { h2.Peek("a", nil) })
			return struct{}{}
		})
		return struct{}{}
	})

	v, _ := c1.Get("a")
	assert.Equal(t, "b", v)
	assert.True(t, c2.IsEmpty())
}

func TestScope_TagsAreUnique(t *testing.T) {
	t.Parallel()

	c := filled(t, 1)
	seen := map[tag]bool{}
	for i := 0; i < 10; i++ {
		Scope(c, func(h *strHandle, p *Perm) struct{} {
			require.Equal(t, h.tag, p.tag)
			require.False(t, seen[h.tag])
			seen[h.tag] = true
			return struct{}{}
		})
	}
}

func TestScope_ClosedAfterReturn(t *testing.T) {
	t.Parallel()

	c := filled(t, 2, "a", "1")
	var (
		eh *strHandle
		ep *Perm
		er *Ref[string]
	)
	Scope(c, func(h *strHandle, p *Perm) struct{} {
		eh, ep = h, p
		er, _ = h.Get("a", p)
		return struct{}{}
	})

	requireViolation(t, ViolationScopeClosed, func() { er.Value() })
	requireViolation(t, ViolationHandleClosed, func() { eh.Len() })
	requireViolation(t, ViolationHandleClosed, func() { eh.Put("b", "2", ep) })
	requireViolation(t, ViolationScopeClosed, func() { ep.ReleaseAll() })
	er.Release() // no-op after close

	// the cache itself is free again
	_, ok := c.Put("b", "2")
	assert.False(t, ok)
}

func TestScope_HandleCloseKeepsRefs(t *testing.T) {
	t.Parallel()

	c := filled(t, 3, "a", "b", "b", "c", "c", "d")
	out := Scope(c, func(h *strHandle, p *Perm) string {
		x, _ := h.Get("a", p)
		y, _ := h.Get("b", p)
		z, _ := h.Get("c", p)

		h.Close()
		requireViolation(t, ViolationHandleClosed, func() { h.Get("a", p) })

		return strings.Join([]string{x.Value(), y.Value(), z.Value()}, " ")
	})
	require.Equal(t, "b c d", out)
}

func TestScope_OneScopePerCache(t *testing.T) {
	t.Parallel()

	c := filled(t, 2, "a", "1")
	Scope(c, func(h *strHandle, p *Perm) struct{} {
		requireViolation(t, ViolationScopeActive, func() {
			Scope(c, func(*strHandle, *Perm) struct{} { return struct{}{} })
		})
		requireViolation(t, ViolationScopeActive, func() { c.Get("a") })
		requireViolation(t, ViolationScopeActive, func() { c.Peek("a") })
		requireViolation(t, ViolationScopeActive, func() { c.Put("b", "2") })

		// read-only bookkeeping stays available
		assert.Equal(t, 1, c.Len())
		assert.True(t, c.Contains("a"))
		assert.Equal(t, []string{"a"}, c.Keys())

		// the outer scope is still intact after the rejected nested one
		h.Put("b", "2", p)
		return struct{}{}
	})
	assert.Equal(t, 2, c.Len())
}

func TestScope_OrderingScenario(t *testing.T) {
	t.Parallel()

	c := MustNew(Options[string, int]{Capacity: 2})
	Scope(c, func(h *Handle[string, int], p *Perm) struct{} {
		h.Put("a", 1, p)
		h.Put("b", 2, p)
		r, _ := h.Get("a", p)
		r.Release()
		old, ok := h.Put("c", 3, p)
		assert.True(t, ok)
		assert.Equal(t, 2, old) // b was evicted

		_, ok = h.Get("b", p)
		assert.False(t, ok)
		a, _ := h.Get("a", p)
		cc, _ := h.Get("c", p)
		assert.Equal(t, 1, a.Value())
		assert.Equal(t, 3, cc.Value())
		return struct{}{}
	})
}

func TestDo_KeepsPartialEffects(t *testing.T) {
	t.Parallel()

	c := filled(t, 4)
	errBoom := errors.New("boom")

	err := c.Do(func(h *strHandle, p *Perm) error {
		h.Put("a", "1", p)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.True(t, c.Contains("a"))

	err = c.Do(func(h *strHandle, p *Perm) error {
		h.Put("b", "2", p)
		r, _ := h.Get("b", p)
		assert.Equal(t, "2", r.Value())
		h.Put("c", "3", p)
		return nil
	})
	require.ErrorIs(t, err, ErrCapabilityViolation)
	assert.True(t, c.Contains("b"))
	assert.False(t, c.Contains("c"))
}

func TestDo_OtherPanicsPropagate(t *testing.T) {
	t.Parallel()

	c := filled(t, 1)
	require.PanicsWithValue(t, "kaboom", func() {
		_ = c.Do(func(*strHandle, *Perm) error { panic("kaboom") })
	})
	// scope was closed on the way out
	_, ok := c.Put("a", "1")
	assert.False(t, ok)
}

func TestScope_OnEvictCannotReenter(t *testing.T) {
	t.Parallel()

	var (
		h *strHandle
		p *Perm
	)
	c := MustNew(Options[string, string]{
		Capacity: 1,
		OnEvict: func(k, _ string) {
			h.Get(k, p)
		},
	})
	c.Put("a", "1")

	err := c.Do(func(hh *strHandle, pp *Perm) error {
		h, p = hh, pp
		h.Put("b", "2", p)
		return nil
	})
	var ve *ViolationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ViolationExclusiveBorrow, ve.Kind)

	// the eviction itself completed consistently
	assert.Equal(t, []string{"b"}, c.Keys())
}
