package cache

import (
	"math/rand"
	"strconv"
	"testing"
)

// benchmarkMix exercises a read/write mix against a warm cache through
// the direct (copying) API. String keys include strconv/concat costs.
func benchmarkMix(b *testing.B, readsPct int) {
	c := MustNew(Options[string, string]{Capacity: 100_000})

	// Preload half the capacity to get a realistic hit-rate.
	for i := 0; i < 50_000; i++ {
		c.Put("k:"+strconv.Itoa(i), "v")
	}

	b.ReportAllocs()
	b.ResetTimer()

	r := rand.New(rand.NewSource(1))
	keyMask := (1 << 16) - 1 // hot keyspace (power of two for fast &-mask)
	for i := 0; i < b.N; i++ {
		k := "k:" + strconv.Itoa(i&keyMask)
		if r.Intn(100) < readsPct {
			c.Get(k)
		} else {
			c.Put(k, "v")
		}
	}
}

func BenchmarkCache_90r10w(b *testing.B) { benchmarkMix(b, 90) }
func BenchmarkCache_50r50w(b *testing.B) { benchmarkMix(b, 50) }

// benchmarkScoped borrows batch references per scope with int keys,
// which removes strconv/alloc noise and exposes the protocol overhead.
func benchmarkScoped(b *testing.B, batch int) {
	c := MustNew(Options[int, int]{Capacity: 100_000})
	for i := 0; i < 50_000; i++ {
		c.Put(i, i)
	}

	b.ReportAllocs()
	b.ResetTimer()

	keyMask := (1 << 16) - 1
	sum := 0
	for i := 0; i < b.N; i++ {
		_ = c.Do(func(h *Handle[int, int], p *Perm) error {
			for j := 0; j < batch; j++ {
				if r, ok := h.Get((i*batch+j)&keyMask, p); ok {
					sum += r.Value()
				}
			}
			p.ReleaseAll()
			h.Put(i&keyMask, i, p)
			return nil
		})
	}
	_ = sum
}

func BenchmarkScope_Batch1(b *testing.B)  { benchmarkScoped(b, 1) }
func BenchmarkScope_Batch16(b *testing.B) { benchmarkScoped(b, 16) }
