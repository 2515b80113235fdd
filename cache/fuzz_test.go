package cache

import (
	"strings"
	"testing"
)

// Fuzz entry lookup with arbitrary keys and sizes.
// The same key must map to the same entry while pinned, and the pool total
// must match the resident entries once everything is unpinned.
func FuzzCache_GetEntry(f *testing.F) {
	f.Add("", "", int64(0))
	f.Add("a", "b", int64(1))
	f.Add("αβγ", "αβγ", int64(300))
	f.Add("emoji🙂", "x", int64(999))
	f.Add(strings.Repeat("k", 1024), "k", int64(50))

	f.Fuzz(func(t *testing.T, k1, k2 string, size int64) {
		if size < 0 {
			size = -size
		}
		size %= 2_000

		p := NewPool(PoolOptions{Limits: Limits{TotalBytesLimit: 1_000}})
		t.Cleanup(p.ReleaseStrong)
		r := &recorder{}
		c := newSizedCache(t, p, "fuzz", r, size)
		t.Cleanup(c.Release)

		e1 := c.GetEntry(k1)
		e2 := c.GetEntry(k2)
		if (k1 == k2) != (e1 == e2) {
			t.Fatalf("keys %q, %q: same entry = %v", k1, k2, e1 == e2)
		}
		if e1.Key() != k1 || e2.Key() != k2 {
			t.Fatalf("key mismatch: %q/%q vs %q/%q", e1.Key(), e2.Key(), k1, k2)
		}
		e1.Release()
		e2.Release()

		if got, want := p.Stats().TotalBytes, residentBytes(&c.cacheBase); got != want {
			t.Fatalf("total bytes %d, resident %d", got, want)
		}
		if p.Stats().TotalBytes > 1_000 {
			t.Fatalf("over budget after unpin: %d", p.Stats().TotalBytes)
		}
	})
}
