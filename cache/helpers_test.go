package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder tracks destructor calls of one cache.
type recorder struct {
	mu       sync.Mutex
	released []string
	closed   int
}

func (r *recorder) onRelease(key string, _ *int64) {
	r.mu.Lock()
	r.released = append(r.released, key)
	r.mu.Unlock()
}

func (r *recorder) onClose() {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
}

func (r *recorder) releasedKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released...)
}

func (r *recorder) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// sizedOptions stores the entry size in the payload itself: Init sets it to
// initial, and writers change it under Lock with MarkSizeChanged.
func sizedOptions(r *recorder, initial int64) Options[int64] {
	return Options[int64]{
		Init:      func(_ string, v *int64) { *v = initial },
		Size:      func(_ string, v *int64) int64 { return *v },
		OnRelease: r.onRelease,
		OnClose:   r.onClose,
	}
}

func newSizedCache(t testing.TB, p *Pool, id string, r *recorder, initial int64) *Cache[int64] {
	t.Helper()
	c, err := GetCache(p, id, func() (*Cache[int64], error) {
		return New(sizedOptions(r, initial)), nil
	})
	require.NoError(t, err)
	return c
}

// queued reports whether e is currently linked into p's eviction queue.
func queued(p *Pool, e *entryBase) bool {
	p.lruMu.Lock()
	defer p.lruMu.Unlock()
	for n := p.evictionQueue.next; n != &p.evictionQueue; n = n.next {
		if n.entry == e {
			return true
		}
	}
	return false
}

// queueKeys lists the keys in p's eviction queue from head to tail.
func queueKeys(p *Pool) []string {
	p.lruMu.Lock()
	defer p.lruMu.Unlock()
	var keys []string
	for n := p.evictionQueue.next; n != &p.evictionQueue; n = n.next {
		keys = append(keys, n.entry.key)
	}
	return keys
}

// residentBytes sums the recorded sizes of every entry still in c.
func residentBytes(c *cacheBase) int64 {
	var total int64
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for _, e := range s.entries {
			total += e.numBytes.Load()
		}
		s.mu.Unlock()
	}
	return total
}
