package cache

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/cachepool/internal/invariants"
)

// weakState is the side record behind weak handles. It is allocated apart
// from the entry so that it can outlive it.
//
// While refs > 0 the low bit of the entry's refCount is set.
type weakState struct {
	refs atomic.Uint64

	// mu guards entry. When taken together with the pool's lru mutex or a
	// shard mutex, mu must be locked first.
	mu    sync.Mutex
	entry *entryBase // nil once the entry is destroyed

	freed atomic.Bool
}

func (ws *weakState) free() {
	invariants.Check(!ws.freed.Load(), "weak state freed twice")
	ws.freed.Store(true)
}

// acquireWeak returns the entry's weak state with one more weak reference,
// allocating it on first use. The caller must hold a pin. Returns nil when
// the cache has no pool.
func (e *entryBase) acquireWeak() *weakState {
	ws := e.weak.Load()
	if ws == nil {
		if e.cache.pool == nil {
			return nil
		}
		fresh := &weakState{entry: e}
		fresh.refs.Store(1)
		if e.weak.CompareAndSwap(nil, fresh) {
			n := e.refCount.Add(1)
			traceRefcount("CacheEntry:weak", e, uint64(n))
			return fresh
		}
		// Lost the race; another goroutine installed the state.
		ws = e.weak.Load()
	}
	for old := ws.refs.Load(); old > 0; old = ws.refs.Load() {
		if ws.refs.CompareAndSwap(old, old+1) {
			return ws
		}
	}
	// 0 -> 1 must not overlap a last release that still has to clear the
	// weak bit; that release holds mu until it has.
	ws.mu.Lock()
	if ws.refs.Add(1) == 1 {
		n := e.refCount.Add(1)
		traceRefcount("CacheEntry:weak", e, uint64(n))
	}
	ws.mu.Unlock()
	return ws
}

// release drops a weak reference. Clearing the weak bit may be what brings
// the entry's count to 0, so the last weak release runs the same cascade as
// the last pin release, with amount 1 and threshold 0.
func (ws *weakState) release() {
	n, wmu := decrementWithLock[uint64](&ws.refs, func() *sync.Mutex { return &ws.mu }, 1, 0)
	traceRefcount("CacheEntryWeakState:decrement", ws, n)
	if wmu == nil {
		return
	}
	e := ws.entry
	if e == nil {
		// The entry is gone; nobody else references the state.
		wmu.Unlock()
		ws.free()
		return
	}

	c := e.cache
	p := c.pool
	if !p.hasLRU() {
		var s *shard
		rc, smu := decrementWithLock[uint32](&e.refCount, func() *sync.Mutex {
			s = c.shardFor(e.key)
			return &s.mu
		}, 1, 0)
		traceRefcount("CacheEntry:decrement", e, uint64(rc))
		wmu.Unlock()
		if smu == nil {
			return
		}
		s.erase(e)
		destroy := false
		if len(s.entries) == 0 {
			destroy = c.decrementRef(nonEmptyShardIncrement).shouldDelete()
		}
		smu.Unlock()
		e.destroy()
		if destroy {
			destroyCache(p, c)
		}
		return
	}

	rc, lmu := decrementWithLock[uint32](&e.refCount, p.lruLock, 1, 0)
	traceRefcount("CacheEntry:decrement", e, uint64(rc))
	wmu.Unlock()
	if lmu == nil {
		return
	}
	// No pins and no weak handles left.
	p.addToEvictionQueue(e)
	p.maybeEvictEntries()
	lmu.Unlock()
}

// WeakEntry is a weak handle to an entry: it neither pins the entry nor
// keeps it out of the eviction queue, but an entry is never destroyed by
// eviction while a weak handle to it exists. Expired reports when the entry
// was destroyed by other means (its cache was torn down).
type WeakEntry[V any] struct {
	ws  *weakState
	key string
}

// Key returns the key of the referenced entry.
func (w *WeakEntry[V]) Key() string { return w.key }

// Acquire adds a weak reference. The caller must already hold one.
func (w *WeakEntry[V]) Acquire() *WeakEntry[V] {
	invariants.Check(w.ws.refs.Load() > 0, "acquire on released weak handle %q", w.key)
	w.ws.refs.Add(1)
	return &WeakEntry[V]{ws: w.ws, key: w.key}
}

// Release drops the weak reference.
func (w *WeakEntry[V]) Release() { w.ws.release() }

// Expired reports whether the entry has been destroyed.
func (w *WeakEntry[V]) Expired() bool {
	w.ws.mu.Lock()
	defer w.ws.mu.Unlock()
	return w.ws.entry == nil
}
