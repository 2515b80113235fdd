package cache

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/IvanBrykalov/cachepool/internal/invariants"
)

// sizeChanged is set in entryBase.flags when the payload size may differ
// from the recorded numBytes.
const sizeChanged uint8 = 1

// entryImpl is implemented by Entry[V] for the untyped core.
type entryImpl interface {
	doInitialize()
	doSizeInBytes() int64
	doRelease()
}

// entryBase is the type-independent part of an entry.
type entryBase struct {
	lru   lruNode
	cache *cacheBase
	key   string

	// refCount is 2 per pin plus 1 while the weak state has outstanding
	// weak handles. The entry is in the pool's eviction queue only while
	// refCount <= 1, and is destroyed when it reaches 0 (or with its cache).
	refCount atomic.Uint32

	// numBytes is the size last reported to the pool.
	numBytes atomic.Int64

	// weak is allocated on the first weak handle and kept until the entry
	// is destroyed.
	weak atomic.Pointer[weakState]

	once sync.Once

	// mu guards flags and the payload of Entry[V].
	mu    sync.Mutex
	flags uint8

	released atomic.Bool
	self     entryImpl
}

func (e *entryBase) init(c *cacheBase, key string, self entryImpl) {
	e.cache = c
	e.key = key
	e.self = self
	e.refCount.Store(2)
	e.lru.init()
	e.lru.entry = e
}

// release drops one pin.
func (e *entryBase) release() {
	invariants.Check(!e.released.Load(), "release of destroyed entry %q", e.key)
	c := e.cache
	p := c.pool
	switch {
	case p == nil:
		n := e.refCount.Add(^uint32(1))
		traceRefcount("CacheEntry:decrement", e, uint64(n))
		if n > 1 {
			return
		}
		e.destroy()

	case !p.hasLRU():
		var s *shard
		n, mu := decrementWithLock[uint32](&e.refCount, func() *sync.Mutex {
			s = c.shardFor(e.key)
			return &s.mu
		}, 2, 1)
		traceRefcount("CacheEntry:decrement", e, uint64(n))
		if mu == nil {
			return
		}
		if n != 0 {
			// Only the weak bit is left; the weak release finishes it.
			mu.Unlock()
			break
		}
		s.erase(e)
		if len(s.entries) == 0 {
			// No destroy check: the pin being released still holds a
			// strong reference to c, dropped below.
			c.refCount.Add(^(nonEmptyShardIncrement - 1))
		}
		mu.Unlock()
		e.destroy()

	default:
		n, mu := decrementWithLock[uint32](&e.refCount, p.lruLock, 2, 1)
		traceRefcount("CacheEntry:decrement", e, uint64(n))
		if mu == nil {
			return
		}
		// Unpinned: queue it even if a weak handle keeps the low bit set.
		// The sweep skips such an entry, and the last weak release queues
		// it again.
		p.addToEvictionQueue(e)
		p.maybeEvictEntries()
		mu.Unlock()
	}
	// e may be gone at this point.
	c.release()
}

// destroy detaches the weak state and runs the payload destructor. No
// cache or pool lock may be held.
func (e *entryBase) destroy() {
	invariants.Check(!e.released.Load(), "entry %q destroyed twice", e.key)
	if ws := e.weak.Load(); ws != nil {
		ws.mu.Lock()
		ws.entry = nil
		outstanding := ws.refs.Load() != 0
		ws.mu.Unlock()
		if !outstanding {
			ws.free()
		}
		// Otherwise the last weak Release frees it.
	}
	e.released.Store(true)
	e.self.doRelease()
}

// Entry is a pinned handle to a cache entry. The same *Entry is returned for
// every pin of a resident key; each pin must be released exactly once.
type Entry[V any] struct {
	entryBase

	// Value is the payload. Writers must hold Lock; Init runs before any
	// caller sees the entry.
	Value V
}

func (e *Entry[V]) owner() *Cache[V] { return e.cache.self.(*Cache[V]) }

func (e *Entry[V]) doInitialize() {
	if f := e.owner().opt.Init; f != nil {
		f(e.key, &e.Value)
	}
}

func (e *Entry[V]) doSizeInBytes() int64 {
	if f := e.owner().opt.Size; f != nil {
		return f(e.key, &e.Value)
	}
	return int64(len(e.key)) + int64(unsafe.Sizeof(*e))
}

func (e *Entry[V]) doRelease() {
	if f := e.owner().opt.OnRelease; f != nil {
		f(e.key, &e.Value)
	}
}

// Key returns the entry key.
func (e *Entry[V]) Key() string { return e.key }

// Cache returns the owning cache. The pin keeps it alive.
func (e *Entry[V]) Cache() *Cache[V] { return e.owner() }

// SizeInBytes returns the size last reported to the pool (0 when the pool
// has no byte budget).
func (e *Entry[V]) SizeInBytes() int64 { return e.numBytes.Load() }

// Acquire adds a pin. The caller must already hold one.
func (e *Entry[V]) Acquire() *Entry[V] {
	invariants.Check(!e.released.Load(), "pin of destroyed entry %q", e.key)
	n := e.refCount.Add(2)
	traceRefcount("CacheEntry:increment", e, uint64(n))
	return e
}

// Release drops a pin obtained from GetEntry or Acquire. When the last pin
// goes the entry joins the pool's eviction queue, or is destroyed right away
// if the pool has no byte budget.
func (e *Entry[V]) Release() { e.release() }

// Weak returns a weak handle that does not pin the entry but observes its
// destruction. The caller must hold a pin. Returns nil for caches outside any
// pool, where weak handles serve no purpose.
func (e *Entry[V]) Weak() *WeakEntry[V] {
	ws := e.acquireWeak()
	if ws == nil {
		return nil
	}
	return &WeakEntry[V]{ws: ws, key: e.key}
}

// Lock locks the entry payload.
func (e *Entry[V]) Lock() { e.mu.Lock() }

// MarkSizeChanged records that Value changed size. Lock must be held; the
// new size is reported to the pool on Unlock.
func (e *Entry[V]) MarkSizeChanged() { e.flags |= sizeChanged }

// Unlock unlocks the entry payload. If MarkSizeChanged was called, the size
// is recomputed and the difference charged to the pool, which may trigger
// an eviction sweep after the entry lock is released.
func (e *Entry[V]) Unlock() {
	flags := e.flags
	e.flags = 0
	p := e.cache.pool
	if flags&sizeChanged == 0 || !p.hasLRU() {
		e.mu.Unlock()
		return
	}
	n := e.doSizeInBytes()
	delta := n - e.numBytes.Swap(n)
	e.mu.Unlock()
	p.UpdateTotalBytes(delta)
}
