package cache

import (
	"log/slog"
	"reflect"
	"sync/atomic"

	"github.com/IvanBrykalov/cachepool/internal/invariants"
)

// The cache reference count packs three independent quantities:
//
//	strongIncrement * strong_holders +
//	nonEmptyShardIncrement * non_empty_shards +
//	poolLinkedIncrement * (registered && pool has a strong holder)
//
// Each occupies disjoint bits. 4*numShards keeps the shard component
// (at most 2*numShards) below the strong component.
const (
	strongIncrement        uint64 = numShards * 4
	poolLinkedIncrement    uint64 = 1
	nonEmptyShardIncrement uint64 = 2
)

// shouldDelete reports whether a cache with reference count rc must be
// destroyed: no strong holders, and either no non-empty shard or no link to
// a live pool.
//
// The thread that moves the count from !shouldDelete to shouldDelete
// destroys the cache. Other threads may still observe it in that state while
// holding one of the pool or shard mutexes; they must not destroy it.
func shouldDelete(rc uint64) bool {
	return rc&^poolLinkedIncrement == 0 ||
		rc&^(strongIncrement-1-poolLinkedIncrement) == 0
}

// holdsPoolWeakRef reports whether the cache holds a weak reference to its
// pool, which is the case iff it has a strong holder.
func holdsPoolWeakRef(rc uint64) bool { return rc >= strongIncrement }

// cacheKey identifies a cache within a pool's table.
type cacheKey struct {
	typ reflect.Type
	id  string
}

// cacheImpl is implemented by Cache[V] for the untyped core.
type cacheImpl interface {
	newEntry(key string) *entryBase
	doClose()
}

// cacheBase is the type-independent part of a cache.
type cacheBase struct {
	// pool is nil for a cache created outside any pool. Such a cache never
	// stores its entries: each lookup returns a fresh one.
	pool *Pool
	// typ and id are only set for caches registered in the pool table.
	typ reflect.Type
	id  string

	refCount atomic.Uint64
	released atomic.Bool
	self     cacheImpl

	shards [numShards]shard
}

func (c *cacheBase) init(self cacheImpl) {
	c.self = self
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*entryBase)
	}
}

func (c *cacheBase) key() cacheKey { return cacheKey{typ: c.typ, id: c.id} }

// refDelta is the outcome of a cache reference count decrement.
type refDelta struct{ old, new uint64 }

func (c *cacheBase) decrementRef(amount uint64) refDelta {
	n := c.refCount.Add(^(amount - 1))
	traceRefcount("Cache:decrement", c, n)
	return refDelta{old: n + amount, new: n}
}

// shouldDelete reports whether this decrement made the cache destroyable.
func (d refDelta) shouldDelete() bool {
	return !shouldDelete(d.old) && shouldDelete(d.new)
}

// releasesPoolWeakRef reports whether a strong decrement dropped the last
// strong holder.
func (d refDelta) releasesPoolWeakRef() bool {
	invariants.Check(d.old-d.new == strongIncrement, "not a strong decrement: %d -> %d", d.old, d.new)
	return !holdsPoolWeakRef(d.new)
}

// acquire adds a strong reference. The caller must already hold one, or be
// adding the first pin to one of the cache's entries under its shard lock.
func (c *cacheBase) acquire() {
	n := c.refCount.Add(strongIncrement)
	traceRefcount("Cache:increment", c, n)
}

// tryAcquire converts a table pointer into a strong reference. It fails if
// the cache is already destroyable. Called with pool.cachesMu held.
func (c *cacheBase) tryAcquire() bool {
	for old := c.refCount.Load(); !shouldDelete(old); old = c.refCount.Load() {
		if c.refCount.CompareAndSwap(old, old+strongIncrement) {
			traceRefcount("Cache:increment", c, old+strongIncrement)
			if !holdsPoolWeakRef(old) {
				// First strong holder again: the cache keeps the pool
				// object alive while referenced.
				c.pool.AcquireWeak()
			}
			return true
		}
	}
	return false
}

// release drops a strong reference, destroying the cache on the
// transition to shouldDelete.
func (c *cacheBase) release() {
	invariants.Check(!c.released.Load(), "release of destroyed cache %q", c.id)
	d := c.decrementRef(strongIncrement)
	var pool *Pool
	if d.releasesPoolWeakRef() {
		pool = c.pool
	}
	if d.shouldDelete() {
		destroyCache(c.pool, c)
	}
	if pool != nil {
		pool.ReleaseWeak()
	}
}

// destroyCache tears down c and every entry it still owns.
//
// Entries are first marked (reference count bumped by 2 so a concurrent
// release of a weak handle cannot requeue them) and unlinked under the
// pool and shard locks; their destructors and the cache's run afterwards
// with no lock held.
func destroyCache(p *Pool, c *cacheBase) {
	var doomed []*entryBase
	if p != nil {
		if c.id != "" {
			// A replacement cache may already own the slot; leave it alone.
			p.cachesMu.Lock()
			k := c.key()
			if cur, ok := p.caches[k]; ok && cur == c {
				delete(p.caches, k)
			}
			p.cachesMu.Unlock()
		}
		lru := p.hasLRU()
		if lru {
			p.lruMu.Lock()
		}
		for i := range c.shards {
			s := &c.shards[i]
			s.mu.Lock()
			for _, e := range s.entries {
				e.refCount.Add(2)
				if lru {
					p.unregisterEntry(e)
				}
				doomed = append(doomed, e)
			}
			s.entries = nil
			s.mu.Unlock()
		}
		if lru {
			p.lruMu.Unlock()
		}
		for _, e := range doomed {
			rc := e.refCount.Load()
			invariants.Check(rc >= 2 && rc <= 3, "entry %q torn down with refcount %d", e.key, rc)
			e.destroy()
		}
	}

	c.released.Store(true)
	if debugEnabled() {
		Logger().Debug("cache destroyed",
			slog.String("cache", c.id),
			slog.Int("entries", len(doomed)))
	}
	c.self.doClose()
}

// getEntry returns a pinned entry for key, creating it on miss.
func (c *cacheBase) getEntry(key string) *entryBase {
	var e *entryBase
	p := c.pool
	if p == nil {
		e = c.self.newEntry(key)
		c.acquire()
	} else {
		s := c.shardFor(key)
		s.mu.Lock()
		if found, ok := s.entries[key]; ok {
			p.metrics.Hit()
			invariants.Check(!found.released.Load(), "pin of destroyed entry %q", key)
			old := found.refCount.Add(2) - 2
			traceRefcount("CacheEntry:increment", found, uint64(old+2))
			if old <= 1 {
				// First pin: the entry holds a strong reference to its
				// cache while pinned.
				c.acquire()
			}
			e = found
		} else {
			p.metrics.Miss()
			e = c.self.newEntry(key)
			s.entries[key] = e
			if len(s.entries) == 1 {
				c.refCount.Add(nonEmptyShardIncrement)
			}
			c.acquire()
		}
		s.mu.Unlock()
	}

	e.once.Do(func() {
		e.self.doInitialize()
		if p.hasLRU() {
			n := e.self.doSizeInBytes()
			e.numBytes.Store(n)
			p.UpdateTotalBytes(n)
		}
	})
	return e
}

// Cache is a typed collection of reference-counted entries keyed by string.
//
// A Cache is obtained from GetCache and must be released with Release once
// the caller is done with it. Entries pin their cache: the cache survives
// while any of its entries is pinned, and (when registered in a pool with a
// byte budget) while any of its unpinned entries is still resident.
type Cache[V any] struct {
	cacheBase
	opt Options[V]
}

// New constructs an unreferenced cache for use as the return value of a
// GetCache factory.
func New[V any](opt Options[V]) *Cache[V] {
	c := &Cache[V]{opt: opt}
	c.init(c)
	return c
}

// GetEntry returns a pinned entry for key, creating and initializing it on
// miss. Release the entry when done.
//
// Two lookups of the same key return the same entry while it is resident.
// For a cache outside any pool every call creates a fresh, untracked entry.
func (c *Cache[V]) GetEntry(key string) *Entry[V] {
	return c.getEntry(key).self.(*Entry[V])
}

// Acquire adds a strong reference. The caller must already hold one.
func (c *Cache[V]) Acquire() *Cache[V] {
	invariants.Check(holdsPoolWeakRef(c.refCount.Load()), "acquire of unreferenced cache %q", c.id)
	c.acquire()
	return c
}

// Release drops a strong reference obtained from GetCache or Acquire.
func (c *Cache[V]) Release() { c.release() }

// Pool returns the owning pool, or nil.
func (c *Cache[V]) Pool() *Pool { return c.pool }

// Identifier returns the key the cache is registered under ("" if none).
func (c *Cache[V]) Identifier() string { return c.id }

// Len returns the number of resident entries across all shards.
func (c *Cache[V]) Len() int {
	total := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

func (c *Cache[V]) newEntry(key string) *entryBase {
	e := &Entry[V]{}
	e.init(&c.cacheBase, key, e)
	return &e.entryBase
}

func (c *Cache[V]) doClose() {
	if c.opt.OnClose != nil {
		c.opt.OnClose()
	}
}
