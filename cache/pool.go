package cache

import (
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/cachepool/internal/invariants"
)

// Pool is a collection of caches sharing one byte budget and one eviction
// queue.
//
// A pool has strong and weak holders. NewPool returns a single strong
// reference. While the pool has a strong holder, registered caches stay
// alive as long as any of their entries is resident; once the last strong
// reference is released, caches live only as long as something pins them.
// Weak references (held by every referenced cache) keep the Pool usable
// for bookkeeping but do not keep idle caches alive.
type Pool struct {
	limits  Limits
	metrics Metrics

	totalBytes atomic.Int64
	strongRefs atomic.Uint64
	weakRefs   atomic.Uint64
	released   atomic.Bool

	// lruMu guards evictionQueue, the lru links of every entry, and the
	// transition of an entry's refCount to <= 1. Lock order: cachesMu,
	// then lruMu, then a shard mutex.
	lruMu         sync.Mutex
	evictionQueue lruNode // sentinel; head is least recently unpinned

	// cachesMu guards caches, the 0 <-> 1 transitions of strongRefs and the
	// poolLinkedIncrement bit of every registered cache.
	cachesMu sync.Mutex
	caches   map[cacheKey]*cacheBase
}

// PoolStats is a point-in-time view of a Pool.
type PoolStats struct {
	TotalBytes      int64
	TotalBytesLimit int64
	Caches          int
	StrongRefs      uint64
	WeakRefs        uint64
}

// NewPool creates a pool and returns it with one strong reference, to be
// dropped with ReleaseStrong.
//
// Panics if opt.Limits is invalid; use Limits.Validate or LoadLimits to
// check untrusted input first.
func NewPool(opt PoolOptions) *Pool {
	if err := opt.Limits.Validate(); err != nil {
		panic(err)
	}
	m := opt.Metrics
	if m == nil {
		m = NoopMetrics{}
	}
	p := &Pool{
		limits:  opt.Limits,
		metrics: m,
		caches:  make(map[cacheKey]*cacheBase),
	}
	p.evictionQueue.init()
	p.strongRefs.Store(1)
	// The strong holders collectively hold one weak reference.
	p.weakRefs.Store(1)
	return p
}

// hasLRU reports whether p tracks entry sizes and keeps an eviction queue.
func (p *Pool) hasLRU() bool {
	return p != nil && p.limits.TotalBytesLimit != 0
}

func (p *Pool) lruLock() *sync.Mutex { return &p.lruMu }

// Limits returns the pool's byte budget.
func (p *Pool) Limits() Limits { return p.limits }

// AcquireStrong adds a strong reference. The caller must already hold a
// strong or weak reference.
//
// Upgrading from zero strong holders relinks every registered cache that
// is still alive, so that their idle entries are retained again.
func (p *Pool) AcquireStrong() *Pool {
	for old := p.strongRefs.Load(); old > 0; old = p.strongRefs.Load() {
		if p.strongRefs.CompareAndSwap(old, old+1) {
			return p
		}
	}

	p.cachesMu.Lock()
	defer p.cachesMu.Unlock()
	if p.strongRefs.Add(1) != 1 {
		return p
	}
	p.AcquireWeak()
	for _, c := range p.caches {
		for {
			rc := c.refCount.Load()
			if shouldDelete(rc) {
				// Dying: its destroyer will remove it from the table.
				break
			}
			invariants.Check(rc&poolLinkedIncrement == 0, "cache %q already linked", c.id)
			if c.refCount.CompareAndSwap(rc, rc+poolLinkedIncrement) {
				traceRefcount("Cache:increment", c, rc+poolLinkedIncrement)
				break
			}
		}
	}
	return p
}

// ReleaseStrong drops a strong reference. Releasing the last one unlinks
// every registered cache from the pool; caches left with no strong holder
// are destroyed together with their resident entries.
func (p *Pool) ReleaseStrong() {
	n, mu := decrementWithLock[uint64](&p.strongRefs, func() *sync.Mutex { return &p.cachesMu }, 1, 0)
	traceRefcount("CachePool:decrement", p, n)
	if mu == nil {
		return
	}
	var doomed []*cacheBase
	for _, c := range p.caches {
		if c.refCount.Load()&poolLinkedIncrement == 0 {
			continue
		}
		if c.decrementRef(poolLinkedIncrement).shouldDelete() {
			doomed = append(doomed, c)
		}
	}
	mu.Unlock()
	for _, c := range doomed {
		destroyCache(p, c)
	}
	p.ReleaseWeak()
}

// AcquireWeak adds a weak reference.
func (p *Pool) AcquireWeak() *Pool {
	n := p.weakRefs.Add(1)
	traceRefcount("CachePool:weak:increment", p, n)
	return p
}

// ReleaseWeak drops a weak reference.
func (p *Pool) ReleaseWeak() {
	n := p.weakRefs.Add(^uint64(0))
	traceRefcount("CachePool:weak:decrement", p, n)
	if n != 0 {
		return
	}
	invariants.Check(p.strongRefs.Load() == 0, "pool released with strong references")
	p.released.Store(true)
	if debugEnabled() {
		Logger().Debug("cache pool released",
			slog.Int64("total_bytes", p.totalBytes.Load()))
	}
}

// UpdateTotalBytes adjusts the pool's byte total by delta and, if a growth
// pushed it over the limit, runs an eviction sweep. It is a no-op for a
// pool without a byte budget.
func (p *Pool) UpdateTotalBytes(delta int64) {
	if !p.hasLRU() {
		return
	}
	if p.totalBytes.Add(delta) <= p.limits.TotalBytesLimit || delta <= 0 {
		return
	}
	p.lruMu.Lock()
	p.maybeEvictEntries()
	p.lruMu.Unlock()
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.cachesMu.Lock()
	n := len(p.caches)
	p.cachesMu.Unlock()
	return PoolStats{
		TotalBytes:      p.totalBytes.Load(),
		TotalBytesLimit: p.limits.TotalBytesLimit,
		Caches:          n,
		StrongRefs:      p.strongRefs.Load(),
		WeakRefs:        p.weakRefs.Load(),
	}
}

// GetCache returns a strong reference to the cache registered in p under
// (V, key), calling factory to create it if there is none.
//
// Caches are distinguished by both their value type and key, so two
// different V may use the same key. With a nil pool or an empty key the
// factory result is returned without being registered.
//
// factory runs without any pool lock held and may itself call GetCache.
// If a concurrent call registered a cache for the same key first, that cache
// is returned and the factory's result is closed.
func GetCache[V any](p *Pool, key string, factory func() (*Cache[V], error)) (*Cache[V], error) {
	typ := reflect.TypeFor[V]()
	if p == nil || key == "" {
		c, err := buildCache(typ, key, factory)
		if err != nil {
			return nil, err
		}
		c.pool = p
		c.refCount.Store(strongIncrement)
		if p != nil {
			p.AcquireWeak()
		}
		return c, nil
	}

	k := cacheKey{typ: typ, id: key}
	if c := p.lookupCache(k); c != nil {
		return c.self.(*Cache[V]), nil
	}

	c, err := buildCache(typ, key, factory)
	if err != nil {
		return nil, err
	}
	c.pool = p
	c.typ = typ
	c.id = key

	p.cachesMu.Lock()
	if cur, ok := p.caches[k]; ok && cur.tryAcquire() {
		p.cachesMu.Unlock()
		// Never published; tear it down without touching the table.
		c.released.Store(true)
		c.doClose()
		return cur.self.(*Cache[V]), nil
	}
	// Any cache still in the slot is dying and will not remove c.
	p.caches[k] = &c.cacheBase
	rc := strongIncrement
	if p.strongRefs.Load() != 0 {
		rc += poolLinkedIncrement
	}
	c.refCount.Store(rc)
	traceRefcount("Cache:increment", &c.cacheBase, rc)
	p.cachesMu.Unlock()
	p.AcquireWeak()
	return c, nil
}

// lookupCache returns the live cache registered under k with a new strong
// reference, or nil.
func (p *Pool) lookupCache(k cacheKey) *cacheBase {
	p.cachesMu.Lock()
	defer p.cachesMu.Unlock()
	c, ok := p.caches[k]
	if !ok {
		return nil
	}
	if c.tryAcquire() {
		return c
	}
	// Dying; its teardown skips slots that no longer point at it.
	delete(p.caches, k)
	return nil
}

func buildCache[V any](typ reflect.Type, key string, factory func() (*Cache[V], error)) (*Cache[V], error) {
	c, err := factory()
	if err != nil {
		return nil, factoryError(err, typ.String(), key)
	}
	if c == nil {
		return nil, ErrNilCache
	}
	invariants.Check(c.pool == nil && c.refCount.Load() == 0, "factory returned a cache already in use")
	return c, nil
}
