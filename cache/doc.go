// Package cache provides a pool of typed, reference-counted caches that
// share a single byte budget and a least-recently-unpinned eviction queue.
//
// Design
//
//   - Pool: owns the byte budget (Limits.TotalBytesLimit), the eviction
//     queue and a table of caches keyed by (value type, identifier). A
//     limit of 0 disables size tracking: entries are destroyed as soon as
//     their last pin is released.
//
//   - Cache: a typed collection of entries split into a fixed number of
//     independently locked shards. GetCache returns the same *Cache for the
//     same (V, key) for as long as it stays alive.
//
//   - Entry: a keyed payload created and initialized on first lookup.
//     GetEntry and Acquire pin it; Release unpins it. An unpinned entry stays
//     resident (in the eviction queue) until the pool needs its bytes back.
//
//   - Reference counts: the pool, caches and entries are reference counted
//     with atomics. A count is only allowed to cross its "destroy" threshold
//     while the relevant mutex is held, so lookups racing with teardown are
//     resolved without a global lock. Destructors (Options.OnRelease and
//     Options.OnClose) run with no lock held.
//
//   - Weak handles: Entry.Weak returns a WeakEntry that neither pins the
//     entry nor keeps it out of the eviction queue, but reports via Expired
//     once the entry is destroyed with its cache.
//
//   - Metrics: PoolOptions.Metrics receives Hit/Miss/Evict signals from every
//     cache of the pool. NoopMetrics is the default; Counters keeps
//     in-process totals and metrics/prom exports to Prometheus.
//
// Basic usage
//
//	pool := cache.NewPool(cache.PoolOptions{
//	    Limits: cache.Limits{TotalBytesLimit: 64 << 20},
//	})
//	defer pool.ReleaseStrong()
//
//	c, err := cache.GetCache(pool, "blobs", func() (*cache.Cache[[]byte], error) {
//	    return cache.New(cache.Options[[]byte]{
//	        Size: func(key string, v *[]byte) int64 { return int64(len(key) + len(*v)) },
//	    }), nil
//	})
//	if err != nil {
//	    return err
//	}
//	defer c.Release()
//
//	e := c.GetEntry("a")
//	e.Lock()
//	e.Value = []byte("payload")
//	e.MarkSizeChanged()
//	e.Unlock() // reports the new size; may evict other unpinned entries
//	e.Release()
//
// Thread-safety
//
// All exported functions and methods are safe for concurrent use, except
// that Entry.Value must only be accessed under Entry.Lock once the entry is
// shared. Pins and references must each be released exactly once.
//
// Building with the invariants tag (or -race) enables internal consistency
// checks and debug logging of every reference-count transition.
package cache
