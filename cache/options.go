package cache

// PoolOptions configures a Pool. Zero values are safe;
// defaults are applied in NewPool():
//   - Limits.TotalBytesLimit == 0 => caching/eviction disabled
//   - nil Metrics                 => NoopMetrics
type PoolOptions struct {
	// Limits holds the byte budget shared by every cache in the pool.
	Limits Limits

	// Metrics receives hit/miss/evict signals from all caches of the pool.
	Metrics Metrics
}

// Options configures a Cache created with New. All hooks are optional.
//
// None of the hooks is ever called while a pool or shard mutex is held.
type Options[V any] struct {
	// Init is called exactly once per entry, before the entry is first
	// returned by GetEntry. Concurrent first lookups wait for it.
	Init func(key string, v *V)

	// Size estimates the memory held by an entry. It is called once after
	// Init, and again on Unlock whenever MarkSizeChanged was called.
	// nil => len(key) plus the size of the entry struct.
	Size func(key string, v *V) int64

	// OnRelease is called when an entry is destroyed: evicted, dropped by an
	// unbudgeted pool, or torn down with its cache.
	OnRelease func(key string, v *V)

	// OnClose is called once when the cache is destroyed, after OnRelease
	// ran for the entries destroyed along with it.
	OnClose func()
}
