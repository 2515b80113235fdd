package cache

import "github.com/IvanBrykalov/cachepool/internal/util"

// Metrics exposes pool-level observability hooks. Every cache in a pool
// reports to the pool's Metrics. Implementations must be safe for
// concurrent use; they are called on hot paths, sometimes under a shard
// or lru mutex, so keep them cheap and never call back into the pool.
type Metrics interface {
	Hit()
	Miss()
	Evict()
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is the default when no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()   {}
func (NoopMetrics) Miss()  {}
func (NoopMetrics) Evict() {}

// Counters is a Metrics implementation keeping monotonic in-process counts.
// The zero value is ready to use. A single Counters may be shared by several
// pools to get process-wide totals.
type Counters struct {
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicInt64
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Hits   int64
	Misses int64
	Evicts int64
}

func (c *Counters) Hit()   { c.hits.Add(1) }
func (c *Counters) Miss()  { c.misses.Add(1) }
func (c *Counters) Evict() { c.evicts.Add(1) }

// Snapshot returns the current counts.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Evicts: c.evicts.Load(),
	}
}

var (
	_ Metrics = NoopMetrics{}
	_ Metrics = (*Counters)(nil)
)
