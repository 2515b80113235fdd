// Package prom exports cache pool activity to Prometheus.
package prom

import (
	"github.com/IvanBrykalov/cachepool/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics with Prometheus counters.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits   prometheus.Counter
	misses prometheus.Counter
	evicts prometheus.Counter
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Entry lookups that found a resident entry",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Entry lookups that created a new entry",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evictions_total",
			Help:        "Entries evicted to stay within the byte budget",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter.
func (a *Adapter) Evict() { a.evicts.Inc() }

// RegisterPool exports gauges read from p.Stats at scrape time: tracked
// bytes, the byte limit and the number of registered caches.
func RegisterPool(reg prometheus.Registerer, ns, sub string, p *cache.Pool, constLabels prometheus.Labels) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gauge := func(name, help string, read func(cache.PoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, func() float64 { return read(p.Stats()) })
	}
	reg.MustRegister(
		gauge("total_bytes", "Bytes held by resident entries",
			func(s cache.PoolStats) float64 { return float64(s.TotalBytes) }),
		gauge("total_bytes_limit", "Configured byte budget (0 = unbounded)",
			func(s cache.PoolStats) float64 { return float64(s.TotalBytesLimit) }),
		gauge("caches", "Caches registered in the pool",
			func(s cache.PoolStats) float64 { return float64(s.Caches) }),
	)
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
