package prom

import (
	"testing"

	"github.com/IvanBrykalov/cachepool/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gather returns the value of every unlabeled-or-const-labeled single-series
// counter and gauge in reg, keyed by metric name.
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]float64, len(mfs))
	for _, mf := range mfs {
		require.Len(t, mf.GetMetric(), 1, mf.GetName())
		m := mf.GetMetric()[0]
		switch {
		case m.GetCounter() != nil:
			out[mf.GetName()] = m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			out[mf.GetName()] = m.GetGauge().GetValue()
		}
	}
	return out
}

func TestAdapter_CountsPoolActivity(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg, "cachepool", "test", prometheus.Labels{"pool": "a"})

	p := cache.NewPool(cache.PoolOptions{
		Limits:  cache.Limits{TotalBytesLimit: 100},
		Metrics: m,
	})
	t.Cleanup(p.ReleaseStrong)
	c, err := cache.GetCache(p, "c", func() (*cache.Cache[int], error) {
		return cache.New(cache.Options[int]{
			Size: func(string, *int) int64 { return 60 },
		}), nil
	})
	require.NoError(t, err)
	t.Cleanup(c.Release)

	c.GetEntry("a").Release()
	c.GetEntry("a").Release()
	c.GetEntry("b").Release() // 120 bytes: evicts a

	got := gather(t, reg)
	assert.Equal(t, 1.0, got["cachepool_test_hits_total"])
	assert.Equal(t, 2.0, got["cachepool_test_misses_total"])
	assert.Equal(t, 1.0, got["cachepool_test_evictions_total"])
}

func TestRegisterPool(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	p := cache.NewPool(cache.PoolOptions{Limits: cache.Limits{TotalBytesLimit: 1000}})
	t.Cleanup(p.ReleaseStrong)
	RegisterPool(reg, "cachepool", "pool", p, nil)

	assert.Equal(t, map[string]float64{
		"cachepool_pool_caches":            0,
		"cachepool_pool_total_bytes":       0,
		"cachepool_pool_total_bytes_limit": 1000,
	}, gather(t, reg))

	c, err := cache.GetCache(p, "c", func() (*cache.Cache[int], error) {
		return cache.New(cache.Options[int]{
			Size: func(string, *int) int64 { return 250 },
		}), nil
	})
	require.NoError(t, err)
	t.Cleanup(c.Release)
	c.GetEntry("a").Release()

	got := gather(t, reg)
	assert.Equal(t, 1.0, got["cachepool_pool_caches"])
	assert.Equal(t, 250.0, got["cachepool_pool_total_bytes"])
}

func TestRegisterPool_DuplicatePanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	p := cache.NewPool(cache.PoolOptions{})
	t.Cleanup(p.ReleaseStrong)
	RegisterPool(reg, "cachepool", "pool", p, nil)
	assert.Panics(t, func() { RegisterPool(reg, "cachepool", "pool", p, nil) })
}
