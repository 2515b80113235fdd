package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestDecrementWithLock_AboveThresholdSkipsLock(t *testing.T) {
	t.Parallel()

	var count atomic.Uint32
	count.Store(10)
	var mu sync.Mutex
	locked := false
	n, got := decrementWithLock[uint32](&count, func() *sync.Mutex {
		locked = true
		return &mu
	}, 2, 1)

	assert.Equal(t, uint32(8), n)
	assert.Nil(t, got)
	assert.False(t, locked, "fast path must not take the lock")
}

func TestDecrementWithLock_ReturnsHeldLockAtThreshold(t *testing.T) {
	t.Parallel()

	var count atomic.Uint64
	count.Store(3)
	var mu sync.Mutex
	n, got := decrementWithLock[uint64](&count, func() *sync.Mutex { return &mu }, 2, 1)

	require.NotNil(t, got)
	assert.Equal(t, uint64(1), n)
	assert.False(t, mu.TryLock(), "returned mutex must be held")
	got.Unlock()
}

// A concurrent increment between the CAS loop and the lock keeps the count
// above threshold; the mutex must then be released.
func TestDecrementWithLock_ReleasesLockWhenCountRose(t *testing.T) {
	t.Parallel()

	var count atomic.Uint32
	count.Store(2)
	var mu sync.Mutex
	n, got := decrementWithLock[uint32](&count, func() *sync.Mutex {
		count.Add(2) // a pin slips in before the lock is taken
		return &mu
	}, 2, 1)

	assert.Equal(t, uint32(2), n)
	assert.Nil(t, got)
	require.True(t, mu.TryLock(), "mutex must be released")
	mu.Unlock()
}

// Exactly one of many concurrent decrements observes the threshold crossing.
func TestDecrementWithLock_SingleWinner(t *testing.T) {
	t.Parallel()

	const workers = 64
	var count atomic.Uint64
	count.Store(workers)
	var mu sync.Mutex
	var winners atomic.Int32

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			n, got := decrementWithLock[uint64](&count, func() *sync.Mutex { return &mu }, 1, 0)
			if got != nil {
				assert.Equal(t, uint64(0), n)
				winners.Add(1)
				got.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, uint64(0), count.Load())
}

func TestShouldDelete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rc   uint64
		want bool
	}{
		{"zero", 0, true},
		{"pool linked only", poolLinkedIncrement, true},
		{"non-empty without pool link", 3 * nonEmptyShardIncrement, true},
		{"non-empty and linked", nonEmptyShardIncrement + poolLinkedIncrement, false},
		{"strong holder", strongIncrement, false},
		{"strong holder and non-empty", strongIncrement + nonEmptyShardIncrement, false},
		{"all shards non-empty, unlinked", numShards * nonEmptyShardIncrement, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldDelete(tt.rc))
		})
	}
}

func TestLRUNode_InsertUnlink(t *testing.T) {
	t.Parallel()

	var head lruNode
	head.init()
	assert.Nil(t, head.front())

	mk := func(key string) *entryBase {
		e := &entryBase{key: key}
		e.lru.init()
		e.lru.entry = e
		return e
	}
	a, b, c := mk("a"), mk("b"), mk("c")
	head.insertBefore(&a.lru)
	head.insertBefore(&b.lru)
	head.insertBefore(&c.lru)
	assert.True(t, b.lru.linked())
	assert.Same(t, a, head.front().entry)

	b.lru.unlink()
	assert.False(t, b.lru.linked())
	assert.Same(t, c, a.lru.next.entry)

	a.lru.unlink()
	c.lru.unlink()
	assert.Nil(t, head.front())
}
