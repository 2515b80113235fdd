package util

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardIndex_PowerOfTwoMask(t *testing.T) {
	t.Parallel()

	for _, h := range []uint64{0, 1, 7, 8, 0xdeadbeef, ^uint64(0)} {
		assert.Equal(t, int(h&7), ShardIndex(h, 8), "hash %x", h)
		assert.Zero(t, ShardIndex(h, 1))
	}
}

func TestHashKey_Spread(t *testing.T) {
	t.Parallel()

	var counts [8]int
	for i := 0; i < 8000; i++ {
		counts[ShardIndex(HashKey("chunk/"+strconv.Itoa(i)), 8)]++
	}
	for i, n := range counts {
		// A uniform hash puts ~1000 keys in each shard.
		assert.Greater(t, n, 700, "shard %d underfilled", i)
		assert.Less(t, n, 1300, "shard %d overfilled", i)
	}
	assert.Equal(t, HashKey("a"), HashKey("a"))
}

