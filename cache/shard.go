package cache

import (
	"sync"

	"github.com/IvanBrykalov/cachepool/internal/invariants"
	"github.com/IvanBrykalov/cachepool/internal/util"
)

// numShards is the fixed number of entry-table partitions per cache.
// strongIncrement depends on it.
const numShards = 8

// numShards must be a power of two for util.ShardIndex.
var _ = [1]struct{}{}[numShards&(numShards-1)]

// shard is an independently locked partition of a cache's entry table.
type shard struct {
	mu      sync.Mutex
	entries map[string]*entryBase // guarded by mu

	// Shards of one cache sit in an array; keep their mutexes apart.
	_ util.CacheLinePad
}

// erase removes e from the table. mu must be held.
func (s *shard) erase(e *entryBase) {
	invariants.Check(s.entries[e.key] == e, "erase of entry %q not in its shard", e.key)
	delete(s.entries, e.key)
}

// shardFor picks the shard owning key.
func (c *cacheBase) shardFor(key string) *shard {
	return &c.shards[util.ShardIndex(util.HashKey(key), numShards)]
}
