package util

// ShardIndex maps a hash to one of shards partitions using its low bits.
// shards must be a power of two.
func ShardIndex(hash uint64, shards int) int {
	return int(hash & uint64(shards-1))
}

