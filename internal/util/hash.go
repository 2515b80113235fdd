// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "github.com/cespare/xxhash/v2"

// HashKey hashes an entry key for shard selection.
func HashKey(key string) uint64 {
	return xxhash.Sum64String(key)
}
