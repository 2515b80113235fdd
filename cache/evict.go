package cache

import (
	"log/slog"

	"github.com/IvanBrykalov/cachepool/internal/invariants"
)

// evictBatchSize bounds how many evicted entries are collected before
// lruMu is dropped to run their destructors.
const evictBatchSize = 64

type evictedEntry struct {
	e            *entryBase
	destroyCache bool // e was the last resident entry of a cache with no holders
}

// unregisterEntry removes e from the eviction queue (if linked) and stops
// counting its bytes. lruMu must be held.
func (p *Pool) unregisterEntry(e *entryBase) {
	e.lru.unlink()
	p.totalBytes.Add(-e.numBytes.Load())
}

// addToEvictionQueue moves e to the most-recently-unpinned end of the
// queue. lruMu must be held.
func (p *Pool) addToEvictionQueue(e *entryBase) {
	if e.lru.linked() {
		e.lru.unlink()
	}
	p.evictionQueue.insertBefore(&e.lru)
}

// maybeEvictEntries evicts entries from the head of the queue until the pool
// is within its limit or the queue is empty. lruMu must be held; it is
// dropped and reacquired around each batch of destructor calls.
//
// An entry found pinned again is only unlinked: pins are taken without lruMu,
// so entries stay queued until the sweep or their next unpin notices.
func (p *Pool) maybeEvictEntries() {
	var batch []evictedEntry
	evicted, skipped := 0, 0

	flush := func() {
		p.lruMu.Unlock()
		for _, v := range batch {
			c := v.e.cache
			v.e.destroy()
			if v.destroyCache {
				destroyCache(p, c)
			}
		}
		batch = batch[:0]
		p.lruMu.Lock()
	}

	for p.totalBytes.Load() > p.limits.TotalBytesLimit {
		n := p.evictionQueue.front()
		if n == nil {
			break
		}
		e := n.entry
		c := e.cache
		s := c.shardFor(e.key)

		s.mu.Lock()
		if e.refCount.Load() != 0 {
			// A refCount cannot rise from 0 without the shard mutex nor fall
			// to 0 without lruMu, and both are held.
			s.mu.Unlock()
			e.lru.unlink()
			skipped++
			continue
		}
		s.erase(e)
		dropCache := false
		if len(s.entries) == 0 {
			dropCache = c.decrementRef(nonEmptyShardIncrement).shouldDelete()
		}
		s.mu.Unlock()

		p.unregisterEntry(e)
		p.metrics.Evict()
		evicted++
		invariants.Check(!e.released.Load(), "evicting destroyed entry %q", e.key)
		batch = append(batch, evictedEntry{e: e, destroyCache: dropCache})
		if len(batch) == evictBatchSize {
			flush()
		}
	}
	if len(batch) > 0 {
		flush()
	}

	if (evicted > 0 || skipped > 0) && debugEnabled() {
		Logger().Debug("eviction sweep",
			slog.Int("evicted", evicted),
			slog.Int("skipped", skipped),
			slog.Int64("total_bytes", p.totalBytes.Load()),
			slog.Int64("limit", p.limits.TotalBytesLimit))
	}
}
