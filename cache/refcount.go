package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IvanBrykalov/cachepool/internal/invariants"
)

// refCounter is the subset of sync/atomic's unsigned integer types used by
// decrementWithLock. *atomic.Uint32 and *atomic.Uint64 satisfy it.
type refCounter[T uint32 | uint64] interface {
	Load() T
	CompareAndSwap(old, new T) bool
	Add(delta T) T
}

// decrementWithLock subtracts amount from count such that the count only
// reaches a value <= threshold while the mutex returned by lock is held.
//
// While the result is certain to stay above threshold a CAS loop is used and
// no lock is taken. Otherwise the mutex is acquired first and the subtraction
// is done unconditionally. If a concurrent increment kept the result above
// threshold, the mutex is released again.
//
// On return mu is non-nil (and locked) iff newCount <= threshold; the caller
// owns the transition and must unlock mu.
func decrementWithLock[T uint32 | uint64, C refCounter[T]](
	count C, lock func() *sync.Mutex, amount, threshold T,
) (newCount T, mu *sync.Mutex) {
	for cur := count.Load(); cur > threshold+amount; cur = count.Load() {
		if count.CompareAndSwap(cur, cur-amount) {
			return cur - amount, nil
		}
	}

	mu = lock()
	mu.Lock()
	// The count may have changed between the last load and acquiring mu.
	var zero T
	newCount = count.Add(zero - amount)
	invariants.Check(newCount+amount >= amount, "refcount underflow: %d - %d", newCount+amount, amount)
	if newCount > threshold {
		mu.Unlock()
		return newCount, nil
	}
	return newCount, mu
}

// traceRefcount logs a reference-count transition at debug level. It is a
// no-op unless the invariants build tag (or -race) is set.
func traceRefcount(method string, p any, newCount uint64) {
	if !invariants.Enabled {
		return
	}
	l := Logger()
	if !l.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.Debug("refcount", slog.String("method", method), slog.String("ptr", fmt.Sprintf("%p", p)), slog.Uint64("count", newCount))
}
