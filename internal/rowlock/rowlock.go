// Package rowlock provides an in-process, per-key mutex set. It has no
// bearing on the cross-process advisory lock protocol (that one lives
// entirely in mkdir/rmdir of the locked/ marker, per the queue's
// concurrency model); it only cuts down on wasted mkdir/rename retries
// between goroutines of the same process operating on the same element.
package rowlock

import (
	"sync"

	"github.com/fishy/dirq/internal/pool"
)

// lockerPoolMaxSize bounds the pool of spare *sync.Mutex values kept
// around for reuse; it has no relation to the number of keys locked.
const lockerPoolMaxSize = 10

// RowLock is a set of per-key locks.
type RowLock struct {
	locks sync.Map
	pool  *pool.Pool
}

// New creates a new, empty RowLock.
func New() *RowLock {
	return &RowLock{
		pool: pool.NewPool(lockerPoolMaxSize),
	}
}

func newMutex() interface{} {
	return new(sync.Mutex)
}

// Lock locks the given key.
func (rl *RowLock) Lock(key string) {
	rl.getLocker(key).Lock()
}

// Unlock unlocks the given key.
func (rl *RowLock) Unlock(key string) {
	rl.getLocker(key).Unlock()
}

func (rl *RowLock) getLocker(key string) *sync.Mutex {
	candidate := rl.pool.Get(newMutex)
	actual, loaded := rl.locks.LoadOrStore(key, candidate)
	if loaded {
		rl.pool.Put(candidate)
	}
	return actual.(*sync.Mutex)
}
