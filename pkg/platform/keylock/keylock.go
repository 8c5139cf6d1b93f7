// Package keylock provides per-key mutual exclusion with FIFO hand-off.
//
// Waiters on the same key are admitted in arrival order, so a long queue of
// short critical sections cannot starve an earlier waiter. Acquisition honours
// context cancellation; a cancelled waiter never holds the lock.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Locker hands out one FIFO lock per key. Entries are dropped once no holder
// or waiter references them, so the key space may be unbounded.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

// Lock blocks until key is held or ctx is done. The returned release func
// must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key string) (release func(), err error) {
	e := l.ref(key)
	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.unref(key)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(key)
		})
	}, nil
}

// Held reports the number of keys currently referenced by a holder or waiter.
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Locker) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Locker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}
