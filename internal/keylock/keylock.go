// Package keylock provides named mutual exclusion. Callers lock an
// arbitrary string key (an account id, a map cell code) and the lock
// exists only while someone holds or waits on it.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyedLock is a registry of per-key mutexes. Locks are created on
// first Acquire and removed once the last holder releases, so the
// registry stays proportional to live contention, not to the key space.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New returns an empty KeyedLock registry.
func New() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*entry)}
}

// Acquire blocks until the lock for key is held by the caller.
func (k *KeyedLock) Acquire(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Release unlocks key. It must be called exactly once per Acquire,
// by the goroutine that acquired.
func (k *KeyedLock) Release(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// WithLock runs fn while holding the lock for key.
func (k *KeyedLock) WithLock(key string, fn func()) {
	k.Acquire(key)
	defer k.Release(key)
	fn()
}

// WithLock2 runs fn while holding both locks. The first key is always
// taken before the second, so callers that follow the same ordering
// (account before cell) cannot deadlock against each other.
func (k *KeyedLock) WithLock2(first, second string, fn func()) {
	k.Acquire(first)
	defer k.Release(first)
	k.Acquire(second)
	defer k.Release(second)
	fn()
}

// Held reports how many keys currently have a live lock entry.
// Intended for tests and diagnostics.
func (k *KeyedLock) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
