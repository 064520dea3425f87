// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

// Package cache implements per-key synchronization
// primitives for in-memory state.
package cache

import (
	"cmp"
	"slices"
	"sync"
)

// A Barrier is a mutual exclusion lock per key K.
//
// The zero value for a Barrier is an unlocked mutex.
//
// A Barrier must not be copied after first use.
type Barrier[K cmp.Ordered] struct {
	mu   sync.Mutex
	keys map[K]*barrier
}

// Lock locks the key.
//
// If the key is already in use, the calling goroutine
// blocks until the key is available.
func (b *Barrier[K]) Lock(key K) { b.add(key).Lock() }

// Unlock unlocks the key.
// It is a run-time error if the key is not locked on entry
// to Unlock.
//
// A Barrier is not associated with a particular goroutine.
// It is allowed for one goroutine to lock one Barrier key
// and then arrange for another goroutine to unlock this key.
func (b *Barrier[K]) Unlock(key K) { b.remove(key).Unlock() }

// LockAll locks all keys in ascending order and returns
// a function that unlocks them again. Duplicate keys are
// locked once.
//
// Two goroutines locking overlapping key sets cannot
// deadlock since both acquire the shared keys in the
// same order.
func (b *Barrier[K]) LockAll(keys ...K) (unlock func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	for _, key := range keys {
		b.Lock(key)
	}
	return func() {
		for i := len(keys) - 1; i >= 0; i-- {
			b.Unlock(keys[i])
		}
	}
}

// add adds a new barrier for the given key, if non exist,
// or returns the existing barrier.
func (b *Barrier[K]) add(key K) *barrier {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.keys[key]
	if !ok {
		if b.keys == nil {
			b.keys = make(map[K]*barrier)
		}
		m = new(barrier)
		b.keys[key] = m
	}

	m.N++
	return m
}

func (b *Barrier[K]) remove(key K) *barrier {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.keys[key]
	if !ok {
		panic("cache: unlock of unlocked Barrier key")
	}
	m.N--

	if m.N == 0 {
		delete(b.keys, key) // no goroutine holds or waits for this key
	}
	return m
}

type barrier struct {
	sync.Mutex

	// N is the number of goroutines that have
	// acquired / are trying to acquire the lock.
	N uint
}
