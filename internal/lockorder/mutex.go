// Package lockorder provides the mutex used for the layered vif, scan and
// scan result locks. Building with the deadlock_detection tag swaps the
// underlying implementation for github.com/sasha-s/go-deadlock, which reports
// lock order inversions and locks held for too long.
package lockorder

import "sync/atomic"

// Mutex is a mutual exclusion lock that can assert it is held.
// The zero value is an unlocked mutex.
type Mutex struct {
	mu   mutex
	held atomic.Bool
}

func (m *Mutex) Lock() {
	m.mu.Lock()
	m.held.Store(true)
}

func (m *Mutex) Unlock() {
	if !m.held.Swap(false) {
		panic("lockorder: unlock of unlocked mutex")
	}
	m.mu.Unlock()
}

// Held reports whether m is currently locked by any goroutine.
func (m *Mutex) Held() bool { return m.held.Load() }

// AssertHeld panics if m is not locked. Functions that require their caller
// to hold a lock call AssertHeld on entry.
func (m *Mutex) AssertHeld() {
	if !m.held.Load() {
		panic("lockorder: mutex not held")
	}
}
