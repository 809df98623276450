package rcux

import (
	"sync/atomic"
)

// ticketLock serializes writers on one root.
//
// It is the classic ticket algorithm: Lock takes a ticket and waits
// until `serving` reaches it; Unlock advances `serving`. Unlike
// sync.Mutex it never barges, so writers acquire the root in the
// exact order they arrived and a steady stream of writes cannot
// starve any single writer. Waiting spins briefly, then sleeps in
// fixed 500µs steps, rather than busy-waiting.
type ticketLock struct {
	_       noCopy
	next    atomic.Uint32
	serving atomic.Uint32
}

// Lock acquires the lock. Blocks until the lock is available.
func (l *ticketLock) Lock() {
	my := l.next.Add(1) - 1
	var spins int
	for l.serving.Load() != my {
		delay(&spins)
	}
}

// Unlock releases the lock.
func (l *ticketLock) Unlock() {
	l.serving.Add(1)
}
