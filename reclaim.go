package rcux

import (
	"sync/atomic"

	"github.com/llxisdsh/rcux/internal/opt"
)

// retireRing is the SPSC handoff from the writer (producer, under the
// writer lock) to the reclaimer goroutine (consumer). Indices are
// monotonic; the slot array is a power of two.
type retireRing[N any] struct {
	buf  []*N
	mask uint64
	head atomic.Uint64 // producer
	tail atomic.Uint64 // consumer
}

func newRetireRing[N any](capacity int) *retireRing[N] {
	pow2 := uint64(1)
	for pow2 < uint64(capacity) {
		pow2 <<= 1
	}
	return &retireRing[N]{buf: make([]*N, pow2), mask: pow2 - 1}
}

func (q *retireRing[N]) enqueue(n *N) bool {
	h := q.head.Load()
	if h-q.tail.Load() == uint64(len(q.buf)) {
		return false // full
	}
	q.buf[h&q.mask] = n
	q.head.Store(h + 1)
	return true
}

func (q *retireRing[N]) dequeue() *N {
	t := q.tail.Load()
	if t == q.head.Load() {
		return nil
	}
	n := q.buf[t&q.mask]
	q.buf[t&q.mask] = nil
	q.tail.Store(t + 1)
	return n
}

// latch is a one-way door with at most one waiter: open once, wait
// once. Used for the stop/done handshake with the reclaimer.
type latch struct {
	// state: 0 idle, 1 waiter parked, 2 open
	state atomic.Uint32
	sema  opt.Sema
}

func (l *latch) open() {
	if l.state.Swap(2) == 1 {
		l.sema.Release()
	}
}

func (l *latch) opened() bool {
	return l.state.Load() == 2
}

func (l *latch) wait() {
	if l.state.CompareAndSwap(0, 1) {
		l.sema.Acquire()
	}
}

// reclaimer destroys retired nodes off the writer's goroutine. The
// grace period for every node it receives has already elapsed, so it
// only runs destructors and accounting; it imposes no ordering of its
// own.
type reclaimer[N any] struct {
	root *Root[N]
	ring *retireRing[N]
	stop latch
	done latch
}

func newReclaimer[N any](root *Root[N], capacity int) *reclaimer[N] {
	if capacity < 1 {
		capacity = 1
	}
	return &reclaimer[N]{root: root, ring: newRetireRing[N](capacity)}
}

func (rc *reclaimer[N]) start() {
	go rc.run()
}

// retire hands one node over; if the ring is full the node is
// destroyed on the caller's goroutine instead.
func (rc *reclaimer[N]) retire(n *N) {
	if !rc.ring.enqueue(n) {
		rc.root.destroyNow(n)
	}
}

func (rc *reclaimer[N]) run() {
	var spins int
	for {
		for n := rc.ring.dequeue(); n != nil; n = rc.ring.dequeue() {
			rc.root.destroyNow(n)
			spins = 0
		}
		if rc.stop.opened() {
			// The producer is gone; one last sweep, then report done.
			for n := rc.ring.dequeue(); n != nil; n = rc.ring.dequeue() {
				rc.root.destroyNow(n)
			}
			rc.done.open()
			return
		}
		delay(&spins)
	}
}

// stopAndDrain is called by Root.Close after the last write has
// finished: no producer remains, so the drain is complete when the
// goroutine reports done.
func (rc *reclaimer[N]) stopAndDrain() {
	rc.stop.open()
	rc.done.wait()
}
