// Package rcux is a read-copy-update framework for linked mutable
// structures: many readers traverse lock-free while one serialized
// writer publishes new versions atomically and reclamation of
// unlinked nodes is deferred past every pre-existing reader.
package rcux

import (
	"sync/atomic"
)

// Root anchors one protected structure: the atomic head cell, the
// writer lock, the reader epoch tracker and the reclamation engine.
// It starts empty. Create one with [NewRoot]; the zero Root is not
// usable.
//
// Readers enter through [Root.Read] (or a registered [Reader]);
// writers enter through [Root.Write]. Read never blocks on writers or
// other readers; Write serializes against other writes on the same
// root and blocks only on the writer lock and the grace-period wait.
type Root[N any] struct {
	_     noCopy
	head  Link[N]
	mu    ticketLock
	proto *Protocol[N]
	track epochTracker
	rec   *reclaimer[N]

	closed atomic.Bool

	allocs atomic.Uint64
	frees  atomic.Uint64
	writes atomic.Uint64
	graces atomic.Uint64
}

// Option configures a Root at construction.
type Option[N any] func(*Root[N])

// WithDeferredReclaim moves destruction off the writer: freed nodes
// are handed to a background reclaimer through a ring of the given
// capacity (rounded up to a power of two). When the ring is full the
// free falls back to the writer's own goroutine. [Root.Close] drains
// the reclaimer before returning.
func WithDeferredReclaim[N any](capacity int) Option[N] {
	return func(r *Root[N]) {
		r.rec = newReclaimer(r, capacity)
	}
}

// NewRoot creates an empty protected root for nodes described by
// proto. proto may carry a nil Drop; the descriptor itself must not
// be nil.
func NewRoot[N any](proto *Protocol[N], opts ...Option[N]) *Root[N] {
	r := &Root[N]{proto: proto}
	r.track.init()
	for _, o := range opts {
		o(r)
	}
	if r.rec != nil {
		r.rec.start()
	}
	return r
}

// Read runs fn inside a read critical section: the head is snapshot
// into a read reference, fn traverses, and the section closes when fn
// returns. fn's error (and panic) propagate to the caller after the
// section has closed. fn must not retain the reference or anything
// derived from it — stale references panic on use.
//
// Read acquires no mutex and never waits for a writer.
func (r *Root[N]) Read(fn func(ReadRef[N]) error) error {
	if r.closed.Load() {
		panic(errRootClosed)
	}
	s := r.track.acquire()
	defer r.track.release(s)
	return r.readOn(s, fn)
}

func (r *Root[N]) readOn(s *readerSlot, fn func(ReadRef[N]) error) error {
	s.enter(&r.track)
	defer s.exit()
	return fn(ReadRef[N]{n: r.head.p.Load(), slot: s, gen: s.gen.Load()})
}

// Write runs the writer's three hooks in order under the root's
// writer lock: Setup, WhileReadersExist, a full grace-period wait,
// then Teardown. The first hook error aborts the write: a Setup error
// leaves the structure untouched; a WhileReadersExist error keeps
// whatever was already published. Either way the framework destroys
// every node the writer still owns. See [Writer].
func (r *Root[N]) Write(w Writer[N]) error {
	if r.closed.Load() {
		panic(errRootClosed)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &writeTxn[N]{root: r}
	tx.phase.Store(phaseSetup)
	defer tx.phase.Store(phaseDone)
	defer tx.sweep()

	if err := w.Setup(&Alloc[N]{tx: tx}); err != nil {
		return err
	}

	tx.phase.Store(phaseMutate)
	head := WriteRef[N]{n: r.head.p.Load(), tx: tx}
	if err := w.WhileReadersExist(head, &Publisher[N]{tx: tx}); err != nil {
		return err
	}

	// Every reader that could have observed a node this write
	// unlinked entered at or before this point; wait them all out
	// before Teardown may destroy anything. Unlinking can happen
	// without a publish, so the wait is unconditional.
	r.track.grace()
	r.graces.Add(1)

	tx.phase.Store(phaseTeardown)
	w.Teardown(&Collector[N]{tx: tx})
	r.writes.Add(1)
	return nil
}

// destroy reclaims one retired or abandoned node: on the deferred
// reclaimer when configured, else inline.
func (r *Root[N]) destroy(n *N) {
	if r.rec != nil {
		r.rec.retire(n)
		return
	}
	r.destroyNow(n)
}

func (r *Root[N]) destroyNow(n *N) {
	if d := r.proto.Drop; d != nil {
		d(n)
	}
	r.frees.Add(1)
}

// Stats is a snapshot of the root's allocation and write accounting.
type Stats struct {
	// Allocs and Frees count Alloc.New calls and destroyed nodes. At
	// clean shutdown, after a final write that empties the structure
	// and after Close has drained the reclaimer, they are equal.
	Allocs uint64
	Frees  uint64
	// Writes counts completed (non-aborted) writes; Graces counts
	// grace-period waits.
	Writes uint64
	Graces uint64
}

// Stats returns current counters. Callers racing with writers see
// monotonic, not mutually consistent, values.
func (r *Root[N]) Stats() Stats {
	return Stats{
		Allocs: r.allocs.Load(),
		Frees:  r.frees.Load(),
		Writes: r.writes.Load(),
		Graces: r.graces.Load(),
	}
}

// Close shuts the root down: it serializes behind any in-flight
// write, stops the background reclaimer after a full drain, and marks
// the root unusable. Close does not unlink published nodes — issue an
// emptying write first if the structure still holds any. Closing
// twice, or using the root after Close, panics.
func (r *Root[N]) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		panic(errRootClosed)
	}
	// Serialize behind a writer that raced with the flag.
	r.mu.Lock()
	r.mu.Unlock() //nolint:staticcheck // handoff point, not a critical section
	if r.rec != nil {
		r.rec.stopAndDrain()
	}
	return nil
}
