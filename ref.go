package rcux

import (
	"sync/atomic"
)

// Write phases. Views and capability objects check these so that a
// reference cannot outlive the phase that issued it.
const (
	phaseIdle uint32 = iota
	phaseSetup
	phaseMutate
	phaseTeardown
	phaseDone
)

// writeTxn is the per-write bookkeeping shared by every view handed
// to the writer's hooks. It lives only while the root's writer lock
// is held.
type writeTxn[N any] struct {
	root  *Root[N]
	phase atomic.Uint32
	// handles allocated in Setup; unpromoted ones are destroyed when
	// the write ends so allocation accounting stays exact.
	handles []*handle[N]
	// demoted handles created in Teardown (Demote/Detach); unfreed
	// ones are destroyed when the write ends.
	demoted []*handle[N]
}

// handle tracks exclusive writer ownership of one node: either a
// fresh allocation awaiting promotion or a retired node awaiting
// destruction.
type handle[N any] struct {
	n        *N
	tx       *writeTxn[N]
	promoted bool
	freed    bool
}

// ReadRef is a read-only view of a node, valid only inside the read
// critical section that produced it. Reading a reference field
// ([RefField.Deref]) yields another ReadRef; reading a value field
// ([ValField.Load]) yields a snapshot. Any use after the critical
// section exits panics with a [ContractError].
//
// The zero ReadRef is the empty reference.
type ReadRef[N any] struct {
	n    *N
	slot *readerSlot
	gen  uint64
}

// IsNil reports whether the reference is empty.
func (r ReadRef[N]) IsNil() bool {
	r.check()
	return r.n == nil
}

func (r ReadRef[N]) check() {
	if r.slot != nil && r.slot.gen.Load() != r.gen {
		panic(errRefEscaped)
	}
}

// WriteRef is a mutable view of a node, valid during the
// WhileReadersExist and Teardown hooks of the write that produced it.
// It is obtained from the head passed to WhileReadersExist, from
// [RefField.Get], or from [Publisher.Promote] / [Publisher.Publish].
//
// The zero WriteRef is the empty reference; installing it clears a
// field, publishing it empties the root.
type WriteRef[N any] struct {
	n  *N
	tx *writeTxn[N]
}

// IsNil reports whether the reference is empty.
func (w WriteRef[N]) IsNil() bool {
	w.check()
	return w.n == nil
}

func (w WriteRef[N]) check() {
	if w.tx == nil {
		return
	}
	if p := w.tx.phase.Load(); p != phaseMutate && p != phaseTeardown {
		panic(errWriteRefStale)
	}
}

// Unpublished is exclusive writer ownership of one node: either a
// fresh allocation from [Alloc.New] that no reader can see yet, or a
// retired node handed back by [Collector.Demote] / [RefField.Detach].
// An unpublished handle may be initialized freely; it cannot be
// linked into the published graph until promoted.
//
// The zero Unpublished is the empty handle.
type Unpublished[N any] struct {
	h *handle[N]
}

// IsNil reports whether the handle is empty.
func (u Unpublished[N]) IsNil() bool {
	return u.h == nil || u.h.n == nil
}

// Free destroys the node: its destructor runs now, or is scheduled on
// the deferred reclaimer when one is configured; the allocation is
// accounted as freed when the destructor runs.
// Handles left unfreed are destroyed by the framework when the write
// ends. Freeing twice panics.
func (u Unpublished[N]) Free() {
	h := u.h
	if h == nil {
		return
	}
	if h.freed {
		panic(errDoubleFree)
	}
	h.freed = true
	h.tx.root.destroy(h.n)
}

// Alloc allocates unpublished nodes during the Setup hook. Allocation
// failure does not exist in Go; a writer that cannot complete its
// setup returns an error instead, and the framework destroys every
// handle it allocated.
type Alloc[N any] struct {
	tx *writeTxn[N]
}

// New returns an unpublished handle to a zeroed node.
func (a *Alloc[N]) New() Unpublished[N] {
	tx := a.tx
	if tx.phase.Load() != phaseSetup {
		panic(errAllocPhase)
	}
	h := &handle[N]{n: new(N), tx: tx}
	tx.handles = append(tx.handles, h)
	tx.root.allocs.Add(1)
	return Unpublished[N]{h: h}
}

// sweep destroys every node the writer still owns when the write
// ends: setup handles that were never promoted and demoted handles
// that were never freed.
func (tx *writeTxn[N]) sweep() {
	for _, h := range tx.handles {
		if !h.promoted && !h.freed {
			h.freed = true
			tx.root.destroy(h.n)
		}
	}
	for _, h := range tx.demoted {
		if !h.freed {
			h.freed = true
			tx.root.destroy(h.n)
		}
	}
}
