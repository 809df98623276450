package rcux

// Writer is the three-hook contract a write runs under the root's
// writer lock:
//
//  1. Setup allocates and initializes unpublished handles. It must
//     not touch published nodes. Returning an error aborts the write
//     with no structural change.
//  2. WhileReadersExist receives a write reference to the current
//     head (empty if the root is empty) and the publisher. It may
//     mutate value fields of reachable nodes in place, install links,
//     promote handles, and publish any number of new heads. A node
//     becomes observable only when a reference to it is installed in
//     a cell reachable from the root; Promote alone publishes
//     nothing.
//  3. Teardown runs after the grace period covering the write's last
//     publication has elapsed. Nodes unlinked in step 2 may now be
//     demoted and freed. Nodes not demoted are considered still
//     reachable.
//
// Writers are values; the framework never stores them past the Write
// call.
type Writer[N any] interface {
	Setup(*Alloc[N]) error
	WhileReadersExist(head WriteRef[N], pub *Publisher[N]) error
	Teardown(*Collector[N])
}

// WriterFuncs adapts plain functions to [Writer]; nil hooks are
// no-ops. Useful for writes that only need one or two of the hooks.
type WriterFuncs[N any] struct {
	SetupFn    func(*Alloc[N]) error
	MutateFn   func(head WriteRef[N], pub *Publisher[N]) error
	TeardownFn func(*Collector[N])
}

func (w WriterFuncs[N]) Setup(a *Alloc[N]) error {
	if w.SetupFn == nil {
		return nil
	}
	return w.SetupFn(a)
}

func (w WriterFuncs[N]) WhileReadersExist(head WriteRef[N], pub *Publisher[N]) error {
	if w.MutateFn == nil {
		return nil
	}
	return w.MutateFn(head, pub)
}

func (w WriterFuncs[N]) Teardown(c *Collector[N]) {
	if w.TeardownFn != nil {
		w.TeardownFn(c)
	}
}

// Publisher is the capability to move nodes into the published world.
// It is valid only during the WhileReadersExist hook that received
// it; any use outside that phase panics.
type Publisher[N any] struct {
	tx *writeTxn[N]
}

// Promote transfers an unpublished handle into the set of references
// the writer may link or publish, returning it as a write reference.
// The node is still invisible to readers — only installing the
// returned reference somewhere reachable publishes it. Promoting the
// empty handle yields the empty reference. Promoting twice panics.
func (p *Publisher[N]) Promote(u Unpublished[N]) WriteRef[N] {
	tx := p.tx
	if tx.phase.Load() != phaseMutate {
		panic(errPublisherPhase)
	}
	h := u.h
	if h == nil {
		return WriteRef[N]{}
	}
	if h.tx != tx {
		panic(errWrongWrite)
	}
	if h.freed {
		panic(errFreedHandle)
	}
	if h.promoted {
		panic(errDoublePromote)
	}
	h.promoted = true
	return WriteRef[N]{n: h.n, tx: tx}
}

// Publish atomically installs w as the new head and returns the
// previous head as a write reference, so the writer can inspect or
// retire it. Publishing the empty reference empties the root. All
// stores to w's subgraph made before Publish are visible to any
// reader that observes the new head.
func (p *Publisher[N]) Publish(w WriteRef[N]) WriteRef[N] {
	tx := p.tx
	if tx.phase.Load() != phaseMutate {
		panic(errPublisherPhase)
	}
	if w.n != nil {
		w.check()
		if w.tx != tx {
			panic(errWrongWrite)
		}
	}
	prev := tx.root.head.p.Swap(w.n)
	return WriteRef[N]{n: prev, tx: tx}
}

// Collector is the capability to take retired nodes back into
// exclusive writer ownership for destruction. It is valid only during
// the Teardown hook that received it; any use outside that phase
// panics.
type Collector[N any] struct {
	tx *writeTxn[N]
}

// Demote asserts that the referenced node is no longer reachable from
// any published state and returns it as a handle the writer owns.
// The grace period has already elapsed, so the handle may be freed
// immediately. Demoting the empty reference is a no-op returning the
// empty handle; demoting the same node twice panics.
func (c *Collector[N]) Demote(w WriteRef[N]) Unpublished[N] {
	tx := c.tx
	if tx.phase.Load() != phaseTeardown {
		panic(errCollectorPhase)
	}
	if w.n == nil {
		return Unpublished[N]{}
	}
	if w.tx != tx {
		panic(errWrongWrite)
	}
	for _, h := range tx.demoted {
		if h.n == w.n {
			panic(errDoubleDemote)
		}
	}
	h := &handle[N]{n: w.n, tx: tx}
	tx.demoted = append(tx.demoted, h)
	return Unpublished[N]{h: h}
}
