package rcux

// Protocol is the per-type descriptor for nodes of type N. The
// partition of N's fields into reference fields ([Link], bound with
// [RefOf]) and value fields ([Cell], bound with [ValOf]) carries the
// field-level discipline; the Protocol itself carries what applies to
// the node as a whole.
//
// Declare one Protocol and one field handle per field, once, next to
// the node type:
//
//	type item struct {
//		next  rcux.Link[item]
//		score rcux.Cell[int64]
//	}
//
//	var (
//		itemProto = &rcux.Protocol[item]{}
//		itemNext  = rcux.RefOf(func(n *item) *rcux.Link[item] { return &n.next })
//		itemScore = rcux.ValOf(func(n *item) *rcux.Cell[int64] { return &n.score })
//	)
type Protocol[N any] struct {
	// Drop, if non-nil, runs exactly once on every node the framework
	// destroys, after the grace period that covers its retirement.
	Drop func(*N)
}

// RefField binds one Link field of N and derives the typed accessor
// for each reference view. The accessors are what make the discipline
// structural: a read reference can only reach read references, a
// write reference can only install write references of its own write,
// and an unpublished handle cannot be linked anywhere readers can see.
type RefField[N any] struct {
	sel func(*N) *Link[N]
}

// RefOf binds a reference field. The selector must return the address
// of the same Link for every call on the same node.
func RefOf[N any](sel func(*N) *Link[N]) RefField[N] {
	return RefField[N]{sel: sel}
}

// Deref follows the field through a read reference, yielding a read
// reference to the target (or the empty reference). Dereferencing the
// empty reference panics.
func (f RefField[N]) Deref(r ReadRef[N]) ReadRef[N] {
	r.check()
	if r.n == nil {
		panic(errNilDeref)
	}
	return ReadRef[N]{n: f.sel(r.n).p.Load(), slot: r.slot, gen: r.gen}
}

// Get follows the field through a write reference.
func (f RefField[N]) Get(w WriteRef[N]) WriteRef[N] {
	w.check()
	if w.n == nil {
		panic(errNilDeref)
	}
	return WriteRef[N]{n: f.sel(w.n).p.Load(), tx: w.tx}
}

// Set installs v into the field of w. v must be the empty reference
// or a write reference of the same write — a promoted handle or a
// node already reachable. If w is itself reachable from the root,
// the store is the exact moment v's subgraph becomes observable to
// readers.
func (f RefField[N]) Set(w WriteRef[N], v WriteRef[N]) {
	w.check()
	if w.n == nil {
		panic(errNilDeref)
	}
	if w.tx.phase.Load() != phaseMutate {
		panic(errWriteRefStale)
	}
	if v.n != nil {
		v.check()
		if v.tx != w.tx {
			panic(errWrongWrite)
		}
	}
	f.sel(w.n).p.Store(v.n)
}

// Attach cross-links two unpublished handles of the same write during
// Setup. Neither node is visible to readers, so the link is a plain
// initialization, not a publication.
func (f RefField[N]) Attach(u, v Unpublished[N]) {
	h := u.h
	if h == nil {
		panic(errNilDeref)
	}
	if h.freed {
		panic(errFreedHandle)
	}
	if h.promoted {
		panic(errDoublePromote)
	}
	var target *N
	if v.h != nil {
		if v.h.tx != h.tx {
			panic(errWrongWrite)
		}
		if v.h.freed {
			panic(errFreedHandle)
		}
		target = v.h.n
	}
	f.sel(h.n).p.Store(target)
}

// Detach empties the field of a handle the writer owns and returns
// the former target as a handle the writer now owns too. It is how
// Teardown walks a retired subgraph: demote the head, then detach
// link by link, freeing as it goes.
func (f RefField[N]) Detach(u Unpublished[N]) Unpublished[N] {
	h := u.h
	if h == nil {
		panic(errNilDeref)
	}
	if h.freed {
		panic(errFreedHandle)
	}
	l := f.sel(h.n)
	target := l.p.Load()
	if target == nil {
		return Unpublished[N]{}
	}
	l.p.Store(nil)
	nh := &handle[N]{n: target, tx: h.tx}
	h.tx.demoted = append(h.tx.demoted, nh)
	return Unpublished[N]{h: nh}
}

// ValField binds one Cell field of N and derives the typed accessor
// for each reference view.
type ValField[N, T any] struct {
	sel func(*N) *Cell[T]
}

// ValOf binds a value field. The selector must return the address of
// the same Cell for every call on the same node.
func ValOf[N, T any](sel func(*N) *Cell[T]) ValField[N, T] {
	return ValField[N, T]{sel: sel}
}

// Load snapshots the field through a read reference. The snapshot is
// tear-free even while the writer mutates the cell in place.
func (f ValField[N, T]) Load(r ReadRef[N]) T {
	r.check()
	if r.n == nil {
		panic(errNilDeref)
	}
	return f.sel(r.n).load()
}

// Get returns the live value through a write reference.
func (f ValField[N, T]) Get(w WriteRef[N]) T {
	w.check()
	if w.n == nil {
		panic(errNilDeref)
	}
	return f.sel(w.n).live()
}

// Set mutates the field in place through a write reference. Readers
// traversing concurrently observe either the old or the new value,
// never a torn mixture.
func (f ValField[N, T]) Set(w WriteRef[N], v T) {
	w.check()
	if w.n == nil {
		panic(errNilDeref)
	}
	if w.tx.phase.Load() != phaseMutate {
		panic(errWriteRefStale)
	}
	f.sel(w.n).store(v)
}

// Init sets the field of an unpublished handle during Setup.
func (f ValField[N, T]) Init(u Unpublished[N], v T) {
	h := u.h
	if h == nil {
		panic(errNilDeref)
	}
	if h.freed {
		panic(errFreedHandle)
	}
	f.sel(h.n).init(v)
}
