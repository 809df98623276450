package rcux

import (
	"testing"
)

func mustPanic(t *testing.T, want ContractError, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("no panic, want %q", want)
		}
		if got, ok := r.(ContractError); !ok || got != want {
			t.Fatalf("panic = %v, want %q", r, want)
		}
	}()
	fn()
}

func TestPublisherOutsidePhasePanics(t *testing.T) {
	r := NewRoot(&Protocol[tnode]{})
	var escaped *Publisher[tnode]
	err := r.Write(WriterFuncs[tnode]{
		MutateFn: func(_ WriteRef[tnode], pub *Publisher[tnode]) error {
			escaped = pub
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	mustPanic(t, errPublisherPhase, func() {
		escaped.Publish(WriteRef[tnode]{})
	})
}

func TestCollectorOutsidePhasePanics(t *testing.T) {
	r := NewRoot(&Protocol[tnode]{})
	var escaped *Collector[tnode]
	err := r.Write(WriterFuncs[tnode]{
		TeardownFn: func(col *Collector[tnode]) {
			escaped = col
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	mustPanic(t, errCollectorPhase, func() {
		escaped.Demote(WriteRef[tnode]{})
	})
}

func TestCollectorDuringMutatePanics(t *testing.T) {
	r := NewRoot(&Protocol[tnode]{})
	var stash *Collector[tnode]
	_ = r.Write(WriterFuncs[tnode]{
		TeardownFn: func(col *Collector[tnode]) { stash = col },
	})
	err := r.Write(WriterFuncs[tnode]{
		MutateFn: func(WriteRef[tnode], *Publisher[tnode]) error {
			mustPanic(t, errCollectorPhase, func() {
				stash.Demote(WriteRef[tnode]{})
			})
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestAllocOutsideSetupPanics(t *testing.T) {
	r := NewRoot(&Protocol[tnode]{})
	var escaped *Alloc[tnode]
	err := r.Write(WriterFuncs[tnode]{
		SetupFn: func(a *Alloc[tnode]) error {
			escaped = a
			return nil
		},
		MutateFn: func(WriteRef[tnode], *Publisher[tnode]) error {
			mustPanic(t, errAllocPhase, func() { escaped.New() })
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestDoublePromotePanics(t *testing.T) {
	r := NewRoot(&Protocol[tnode]{})
	var item Unpublished[tnode]
	err := r.Write(WriterFuncs[tnode]{
		SetupFn: func(a *Alloc[tnode]) error {
			item = a.New()
			return nil
		},
		MutateFn: func(_ WriteRef[tnode], pub *Publisher[tnode]) error {
			w := pub.Promote(item)
			pub.Publish(w)
			mustPanic(t, errDoublePromote, func() { pub.Promote(item) })
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestPromoteEmptyHandle(t *testing.T) {
	r := NewRoot(&Protocol[tnode]{})
	err := r.Write(WriterFuncs[tnode]{
		MutateFn: func(_ WriteRef[tnode], pub *Publisher[tnode]) error {
			w := pub.Promote(Unpublished[tnode]{})
			if !w.IsNil() {
				t.Fatal("promoting the empty handle must yield the empty reference")
			}
			pub.Publish(w)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestCrossWriteReferencePanics(t *testing.T) {
	r := NewRoot(&Protocol[tnode]{})
	if err := r.Write(push(1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var stale WriteRef[tnode]
	err := r.Write(WriterFuncs[tnode]{
		MutateFn: func(head WriteRef[tnode], _ *Publisher[tnode]) error {
			stale = head
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	err = r.Write(WriterFuncs[tnode]{
		MutateFn: func(_ WriteRef[tnode], pub *Publisher[tnode]) error {
			mustPanic(t, errWriteRefStale, func() { pub.Publish(stale) })
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestDemoteTwiceSameNodePanics(t *testing.T) {
	r := NewRoot(&Protocol[tnode]{})
	if err := r.Write(push(1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w := &wipeTwice{}
	if err := r.Write(w); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !w.panicked {
		t.Fatal("second Demote of the same node did not panic")
	}
}

type wipeTwice struct {
	head     WriteRef[tnode]
	panicked bool
}

func (w *wipeTwice) Setup(*Alloc[tnode]) error { return nil }

func (w *wipeTwice) WhileReadersExist(_ WriteRef[tnode], pub *Publisher[tnode]) error {
	w.head = pub.Publish(WriteRef[tnode]{})
	return nil
}

func (w *wipeTwice) Teardown(col *Collector[tnode]) {
	u := col.Demote(w.head)
	func() {
		defer func() {
			if r := recover(); r == errDoubleDemote {
				w.panicked = true
			}
		}()
		col.Demote(w.head)
	}()
	u.Free()
}

func TestDoubleFreePanics(t *testing.T) {
	r := NewRoot(&Protocol[tnode]{})
	if err := r.Write(push(1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var retired WriteRef[tnode]
	err := r.Write(WriterFuncs[tnode]{
		MutateFn: func(_ WriteRef[tnode], pub *Publisher[tnode]) error {
			retired = pub.Publish(WriteRef[tnode]{})
			return nil
		},
		TeardownFn: func(col *Collector[tnode]) {
			u := col.Demote(retired)
			u.Free()
			mustPanic(t, errDoubleFree, func() { u.Free() })
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestDemoteEmptyIsNoop(t *testing.T) {
	r := NewRoot(&Protocol[tnode]{})
	err := r.Write(WriterFuncs[tnode]{
		TeardownFn: func(col *Collector[tnode]) {
			u := col.Demote(WriteRef[tnode]{})
			if !u.IsNil() {
				t.Fatal("demoting the empty reference must yield the empty handle")
			}
			u.Free() // freeing the empty handle is a no-op
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestMultiplePublishesSpanLastGrace(t *testing.T) {
	r := NewRoot(&Protocol[tnode]{})
	var a, b Unpublished[tnode]
	var transient WriteRef[tnode]
	err := r.Write(WriterFuncs[tnode]{
		SetupFn: func(al *Alloc[tnode]) error {
			a = al.New()
			tnodeVal.Init(a, 1)
			b = al.New()
			tnodeVal.Init(b, 2)
			return nil
		},
		MutateFn: func(_ WriteRef[tnode], pub *Publisher[tnode]) error {
			first := pub.Promote(a)
			prev := pub.Publish(first)
			if !prev.IsNil() {
				t.Fatal("fresh root published a non-empty previous head")
			}
			second := pub.Promote(b)
			prev = pub.Publish(second)
			if prev.IsNil() || tnodeVal.Get(prev) != 1 {
				t.Fatal("second publish did not return the first head")
			}
			transient = prev
			return nil
		},
		TeardownFn: func(col *Collector[tnode]) {
			col.Demote(transient).Free()
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := listValues(t, r); len(got) != 1 || got[0] != 2 {
		t.Fatalf("list = %v, want [2]", got)
	}
	st := r.Stats()
	if st.Allocs != 2 || st.Frees != 1 {
		t.Fatalf("allocs=%d frees=%d, want 2/1", st.Allocs, st.Frees)
	}
}
