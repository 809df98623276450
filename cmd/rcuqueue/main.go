// rcuqueue is the concurrency testbench for the rcux framework: a
// singly-linked queue under random enqueue/dequeue writers while
// reader threads fold a minimum over the list.
//
// Usage: rcuqueue <num_readers> <num_writers>
package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/llxisdsh/rcux"
)

// node is the queue element: one protected link, one plain value.
type node struct {
	next  rcux.Link[node]
	value rcux.Cell[int64]
}

var (
	nodeProto = &rcux.Protocol[node]{}
	nodeNext  = rcux.RefOf(func(n *node) *rcux.Link[node] { return &n.next })
	nodeValue = rcux.ValOf(func(n *node) *rcux.Cell[int64] { return &n.value })
)

// maxWritesPerThread is how many operations each writer performs.
const maxWritesPerThread = 5

// benchContext carries the shared state of one run; it replaces
// process-global counters so thread entry points stay testable.
type benchContext struct {
	queue         *rcux.Root[node]
	activeWriters atomic.Int64
	opsPerWriter  int
}

// findMin folds the minimum value over the list. ok is false for the
// empty list.
func findMin(item rcux.ReadRef[node]) (min int64, ok bool) {
	min = math.MaxInt64
	for ; !item.IsNil(); item = nodeNext.Deref(item) {
		if v := nodeValue.Load(item); v < min {
			min = v
		}
		ok = true
	}
	return min, ok
}

// enqueueRandom adds an element with a random value at the head.
type enqueueRandom struct {
	item rcux.Unpublished[node]
}

func (w *enqueueRandom) Setup(a *rcux.Alloc[node]) error {
	w.item = a.New()
	nodeValue.Init(w.item, rand.Int64())
	return nil
}

func (w *enqueueRandom) WhileReadersExist(head rcux.WriteRef[node], pub *rcux.Publisher[node]) error {
	newHead := pub.Promote(w.item)
	nodeNext.Set(newHead, head)
	pub.Publish(newHead)
	return nil
}

func (w *enqueueRandom) Teardown(*rcux.Collector[node]) {}

// dequeueTail unlinks the last element, if any.
type dequeueTail struct {
	removed rcux.WriteRef[node]
}

func (w *dequeueTail) Setup(*rcux.Alloc[node]) error { return nil }

func (w *dequeueTail) WhileReadersExist(ref rcux.WriteRef[node], pub *rcux.Publisher[node]) error {
	if ref.IsNil() {
		return nil
	}
	var prev rcux.WriteRef[node]
	for !nodeNext.Get(ref).IsNil() {
		prev = ref
		ref = nodeNext.Get(ref)
	}
	w.removed = ref
	if prev.IsNil() {
		// only one element in the queue
		pub.Publish(rcux.WriteRef[node]{})
	} else {
		nodeNext.Set(prev, rcux.WriteRef[node]{})
	}
	return nil
}

func (w *dequeueTail) Teardown(col *rcux.Collector[node]) {
	if !w.removed.IsNil() {
		col.Demote(w.removed).Free()
	}
}

// emptyAll unlinks every element and reclaims the whole chain.
type emptyAll struct {
	head rcux.WriteRef[node]
}

func (w *emptyAll) Setup(*rcux.Alloc[node]) error { return nil }

func (w *emptyAll) WhileReadersExist(_ rcux.WriteRef[node], pub *rcux.Publisher[node]) error {
	w.head = pub.Publish(rcux.WriteRef[node]{})
	return nil
}

func (w *emptyAll) Teardown(col *rcux.Collector[node]) {
	for u := col.Demote(w.head); !u.IsNil(); {
		next := nodeNext.Detach(u)
		u.Free()
		u = next
	}
}

func readerLoop(ctx *benchContext) error {
	rd := ctx.queue.Reader()
	defer rd.Close()
	for {
		_ = rd.Read(func(h rcux.ReadRef[node]) error {
			findMin(h)
			return nil
		})
		if ctx.activeWriters.Load() == 0 {
			return nil
		}
		runtime.Gosched()
	}
}

func writerLoop(ctx *benchContext) error {
	defer ctx.activeWriters.Add(-1)
	for range ctx.opsPerWriter {
		var err error
		if rand.IntN(2) == 1 {
			err = ctx.queue.Write(&enqueueRandom{})
		} else {
			err = ctx.queue.Write(&dequeueTail{})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func run(numReaders, numWriters int) error {
	ctx := &benchContext{
		queue:        rcux.NewRoot(nodeProto, rcux.WithDeferredReclaim[node](1024)),
		opsPerWriter: maxWritesPerThread,
	}
	ctx.activeWriters.Store(int64(numWriters))

	var g errgroup.Group
	for range numWriters {
		g.Go(func() error { return writerLoop(ctx) })
	}
	for range numReaders {
		g.Go(func() error { return readerLoop(ctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Free up all memory in the queue.
	if err := ctx.queue.Write(&emptyAll{}); err != nil {
		return err
	}
	if err := ctx.queue.Close(); err != nil {
		return err
	}

	st := ctx.queue.Stats()
	fmt.Printf("writes=%d graces=%d allocs=%d frees=%d\n",
		st.Writes, st.Graces, st.Allocs, st.Frees)
	if st.Allocs != st.Frees {
		return fmt.Errorf("allocation leak: %d allocated, %d freed", st.Allocs, st.Frees)
	}
	return nil
}

func main() {
	if len(os.Args) != 3 {
		fmt.Printf("Format: %s <num_readers> <num_writers>\n", os.Args[0])
		return
	}
	numReaders, err1 := strconv.Atoi(os.Args[1])
	numWriters, err2 := strconv.Atoi(os.Args[2])
	if err1 != nil || err2 != nil || numReaders < 0 || numWriters < 0 {
		fmt.Printf("Format: %s <num_readers> <num_writers>\n", os.Args[0])
		return
	}
	if err := run(numReaders, numWriters); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
