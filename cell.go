package rcux

import (
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/rcux/internal/opt"
)

// Cell is a value field of a protected node: plain data that the
// serialized writer mutates in place while readers take tear-free
// snapshots.
//
// A Cell pairs a sequence counter with an inline slot of T. Because
// the writer already holds the root's writer lock, publication uses
// the in-lock odd/even increments; a reader retries its two-load
// window until the sequence is even and unchanged. On TSO targets the
// stable-window copy is a plain typed copy; on weak models (and under
// the race detector) uintptr-sized atomic copies are used when T's
// size and alignment permit, otherwise a typed copy is the fallback.
//
// Declare value fields as Cell[T] inside the node struct and bind
// each one with [ValOf]. The zero Cell holds the zero T.
type Cell[T any] struct {
	_    [0]atomic.Uintptr
	seq  atomic.Uintptr
	slot T
}

// load returns a tear-free snapshot. Safe concurrently with store.
func (c *Cell[T]) load() (v T) {
	if s1 := c.seq.Load(); s1&1 == 0 {
		v = c.readSlot()
		if c.seq.Load() == s1 {
			return v
		}
	}
	return c.slowLoad()
}

func (c *Cell[T]) slowLoad() (v T) {
	var spins int
	for {
		if s1 := c.seq.Load(); s1&1 == 0 {
			v = c.readSlot()
			if c.seq.Load() == s1 {
				return v
			}
		}
		delay(&spins)
	}
}

// store publishes v. Must be called with the owning root's writer
// lock held; the odd/even increments need no CAS under that lock.
func (c *Cell[T]) store(v T) {
	c.seq.Add(1)
	c.writeSlot(v)
	c.seq.Add(1)
}

// live returns the current value without entering the read window.
// Only the lock-holding writer may call it.
func (c *Cell[T]) live() T {
	return c.slot
}

// init sets the slot of a node no reader can see yet.
func (c *Cell[T]) init(v T) {
	c.slot = v
}

// readSlot copies the slot using uintptr-sized atomic loads when the
// target is not TSO and alignment/size permit; otherwise a typed copy.
// Must run inside a stable sequence window.
func (c *Cell[T]) readSlot() (v T) {
	if opt.IsTSO_ {
		return c.slot
	}
	ws := unsafe.Sizeof(uintptr(0))
	sz := unsafe.Sizeof(c.slot)
	if sz == 0 {
		return v
	}
	if unsafe.Alignof(c.slot) >= ws && sz%ws == 0 {
		for i := uintptr(0); i < sz/ws; i++ {
			src := (*uintptr)(unsafe.Add(unsafe.Pointer(&c.slot), i*ws))
			dst := (*uintptr)(unsafe.Add(unsafe.Pointer(&v), i*ws))
			*dst = atomic.LoadUintptr(src)
		}
		return v
	}
	return c.slot
}

// writeSlot is the store-side counterpart of readSlot. Must run
// between the odd and even sequence increments.
func (c *Cell[T]) writeSlot(v T) {
	if opt.IsTSO_ {
		c.slot = v
		return
	}
	ws := unsafe.Sizeof(uintptr(0))
	sz := unsafe.Sizeof(c.slot)
	if sz == 0 {
		return
	}
	if unsafe.Alignof(c.slot) >= ws && sz%ws == 0 {
		for i := uintptr(0); i < sz/ws; i++ {
			src := (*uintptr)(unsafe.Add(unsafe.Pointer(&v), i*ws))
			dst := (*uintptr)(unsafe.Add(unsafe.Pointer(&c.slot), i*ws))
			atomic.StoreUintptr(dst, *src)
		}
		return
	}
	c.slot = v
}
