package rcux

import (
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/pb"

	"github.com/llxisdsh/rcux/internal/opt"
)

// epochTracker detects grace periods.
//
// Mechanism:
//   - Each registered reader owns a padded slot. Entering a critical
//     section stamps the current global epoch into the slot (a plain
//     atomic store — readers never take locks or perform RMW on the
//     hot path); exiting stores zero.
//   - A writer advances the global epoch and then polls until every
//     slot is zero or at/after the advanced value. Go's atomics are
//     sequentially consistent, so a reader whose stamp the scan did
//     not observe is guaranteed to observe the writer's publication.
//
// Liveness: if readers keep leaving their critical sections, every
// wait terminates. Safety: a reader that entered before the advance
// holds a stamp below the target and is waited for.
type epochTracker struct {
	// global is the epoch counter. It starts at 1 so a zero slot
	// always means quiescent.
	global atomic.Uint64
	nextID atomic.Uint64
	// readers maps slot id to slot. Registration and unregistration
	// run concurrently with grace-period scans; a slot registered
	// mid-scan belongs to a reader that entered after the advance and
	// may be skipped safely.
	readers pb.MapOf[uint64, *readerSlot]
	// spares are registered slots not currently bound to a Reader
	// handle; Root.Read borrows from here.
	spares pb.MapOf[uint64, *readerSlot]
}

// readerSlot is one reader's epoch stamp, padded to its own cache
// line so reader entry/exit never contends with neighbours.
type readerSlot struct {
	id    uint64
	epoch atomic.Uint64 // 0 = quiescent
	// gen increments on every critical-section exit; read references
	// validate their snapshot of it on each access.
	gen atomic.Uint64
	_   [(opt.CacheLineSize_ - unsafe.Sizeof(struct {
		id         uint64
		epoch, gen atomic.Uint64
	}{})%opt.CacheLineSize_) % opt.CacheLineSize_]byte
}

func (t *epochTracker) init() {
	t.global.Store(1)
}

// register adds a slot to the scan set.
func (t *epochTracker) register() *readerSlot {
	s := &readerSlot{id: t.nextID.Add(1)}
	t.readers.Store(s.id, s)
	return s
}

// unregister removes a slot from the scan set. The slot must be
// quiescent.
func (t *epochTracker) unregister(s *readerSlot) {
	t.readers.Delete(s.id)
}

// acquire borrows a spare registered slot, registering a fresh one if
// none is idle.
func (t *epochTracker) acquire() *readerSlot {
	var s *readerSlot
	t.spares.Range(func(id uint64, _ *readerSlot) bool {
		if v, ok := t.spares.LoadAndDelete(id); ok {
			s = v
			return false
		}
		return true
	})
	if s == nil {
		s = t.register()
	}
	return s
}

// release returns a slot to the spare set.
func (t *epochTracker) release(s *readerSlot) {
	t.spares.Store(s.id, s)
}

// enter opens a critical section: stamp first, then load whatever the
// section will traverse.
func (s *readerSlot) enter(t *epochTracker) {
	s.epoch.Store(t.global.Load())
}

// exit closes the critical section and invalidates every read
// reference issued inside it.
func (s *readerSlot) exit() {
	s.epoch.Store(0)
	// Only the slot's current holder writes gen, so load+store suffices.
	s.gen.Store(s.gen.Load() + 1)
}

// grace blocks until every reader critical section that began at or
// before the call has ended.
func (t *epochTracker) grace() {
	target := t.global.Add(1)
	var spins int
	for {
		quiet := true
		t.readers.Range(func(_ uint64, s *readerSlot) bool {
			if e := s.epoch.Load(); e != 0 && e < target {
				quiet = false
				return false
			}
			return true
		})
		if quiet {
			return
		}
		delay(&spins)
	}
}
