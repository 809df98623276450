package rcux

import (
	"testing"
	"time"
)

func TestEpochTrackerGraceNoReaders(t *testing.T) {
	var tr epochTracker
	tr.init()

	done := make(chan struct{})
	go func() {
		tr.grace()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("grace did not return with no readers")
	}
}

func TestEpochTrackerGraceWaitsForReader(t *testing.T) {
	var tr epochTracker
	tr.init()

	s := tr.register()
	s.enter(&tr)

	done := make(chan struct{})
	go func() {
		tr.grace()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("grace returned while a reader was inside")
	case <-time.After(50 * time.Millisecond):
		// OK, still waiting
	}

	s.exit()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("grace did not return after the reader exited")
	}
}

func TestEpochTrackerLateReaderDoesNotBlockGrace(t *testing.T) {
	var tr epochTracker
	tr.init()

	blocker := tr.register()
	blocker.enter(&tr)

	done := make(chan struct{})
	go func() {
		tr.grace()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	// A reader entering now sees the advanced epoch; it must not
	// extend the wait that only covers pre-existing readers.
	late := tr.register()
	late.enter(&tr)

	blocker.exit()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("grace blocked on a reader that entered after the advance")
	}
	late.exit()
}

func TestEpochTrackerAcquireRelease(t *testing.T) {
	var tr epochTracker
	tr.init()

	a := tr.acquire()
	tr.release(a)
	b := tr.acquire()
	if a != b {
		t.Fatalf("acquire did not reuse the released slot")
	}
	tr.release(b)

	// Two concurrent borrowers must get distinct slots.
	c := tr.acquire()
	d := tr.acquire()
	if c == d {
		t.Fatalf("two concurrent borrowers share a slot")
	}
}

func TestReaderSlotGenInvalidation(t *testing.T) {
	var tr epochTracker
	tr.init()

	s := tr.register()
	s.enter(&tr)
	gen := s.gen.Load()
	s.exit()
	if s.gen.Load() == gen {
		t.Fatal("exit did not advance the slot generation")
	}
}
