package rcux

import (
	"sync/atomic"
)

// Link is a reference field of a protected node: an owning,
// atomically published link to another node of the same type, or to
// nothing. Declare reference fields as Link[N] inside the node struct
// and bind each one with [RefOf]; all traffic then flows through the
// reference views, which load with acquire and store with release
// semantics. Applications never touch a Link directly.
//
// The zero Link is empty.
type Link[N any] struct {
	p atomic.Pointer[N]
}
