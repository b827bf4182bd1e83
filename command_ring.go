// command_ring.go - single-producer/single-consumer command ring,
// spec.md §5 "Synchronization discipline": live MIDI input and other
// control-thread requests that carry a payload (as opposed to a bare
// scalar the control thread can just store atomically) are queued here
// and drained by the audio thread at the start of every Song.RenderTick
// (once per output frame).
//
// Grounded on the teacher's AHXPlayer staged-register/generation-counter
// pattern (ahx_player.go's playGen/playPtrStaged: the control thread
// stages a value, the audio thread picks it up on its own schedule,
// never blocking on the writer). This generalises that single staged
// register into a proper bounded ring so more than one pending command
// survives between audio callbacks.

package bae

import "sync/atomic"

// commandRing is a bounded SPSC queue of T. One goroutine may call Push,
// a (possibly different) single goroutine may call Drain; both may run
// concurrently without locking. Capacity is rounded up to a power of
// two so index wrapping is a mask instead of a modulo.
type commandRing[T any] struct {
	buf  []T
	mask uint64
	head atomic.Uint64 // next slot Push will write
	tail atomic.Uint64 // next slot Drain will read
}

func newCommandRing[T any](capacity int) *commandRing[T] {
	n := 1
	for n < capacity {
		n <<= 1
	}
	if n < 1 {
		n = 1
	}
	return &commandRing[T]{
		buf:  make([]T, n),
		mask: uint64(n - 1),
	}
}

// Push enqueues cmd. Returns false if the ring is full (spec.md §5:
// callers must cope with backpressure rather than the audio thread
// ever blocking).
func (r *commandRing[T]) Push(cmd T) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= uint64(len(r.buf)) {
		return false
	}
	r.buf[head&r.mask] = cmd
	r.head.Store(head + 1)
	return true
}

// Drain calls fn once per queued command, in FIFO order, removing each
// as it is delivered. Song.RenderTick calls it on the audio thread at
// the start of every output frame.
func (r *commandRing[T]) Drain(fn func(T)) {
	tail := r.tail.Load()
	head := r.head.Load()
	for tail != head {
		fn(r.buf[tail&r.mask])
		var zero T
		r.buf[tail&r.mask] = zero
		tail++
	}
	r.tail.Store(tail)
}

// Len reports how many commands are currently queued (approximate if
// called concurrently with Push/Drain; used only for diagnostics).
func (r *commandRing[T]) Len() int {
	return int(r.head.Load() - r.tail.Load())
}
