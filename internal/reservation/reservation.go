// Package reservation implements the one-shot async latch guacamole uses
// to mark a query cell as "in flight": the scoped acquisition of an
// in-flight computation with guaranteed release on any exit path, success
// or failure.
//
// Unlike a mutex, a Reservation never makes other demanders contend for a
// lock the holder may keep across a long calculation: a Reader's Wait
// merely observes the holder's release, the same way many goroutines can
// cheaply select on a context's Done channel without contending for
// anything. Closing a channel is Go's native broadcast, so releasing is
// rendered as a channel close rather than the flag-plus-single-waker pair
// the Rust source uses (futures::task::AtomicWaker only supports one
// registered waker; Go has no equivalent restriction to work around).
package reservation

import (
	"context"
	"sync"
)

// Holder is the non-cloneable write side of a Reservation. Exactly one
// Holder exists per in-flight query key. Release is idempotent and safe
// to call from a defer on every exit path, including panics recovered
// further up the stack.
type Holder struct {
	once sync.Once
	done chan struct{}
}

// Reader is the cloneable, awaitable read side of a Reservation. Every
// demander that finds a cell already Calculating holds a Reader, not the
// Holder.
type Reader struct {
	done chan struct{}
}

// New creates a fresh Reservation, returning its Holder and one Reader.
// Additional Readers are obtained by calling Reader again on the same
// Holder, or by copying the returned Reader (it is a plain struct wrapping
// a channel, so copies observe the same release).
func New() (*Holder, Reader) {
	done := make(chan struct{})
	h := &Holder{done: done}
	return h, Reader{done: done}
}

// Reader returns another handle to this Holder's release signal.
func (h *Holder) Reader() Reader {
	return Reader{done: h.done}
}

// Release marks the reservation as satisfied and wakes every waiting
// Reader. Safe to call more than once and from multiple goroutines; only
// the first call has any effect.
func (h *Holder) Release() {
	h.once.Do(func() {
		close(h.done)
	})
}

// Wait blocks until the reservation has been released or ctx is done,
// whichever happens first. It returns ctx.Err() in the latter case.
func (r Reader) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done reports, without blocking, whether the reservation has already
// been released.
func (r Reader) Done() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
