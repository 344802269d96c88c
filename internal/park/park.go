// Package park is the task-parking collaborator described in spec §6.A.
//
// The original design models a cooperative green-thread scheduler: a task
// hands away its own handle, suspends, and some other task later wakes it.
// Go's scheduler does not expose "the current goroutine" as a value, so
// Current/Deschedule model the same protocol over a goroutine blocked on a
// private, buffered channel: depositing the Handle into a packet's
// coordinating word is the handoff: from that point only the depositor's
// peer may call Wake, exactly once.
package park

import (
	"errors"
	"runtime"
	"sync/atomic"
)

// Handle is an opaque, consume-once reference to a parked goroutine. It is
// pointer-sized (one word) so it is cheap to store directly in a packet's
// coordinating field.
type Handle struct {
	t *task
}

type task struct {
	wake    chan struct{}
	consumed atomic.Bool
}

// Zero reports whether h is the zero Handle (never produced by Current, but
// useful for callers that store Handle in a struct field and need to know
// whether it has been populated).
func (h Handle) Zero() bool { return h.t == nil }

// Current returns a fresh Handle representing the calling goroutine. The
// caller deposits it into exactly one coordinating word and then either
// calls Wait (to park), or — if the deposit failed — Trash (to cancel).
func Current() Handle {
	return Handle{t: &task{wake: make(chan struct{}, 1)}}
}

// Wait blocks the calling goroutine until some other goroutine calls Wake
// (directly, or indirectly via a Runnable) on h. Wait must only be called by
// the goroutine that obtained h from Current, and only after h has been
// successfully deposited into a coordinating word.
func (h Handle) Wait() {
	<-h.t.wake
}

// Deschedule invokes body with a fresh Handle for the current goroutine,
// then parks until that handle is woken. body is responsible for depositing
// the handle somewhere a peer will later find it (e.g. a CAS on a packet's
// coordinating word). If the deposit loses a race, body should return the
// handle via a *CancelError instead of completing the deposit; Deschedule
// then returns immediately without parking. n mirrors the original
// scheduler's "descheduled task count" parameter; this package only ever
// parks one task at a time, so n exists for interface fidelity and is
// otherwise unused.
func Deschedule(n int, body func(Handle) error) error {
	_ = n
	h := Current()
	if err := body(h); err != nil {
		var c *CancelError
		if errors.As(err, &c) {
			return nil
		}
		return err
	}
	h.Wait()
	return nil
}

// CancelError is returned by a Deschedule body to abort a parking attempt
// that lost a race (e.g. a CAS depositing the handle failed because the
// peer had already published data). It carries the handle back, but
// Deschedule only treats it as a cancelled park: it returns nil without
// parking and does not Trash the handle, so a body that wants the handle
// trashed does so itself before returning.
type CancelError struct {
	Handle Handle
}

func (e *CancelError) Error() string { return "park: deposit cancelled" }

// Runnable is a handle that has been woken but not yet rescheduled. Callers
// that need to decouple "mark ready" from "actually resume" (selection,
// upgrade's UpWoke outcome) hold onto a Runnable and call Reawaken when
// ready.
type Runnable struct {
	h Handle
}

// Wake marks h ready to run and returns the Runnable that performs the
// actual resumption. Wake must be called at most once per Handle; it is the
// caller's responsibility to ensure exactly one of Wake or Trash is ever
// called for a given deposited Handle (testable property §8.4).
func (h Handle) Wake() Runnable {
	if h.t.consumed.Swap(true) {
		panic("park: handle woken or trashed more than once")
	}
	return Runnable{h: h}
}

// Reawaken resumes the parked goroutine. mayReschedule hints whether the
// caller can tolerate yielding the processor to the woken goroutine
// immediately (true) or would rather keep running and let the Go scheduler
// pick it up later (false, the common case inside a hot send path).
func (r Runnable) Reawaken(mayReschedule bool) {
	r.h.t.wake <- struct{}{}
	if mayReschedule {
		runtime.Gosched()
	}
}

// Trash destroys h without scheduling its goroutine to run. It is used to
// cancel a parking attempt that never suspended (the deposit CAS lost a
// race) or to discard a handle reclaimed from a coordinating word that must
// not be woken (e.g. an aborted selection, §4.3).
func (h Handle) Trash() {
	if h.t.consumed.Swap(true) {
		panic("park: handle woken or trashed more than once")
	}
}
