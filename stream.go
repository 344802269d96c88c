package spsc

import (
	"math"
	"sync/atomic"

	"github.com/joeycumines/go-spsc/internal/park"
	"github.com/joeycumines/go-spsc/internal/queue"
)

// counterDisconnected is the sticky "the opposite endpoint is gone" sentinel
// for StreamPacket.counter (spec §3.2, §4.2). Using math.MinInt64 mirrors the
// original's int::min_value: a value so far from the ±(pending sends, parked
// receivers) range the normal arithmetic below operates in that it can never
// be reached by accident.
const counterDisconnected = int64(math.MinInt64)

type msgKind int8

const (
	msgData msgKind = iota
	msgGoUp
)

// message is the tagged union carried by a StreamPacket's queue: every
// enqueued item is either a value or an upgrade request, so a receiver that
// steals ahead of the counter still sees upgrades in FIFO order with
// everything else (spec §4.2 "messages... interleave").
type message[T, P any] struct {
	kind msgKind
	data T
	port P
}

// StreamPacket is the shared state of an unbounded, single-producer/
// single-consumer value sequence with in-band upgrade support (spec §3.2,
// §4.2). Unlike OneshotPacket it carries a backing queue; the counter below
// exists purely to make blocking/waking decisions without forcing the
// receiver to poll the queue on every send.
//
// T is the value type, P the (externally defined) port handle type
// transported by the upgrade protocol.
type StreamPacket[T, P any] struct {
	queue *queue.Queue[message[T, P]]

	// counter tracks (sends not yet observed by the receiver) minus (a
	// receiver's parking debt). It is the sole source of truth for whether a
	// park attempt will actually block — the queue itself carries no
	// synchronization with the receiver (spec §6.B). See doSend/Recv for the
	// exact state machine; it is a direct translation of the original's
	// counter trick, kept intact (down to the -2 transient case) because
	// simplifying it risks breaking the lossless-wake guarantee (spec §8.4)
	// that the -2 branch exists to preserve under concurrent sends.
	counter atomic.Int64
	// steals counts values this receiver has already popped directly via
	// TryRecv without the counter having been decremented for them yet.
	// Receiver-owned; never touched by the sender.
	steals int

	// toWake holds the parked receiver's Handle exactly as OneshotPacket's
	// waiter field does; written strictly before the counter operation that
	// might observe/trigger a wake, cleared by whichever side consumes it.
	toWake atomic.Pointer[park.Handle]

	// shutdown is "go_home" in the original: set once by DropPort, checked
	// by every doSend so that, after a port disappears, only a bounded
	// number of in-flight sends can still land (Open Question 1: resolved
	// as a SeqCst store here / Acquire-equivalent load in doSend, matching
	// spec.md's explicit resolution of that question).
	shutdown atomic.Bool

	dropCount atomic.Int32
}

// NewStreamPacket constructs an empty, connected StreamPacket. opts may
// override the queue's chunk size via WithQueueChunkSize; any other Option
// is ignored (Stream carries no other per-instance configuration).
func NewStreamPacket[T, P any](opts ...Option) *StreamPacket[T, P] {
	cfg := resolveOptions(opts)
	return &StreamPacket[T, P]{
		queue: queue.New[message[T, P]](cfg.queueChunkSize),
	}
}

// Send enqueues value. It returns false for every send made after the
// receiver has called DropPort, and for a send that races the disconnect and
// finds its value still in the queue (see doSend).
func (p *StreamPacket[T, P]) Send(value T) bool {
	return p.doSend(message[T, P]{kind: msgData, data: value})
}

// Upgrade replaces this channel with newPort, in-band with ordinary values
// so the receiver sees it at the correct point in the sequence (spec §4.2).
// It returns false under the same conditions as Send.
func (p *StreamPacket[T, P]) Upgrade(newPort P) bool {
	ok := p.doSend(message[T, P]{kind: msgGoUp, port: newPort})
	if ok {
		logUpgrade("stream", "enqueued")
	}
	return ok
}

func (p *StreamPacket[T, P]) doSend(msg message[T, P]) bool {
	if p.shutdown.Load() {
		return false
	}

	p.queue.Push(msg)

	newVal := p.counter.Add(1)
	prior := newVal - 1
	switch prior {
	case -1:
		// Exactly balances a parked receiver's debt: wake it.
		p.wakeup()
		return true
	case -2:
		// The receiver parked having already stolen one extra value; this
		// send pays down part of that debt but does not yet cross back to
		// zero, so no wake is due on this call (the next send's prior == -1
		// delivers it).
		return true
	case counterDisconnected:
		// The receiver vanished concurrently with this push. Restore the
		// sticky sentinel (the Add above moved it to MinInt64+1) and check whether our own value is still sitting in
		// the queue — if drop_port already drained it, treat the send as
		// having "succeeded" trivially; if not, it failed to be delivered.
		p.counter.Store(counterDisconnected)
		first, hasFirst := p.queue.Pop()
		_, hasSecond := p.queue.Pop()
		if hasSecond {
			fatal("stream", "send", "more than one message pending immediately after disconnect")
		}
		_ = first
		return !hasFirst
	default:
		if prior < 0 {
			fatal("stream", "send", "counter observed negative outside the parked/disconnected sentinels")
		}
		return true
	}
}

// Recv blocks until a value, disconnect, or upgrade is available.
func (p *StreamPacket[T, P]) Recv() (T, error) {
	if v, err := p.TryRecv(); !isEmptyFailure(err) {
		return v, err
	}

	steals := p.steals
	p.steals = 0
	_ = park.Deschedule(1, func(h park.Handle) error {
		hh := h
		p.toWake.Store(&hh)

		newVal := p.counter.Add(-int64(1 + steals))
		prior := newVal + int64(1+steals)
		switch {
		case prior == counterDisconnected:
			p.counter.Store(counterDisconnected)
			p.toWake.Store(nil)
			h.Trash()
			return &park.CancelError{Handle: h}
		case prior-int64(steals) <= 0:
			// Successfully parked; the eventual sender's wakeup() call
			// reawakens h.
			return nil
		default:
			// A sender snuck in data between our optimistic TryRecv and
			// this deposit; cancel and go straight back to polling.
			p.toWake.Store(nil)
			h.Trash()
			return &park.CancelError{Handle: h}
		}
	})

	v, err := p.TryRecv()
	if err == nil || isUpgradedFailure(err) {
		// This value/upgrade was already accounted for in the counter
		// arithmetic above; undo TryRecv's own steals bookkeeping so it is
		// not double-counted.
		p.steals--
	}
	return v, err
}

// TryRecv polls without blocking.
func (p *StreamPacket[T, P]) TryRecv() (T, error) {
	var zero T
	if msg, ok := p.queue.Pop(); ok {
		p.steals++
		switch msg.kind {
		case msgGoUp:
			return zero, errUpgraded[P](msg.port)
		default:
			return msg.data, nil
		}
	}

	if p.counter.Load() != counterDisconnected {
		return zero, errEmpty[P]()
	}

	// The channel looked disconnected, but a send racing the disconnect may
	// have landed in the window between our failed pop and this load. Check
	// once more before reporting Disconnected, exactly as §4.2 requires.
	if msg, ok := p.queue.Pop(); ok {
		switch msg.kind {
		case msgGoUp:
			return zero, errUpgraded[P](msg.port)
		default:
			return msg.data, nil
		}
	}
	return zero, errDisconnected[P]()
}

// DropChan is called by the sending endpoint when it disappears.
func (p *StreamPacket[T, P]) DropChan() {
	prior := p.counter.Swap(counterDisconnected)
	switch prior {
	case -1:
		p.wakeup()
	case counterDisconnected:
	default:
		if prior < 0 {
			fatal("stream", "drop_chan", "counter negative and not the parked sentinel")
		}
	}
	p.onDrop()
}

// DropPort is called by the receiving endpoint when it disappears. Per
// SPEC_FULL.md's Open Question 2 resolution this keeps the original's
// full-drain retry loop rather than bounding its iteration count: the loop
// is bounded in practice by the number of sends racing the shutdown flag,
// and truncating it early would let live data sit forever in an abandoned
// queue.
func (p *StreamPacket[T, P]) DropPort() {
	p.shutdown.Store(true)

	steals := int64(p.steals)
	for {
		if p.counter.CompareAndSwap(steals, counterDisconnected) {
			break
		}
		if p.counter.Load() == counterDisconnected {
			break
		}
		for {
			if _, ok := p.queue.Pop(); !ok {
				break
			}
			steals++
		}
	}

	p.onDrop()
}

func (p *StreamPacket[T, P]) wakeup() {
	h := p.toWake.Swap(nil)
	h.Wake().Reawaken(true)
}

// onDrop runs the destructor-equivalent assertion once both endpoints have
// called their drop method, mirroring OneshotPacket.onDrop.
func (p *StreamPacket[T, P]) onDrop() {
	if p.dropCount.Add(1) != 2 {
		return
	}
	if p.counter.Load() != counterDisconnected {
		logDropLeak("stream", "destructor observed a non-disconnected counter after both endpoints dropped")
	}
	if p.toWake.Load() != nil {
		logDropLeak("stream", "destructor observed a still-parked receiver after both endpoints dropped")
	}
}

func isEmptyFailure(err error) bool {
	fk, ok := err.(failureKind)
	return ok && fk.failureKind() == Empty
}

func isUpgradedFailure(err error) bool {
	fk, ok := err.(failureKind)
	return ok && fk.failureKind() == UpgradedKind
}
