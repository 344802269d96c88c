package spsc

import (
	"sync/atomic"

	"github.com/joeycumines/go-spsc/internal/park"
)

// Oneshot coordinating-word states (spec §3.1, §4.1). A value above
// oneshotParked never occurs here: the parked task's Handle lives in the
// separate waiter field, and oneshotParked is the sentinel that says "look there". This is
// the split-word realization of the single-word trick spec §9 explicitly
// allows ("the parked-task slot may be split into a separate word plus a
// small-integer state") — Go's GC means we cannot safely smuggle a *task
// pointer through a bare integer word the way the original C-like encoding
// does, so the coarse state and the waiter pointer are two fields whose
// joint protocol preserves every invariant in spec §3.1.
const (
	oneshotEmpty int32 = iota
	oneshotData
	oneshotDisconnected
	oneshotParked
)

type upgradeKind int32

const (
	upgradeNothingSent upgradeKind = iota
	upgradeSendUsed
	upgradeGoUp
)

// OneshotPacket is the shared state of a single-use, single-producer/
// single-consumer channel (spec §3.1, §4.1). It admits at most one value
// transfer and carries no backing queue: all coordination happens through
// the state word.
//
// T is the value type, P the (externally defined) port handle type
// transported by the upgrade protocol.
type OneshotPacket[T, P any] struct {
	state atomic.Int32
	// waiter holds the parked receiver's Handle while state == oneshotParked.
	// Written (Store) by the receiver strictly before the CAS that sets
	// oneshotParked, and cleared by whichever side transitions state away
	// from oneshotParked. See Recv/Send/Upgrade/DropChan.
	waiter atomic.Pointer[park.Handle]

	// data and upgrade are plain fields. Their visibility to the receiver is
	// entirely mediated by Release stores / Acquire loads on state: every
	// write below happens strictly before the Release operation that
	// publishes it, and every read strictly after the Acquire operation
	// that observes it (spec §5 "Ordering guarantees").
	data        T
	dataValid   bool // true iff data currently holds an un-consumed value
	upgrade     upgradeKind
	upgradePort P

	dropCount atomic.Int32
}

// NewOneshotPacket constructs a packet in state EMPTY / NothingSent.
func NewOneshotPacket[T, P any]() *OneshotPacket[T, P] {
	return &OneshotPacket[T, P]{}
}

// Send attempts to deliver value. It returns false (and drops value) if the
// receiver has already gone (state observed DISCONNECTED). mayReschedule is
// forwarded to the woken receiver's Reawaken, if one was parked.
//
// Precondition (caller's responsibility, a programming error otherwise):
// upgrade slot is NothingSent and the data slot is empty — i.e. Send is
// called at most once per packet.
func (p *OneshotPacket[T, P]) Send(value T, mayReschedule bool) bool {
	if p.upgrade != upgradeNothingSent {
		fatal("oneshot", "send", "send called after the channel was already used")
	}
	p.data = value
	p.dataValid = true
	p.upgrade = upgradeSendUsed
	prior := p.state.Swap(oneshotData) // Release: publishes data + upgrade
	switch prior {
	case oneshotEmpty:
		return true
	case oneshotDisconnected:
		// Receiver already gone; drop the value rather than leak it.
		var zero T
		p.data = zero
		p.dataValid = false
		return false
	case oneshotData:
		fatal("oneshot", "send", "double send observed (DATA state already set)")
		return false
	default:
		// A parked receiver. Wake it; state is left as DATA so it finds
		// data on its next poll.
		h := p.waiter.Swap(nil)
		h.Wake().Reawaken(mayReschedule)
		return true
	}
}

// Sent reports whether Send (or Upgrade) has already consumed this packet's
// single use. Sender-only: per the original design this mirrors an
// unsynchronized read of sender-owned state and must not be called from the
// receiver side.
func (p *OneshotPacket[T, P]) Sent() bool {
	return p.upgrade != upgradeNothingSent
}

// Recv blocks until a value, disconnect, or upgrade is available.
func (p *OneshotPacket[T, P]) Recv() (T, error) {
	if p.state.Load() == oneshotEmpty { // Acquire
		_ = park.Deschedule(1, func(h park.Handle) error {
			hh := h
			p.waiter.Store(&hh)
			if p.state.CompareAndSwap(oneshotEmpty, oneshotParked) { // Acquire+Release
				return nil
			}
			// Lost the race: state must now be DATA or DISCONNECTED.
			p.waiter.Store(nil)
			h.Trash()
			return &park.CancelError{Handle: h}
		})
	}
	return p.TryRecv()
}

// TryRecv polls without blocking.
func (p *OneshotPacket[T, P]) TryRecv() (T, error) {
	switch p.state.Load() { // Acquire
	case oneshotEmpty:
		var zero T
		return zero, errEmpty[P]()
	case oneshotData:
		// The CAS may legitimately fail (the sender may have since moved on
		// to DISCONNECTED via Upgrade); either way we take the data slot.
		p.state.CompareAndSwap(oneshotData, oneshotEmpty) // Acquire
		v := p.data
		var zero T
		p.data = zero
		p.dataValid = false
		return v, nil
	case oneshotDisconnected:
		if p.dataValid {
			v := p.data
			var zero T
			p.data = zero
			p.dataValid = false
			return v, nil
		}
		switch p.upgrade {
		case upgradeGoUp:
			port := p.upgradePort
			p.upgrade = upgradeSendUsed // consumed: a second TryRecv must not re-report Upgraded
			var zeroPort P
			p.upgradePort = zeroPort
			var zero T
			return zero, errUpgraded[P](port)
		default:
			var zero T
			return zero, errDisconnected[P]()
		}
	default: // oneshotParked
		fatal("oneshot", "try_recv", "observed a parked state; only one blocker is ever permitted")
		var zero T
		return zero, errEmpty[P]()
	}
}

// Upgrade replaces this channel with newPort (sender-side). See
// UpgradeResult for the three possible outcomes.
//
// Precondition: upgrade slot is NothingSent or SendUsed (programming error
// to upgrade an already-upgraded packet).
func (p *OneshotPacket[T, P]) Upgrade(newPort P) UpgradeResult[P] {
	if p.upgrade == upgradeGoUp {
		fatal("oneshot", "upgrade", "upgrade called twice on the same packet")
	}
	prevUpgrade := p.upgrade
	p.upgradePort = newPort
	p.upgrade = upgradeGoUp
	prior := p.state.Swap(oneshotDisconnected) // Release
	switch prior {
	case oneshotData, oneshotEmpty:
		logUpgrade("oneshot", "success")
		return UpgradeResult[P]{Outcome: UpSuccess}
	case oneshotDisconnected:
		// Restore the prior upgrade value so the caller gets their port
		// back (via UpgradeResult.Port) and is responsible for dropping it.
		port := p.upgradePort
		p.upgrade = prevUpgrade
		var zero P
		p.upgradePort = zero
		return UpgradeResult[P]{Outcome: UpDisconnected, Port: port}
	default: // oneshotParked
		h := p.waiter.Swap(nil)
		return UpgradeResult[P]{Outcome: UpWoke, Runnable: h.Wake()}
	}
}

// DropChan is called by the sending endpoint when it disappears.
func (p *OneshotPacket[T, P]) DropChan() {
	prior := p.state.Swap(oneshotDisconnected) // SeqCst semantics: Swap on
	// atomic.Int32 is already a full barrier in the Go memory model.
	if prior != oneshotEmpty && prior != oneshotData && prior != oneshotDisconnected {
		h := p.waiter.Swap(nil)
		h.Wake().Reawaken(true)
	}
	p.onDrop()
}

// DropPort is called by the receiving endpoint when it disappears.
func (p *OneshotPacket[T, P]) DropPort() {
	prior := p.state.Swap(oneshotDisconnected) // Acquire-equivalent: we must
	// see any data the sender published before we drain it.
	if prior == oneshotData {
		var zero T
		p.data = zero
		p.dataValid = false
	}
	// A parked-task prior state is impossible here: the receiver is the
	// only possible parker, and it is the one calling DropPort.
	p.onDrop()
}

// onDrop runs the destructor-equivalent assertion once both endpoints have
// called their drop method. Go has no deterministic destructor, so — per
// DESIGN.md — this realizes spec §4.1's "Destructor" check deterministically
// on the second drop call rather than relying on GC finalization timing.
func (p *OneshotPacket[T, P]) onDrop() {
	if p.dropCount.Add(1) != 2 {
		return
	}
	if p.state.Load() != oneshotDisconnected {
		logDropLeak("oneshot", "destructor observed non-DISCONNECTED state after both endpoints dropped")
	}
}
