package spsc

import "github.com/joeycumines/go-spsc/internal/park"

// SelectOutcome is the result of StartSelection (spec §4.3).
type SelectOutcome int

const (
	// SelSuccess: the packet now holds handle; it will be woken (via the
	// peer calling Wake, never Trash) exactly once, same as a Recv park.
	SelSuccess SelectOutcome = iota
	// SelCanceled: data or disconnect was already available; the handle
	// was returned uncommitted, to be reused for another branch of the
	// selection or trashed by the caller.
	SelCanceled
	// SelUpgraded: the packet had already been upgraded; select on the
	// carried port instead, using the returned handle.
	SelUpgraded
)

// SelectResult carries the outcome of StartSelection.
type SelectResult[P any] struct {
	Outcome SelectOutcome
	Handle  park.Handle // valid iff Outcome != SelSuccess
	Port    P           // valid iff Outcome == SelUpgraded
}

// CanRecv is a non-destructive poll used to evaluate a selection without
// committing to it. Ok(false) means empty; Ok(true) means data or
// disconnect is available; an error carrying a port means this packet has
// been upgraded and the caller must select on the carried port instead.
func (p *OneshotPacket[T, P]) CanRecv() (bool, error) {
	switch p.state.Load() { // Acquire
	case oneshotEmpty:
		return false, nil
	case oneshotData:
		return true, nil
	case oneshotDisconnected:
		if p.dataValid {
			return true, nil
		}
		if p.upgrade == upgradeGoUp {
			return false, errUpgraded[P](p.upgradePort)
		}
		return true, nil
	default: // oneshotParked: impossible to observe from a non-owning caller
		fatal("oneshot", "can_recv", "observed a parked state; only one blocker is ever permitted")
		return false, nil
	}
}

// StartSelection deposits handle into the packet's coordinating word so a
// peer can later wake it as part of a multi-way wait. See SelectResult for
// the three possible outcomes.
func (p *OneshotPacket[T, P]) StartSelection(handle park.Handle) SelectResult[P] {
	h := handle
	p.waiter.Store(&h)
	if p.state.CompareAndSwap(oneshotEmpty, oneshotParked) { // SeqCst
		return SelectResult[P]{Outcome: SelSuccess}
	}
	p.waiter.Store(nil)
	switch p.state.Load() {
	case oneshotDisconnected:
		if !p.dataValid && p.upgrade == upgradeGoUp {
			return SelectResult[P]{Outcome: SelUpgraded, Handle: handle, Port: p.upgradePort}
		}
		return SelectResult[P]{Outcome: SelCanceled, Handle: handle}
	default: // oneshotData
		return SelectResult[P]{Outcome: SelCanceled, Handle: handle}
	}
}

// AbortSelection reclaims a handle previously deposited via StartSelection.
// It returns true if data arrived between the deposit and the abort (in
// which case the peer already has the handle and will wake it — the caller
// must not touch it again), or false if the abort won the race (in which
// case the handle has been trashed and the caller owns nothing further).
func (p *OneshotPacket[T, P]) AbortSelection() bool {
	if p.state.CompareAndSwap(oneshotParked, oneshotEmpty) { // SeqCst
		h := p.waiter.Swap(nil)
		h.Trash()
		return false
	}
	return true
}
