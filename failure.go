package spsc

import (
	"fmt"

	"github.com/joeycumines/go-spsc/internal/park"
)

// Kind identifies which of the three §3 Failure variants occurred.
type Kind int

const (
	// Empty means a non-blocking read found no data; the channel is still live.
	Empty Kind = iota
	// Disconnected means the opposite endpoint is gone and no data remains.
	Disconnected
	// UpgradedKind means the opposite endpoint replaced this channel with a
	// new port; see Failure.Port.
	UpgradedKind
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "Empty"
	case Disconnected:
		return "Disconnected"
	case UpgradedKind:
		return "Upgraded"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Failure is returned (as an error) by TryRecv/Recv whenever no value was
// transferred. Port is only meaningful when Kind is UpgradedKind; callers
// are obliged to continue on it (§7).
type Failure[P any] struct {
	Kind Kind
	Port P
}

func (f *Failure[P]) Error() string {
	if f.Kind == UpgradedKind {
		return "spsc: upgraded"
	}
	return "spsc: " + f.Kind.String()
}

// Upgraded reports whether f carries a successor port, returning it if so.
func (f *Failure[P]) Upgraded() (P, bool) {
	if f.Kind == UpgradedKind {
		return f.Port, true
	}
	var zero P
	return zero, false
}

// failureKind lets code that does not know P (e.g. StreamPacket.Recv's
// bookkeeping) inspect a Failure's Kind without a generic type assertion.
type failureKind interface{ failureKind() Kind }

func (f *Failure[P]) failureKind() Kind { return f.Kind }

func errEmpty[P any]() error        { return &Failure[P]{Kind: Empty} }
func errDisconnected[P any]() error { return &Failure[P]{Kind: Disconnected} }
func errUpgraded[P any](port P) error {
	return &Failure[P]{Kind: UpgradedKind, Port: port}
}

// UpgradeOutcome is the result of a sender-side Upgrade call.
type UpgradeOutcome int

const (
	// UpSuccess: the receiver will observe DISCONNECTED, then find any
	// pending data before noticing the upgrade.
	UpSuccess UpgradeOutcome = iota
	// UpDisconnected: the channel was already disconnected; the port
	// passed to Upgrade is returned to the caller via UpgradeResult.Port
	// so they can dispose of it.
	UpDisconnected
	// UpWoke: a receiver was parked; UpgradeResult.Runnable must be
	// resumed by the caller (the caller, not the packet, decides when).
	UpWoke
)

// UpgradeResult carries the outcome of OneshotPacket.Upgrade.
// StreamPacket.Upgrade does not use it; it reports a bool.
type UpgradeResult[P any] struct {
	Outcome  UpgradeOutcome
	Port     P             // valid iff Outcome == UpDisconnected
	Runnable park.Runnable // valid iff Outcome == UpWoke
}
