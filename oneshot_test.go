package spsc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-spsc/internal/park"
)

func TestOneshot_SendThenRecv(t *testing.T) {
	p := NewOneshotPacket[int, string]()
	require.True(t, p.Send(42, false))
	require.True(t, p.Sent())
	v, err := p.TryRecv()
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestOneshot_RecvEmptyBeforeSend(t *testing.T) {
	p := NewOneshotPacket[int, string]()
	_, err := p.TryRecv()
	f, ok := err.(*Failure[string])
	require.True(t, ok)
	require.Equal(t, Empty, f.Kind)
}

func TestOneshot_RecvBlocksUntilSend(t *testing.T) {
	p := NewOneshotPacket[int, string]()
	result := make(chan int, 1)
	go func() {
		v, err := p.Recv()
		require.NoError(t, err)
		result <- v
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-result:
		t.Fatal("Recv returned before Send")
	default:
	}

	p.Send(7, true)
	select {
	case v := <-result:
		require.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("Recv never returned")
	}
}

func TestOneshot_SendAfterDropPortFails(t *testing.T) {
	p := NewOneshotPacket[int, string]()
	p.DropPort()
	require.False(t, p.Send(1, false))
}

func TestOneshot_RecvAfterDropChanSeesDisconnected(t *testing.T) {
	p := NewOneshotPacket[int, string]()
	p.DropChan()
	_, err := p.TryRecv()
	f, ok := err.(*Failure[string])
	require.True(t, ok)
	require.Equal(t, Disconnected, f.Kind)
}

func TestOneshot_UpgradeSuccessDeliversToReceiver(t *testing.T) {
	p := NewOneshotPacket[int, string]()
	res := p.Upgrade("next-port")
	require.Equal(t, UpSuccess, res.Outcome)

	_, err := p.TryRecv()
	f, ok := err.(*Failure[string])
	require.True(t, ok)
	require.Equal(t, UpgradedKind, f.Kind)
	port, ok := f.Upgraded()
	require.True(t, ok)
	require.Equal(t, "next-port", port)

	// A second TryRecv must not re-report the upgrade (the slot is consumed).
	_, err = p.TryRecv()
	f, ok = err.(*Failure[string])
	require.True(t, ok)
	require.Equal(t, Disconnected, f.Kind)
}

func TestOneshot_UpgradeAfterDisconnectReturnsPortToCaller(t *testing.T) {
	p := NewOneshotPacket[int, string]()
	p.DropPort()
	res := p.Upgrade("orphaned-port")
	require.Equal(t, UpDisconnected, res.Outcome)
	require.Equal(t, "orphaned-port", res.Port)
}

func TestOneshot_UpgradeWakesParkedReceiver(t *testing.T) {
	p := NewOneshotPacket[int, string]()
	done := make(chan error, 1)
	go func() {
		_, err := p.Recv()
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	res := p.Upgrade("port-2")
	require.Equal(t, UpWoke, res.Outcome)
	res.Runnable.Reawaken(true)

	select {
	case err := <-done:
		f, ok := err.(*Failure[string])
		require.True(t, ok)
		require.Equal(t, UpgradedKind, f.Kind)
	case <-time.After(time.Second):
		t.Fatal("receiver never woke")
	}
}

func TestOneshot_DoubleSendPanics(t *testing.T) {
	p := NewOneshotPacket[int, string]()
	p.Send(1, false)
	require.Panics(t, func() { p.Send(2, false) })
}

func TestOneshot_Selection_CanRecvAndAbort(t *testing.T) {
	p := NewOneshotPacket[int, string]()

	ok, err := p.CanRecv()
	require.NoError(t, err)
	require.False(t, ok)

	h := park.Current()
	res := p.StartSelection(h)
	require.Equal(t, SelSuccess, res.Outcome)

	// Nothing arrived yet: abort wins the race and reclaims the handle.
	require.False(t, p.AbortSelection())

	// The abort returned the packet to EMPTY: CanRecv still reports that
	// nothing is available.
	ok, err = p.CanRecv()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOneshot_Selection_DataArrivesBeforeAbort(t *testing.T) {
	p := NewOneshotPacket[int, string]()
	h := park.Current()
	res := p.StartSelection(h)
	require.Equal(t, SelSuccess, res.Outcome)

	p.Send(99, true)

	// The peer has already woken h; AbortSelection reports true (do not
	// touch h again) and the value is still retrievable via TryRecv.
	require.True(t, p.AbortSelection())
	v, err := p.TryRecv()
	require.NoError(t, err)
	require.Equal(t, 99, v)
}
