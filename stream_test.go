package spsc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestStream_SendRecvFIFO(t *testing.T) {
	p := NewStreamPacket[int, string]()
	for i := 0; i < 10; i++ {
		require.True(t, p.Send(i))
	}
	for i := 0; i < 10; i++ {
		v, err := p.TryRecv()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	_, err := p.TryRecv()
	f, ok := err.(*Failure[string])
	require.True(t, ok)
	require.Equal(t, Empty, f.Kind)
}

func TestStream_UpgradeInterleavesInOrder(t *testing.T) {
	p := NewStreamPacket[int, string]()
	require.True(t, p.Send(1))
	require.True(t, p.Upgrade("next"))

	v, err := p.TryRecv()
	require.NoError(t, err)
	require.Equal(t, 1, v)

	_, err = p.TryRecv()
	f, ok := err.(*Failure[string])
	require.True(t, ok)
	require.Equal(t, UpgradedKind, f.Kind)
	port, ok := f.Upgraded()
	require.True(t, ok)
	require.Equal(t, "next", port)
}

func TestStream_RecvBlocksUntilSend(t *testing.T) {
	p := NewStreamPacket[int, string]()
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

	p.Send(5)
	select {
	case v := <-result:
		require.Equal(t, 5, v)
	case <-time.After(time.Second):
		t.Fatal("Recv never returned")
	}
}

func TestStream_DropChanWakesParkedReceiver(t *testing.T) {
	p := NewStreamPacket[int, string]()
	done := make(chan error, 1)
	go func() {
		_, err := p.Recv()
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	p.DropChan()

	select {
	case err := <-done:
		f, ok := err.(*Failure[string])
		require.True(t, ok)
		require.Equal(t, Disconnected, f.Kind)
	case <-time.After(time.Second):
		t.Fatal("receiver never woke after DropChan")
	}
}

func TestStream_SendAfterDropPortFails(t *testing.T) {
	p := NewStreamPacket[int, string]()
	p.DropPort()
	require.False(t, p.Send(1))
}

func TestStream_DropPortDrainsConcurrentSends(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewStreamPacket[int, string]()
	var g errgroup.Group
	stop := make(chan struct{})

	// Exactly one producer goroutine: StreamPacket's queue is SPSC, so
	// driving the drain loop in DropPort with more than one concurrent
	// sender would race on the queue itself rather than exercise the
	// bounded in-flight-send drain §4.2 / Open Question 2 describe.
	g.Go(func() error {
		for {
			select {
			case <-stop:
				return nil
			default:
				p.Send(1)
			}
		}
	})

	time.Sleep(5 * time.Millisecond)
	p.DropPort()
	close(stop)
	require.NoError(t, g.Wait())
}

func TestStream_NoDataLossUnderConcurrentSendAndReceive(t *testing.T) {
	defer goleak.VerifyNone(t)

	const n = 2000
	p := NewStreamPacket[int, string]()

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < n; i++ {
			p.Send(i)
		}
		p.DropChan()
		return nil
	})

	received := make([]int, 0, n)
	g.Go(func() error {
		for {
			v, err := p.Recv()
			if err != nil {
				return nil
			}
			received = append(received, v)
		}
	})

	require.NoError(t, g.Wait())
	require.Len(t, received, n)
	for i, v := range received {
		require.Equal(t, i, v)
	}
}
