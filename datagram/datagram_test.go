package datagram_test

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hermes-go/hermes/datagram"
	"github.com/hermes-go/hermes/herrors"
	"github.com/hermes-go/hermes/ioengine"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *ioengine.IoEngine {
	t.Helper()
	e, err := ioengine.New(ioengine.WithWorkers(2))
	require.NoError(t, err)
	e.Run()
	t.Cleanup(e.Stop)
	return e
}

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestDatagram_Send_NotConnected(t *testing.T) {
	e := newEngine(t)
	d := datagram.New(e)
	_, err := d.Send([]byte("x"))
	require.True(t, herrors.Is(err, herrors.KindNotConnected))
}

func TestDatagram_Send_SizeBounds(t *testing.T) {
	e := newEngine(t)
	srv := listenLoopback(t)
	_, port, err := net.SplitHostPort(srv.LocalAddr().String())
	require.NoError(t, err)

	d := datagram.New(e)
	require.NoError(t, d.Connect("127.0.0.1", port))
	defer d.Disconnect()

	_, err = d.Send(nil)
	require.ErrorIs(t, err, herrors.ErrEmptyPayload)

	oversize := make([]byte, 2049)
	_, err = d.Send(oversize)
	require.ErrorIs(t, err, herrors.ErrOversizePayload)

	n, err := d.Send([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestDatagram_SendReceive_Roundtrip(t *testing.T) {
	e := newEngine(t)
	srv := listenLoopback(t)
	srvPort := strconv.Itoa(srv.LocalAddr().(*net.UDPAddr).Port)

	d := datagram.New(e)
	require.NoError(t, d.Connect("127.0.0.1", srvPort))
	defer d.Disconnect()

	_, err := d.Send([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, from, err := srv.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	_, err = srv.WriteToUDP([]byte("world"), from)
	require.NoError(t, err)

	data, err := d.Receive()
	require.NoError(t, err)
	require.Equal(t, "world", data)
}

func TestDatagram_AsyncSend_NoHandler_RaceWithDisconnect_DoesNotDeadlock(t *testing.T) {
	e := newEngine(t)
	srv := listenLoopback(t)
	port := strconv.Itoa(srv.LocalAddr().(*net.UDPAddr).Port)

	d := datagram.New(e)
	require.NoError(t, d.Connect("127.0.0.1", port))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = d.AsyncSend([]byte("x"))
	}()
	go func() {
		defer wg.Done()
		d.Disconnect()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AsyncSend racing Disconnect did not complete — possible strand deadlock")
	}

	require.False(t, d.Connected())
}

func TestDatagram_ConcurrentDisconnect_ExactlyOnce(t *testing.T) {
	e := newEngine(t)
	srv := listenLoopback(t)
	port := strconv.Itoa(srv.LocalAddr().(*net.UDPAddr).Port)

	d := datagram.New(e)
	require.NoError(t, d.Connect("127.0.0.1", port))

	const k = 100
	var wg sync.WaitGroup
	wg.Add(k)
	for i := 0; i < k; i++ {
		go func() {
			defer wg.Done()
			d.Disconnect()
		}()
	}
	wg.Wait()

	require.False(t, d.Connected())
}
