package stream_test

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/hermes-go/hermes/herrors"
	"github.com/hermes-go/hermes/ioengine"
	"github.com/hermes-go/hermes/stream"
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

func TestStream_Send_SizeBounds(t *testing.T) {
	e := newEngine(t)
	fc := &fakeConn{}

	s := stream.New(e)
	s.Adopt(fc)

	_, err := s.Send(nil)
	require.Error(t, err)
	require.True(t, herrors.Is(err, herrors.KindWrite))
	require.ErrorIs(t, err, herrors.ErrEmptyPayload)

	oversize := make([]byte, 2049)
	_, err = s.Send(oversize)
	require.Error(t, err)
	require.ErrorIs(t, err, herrors.ErrOversizePayload)
	require.Equal(t, int32(0), fc.WriteCount())

	n, err := s.Send([]byte("1"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.Send(make([]byte, 2048))
	require.NoError(t, err)
	require.Equal(t, 2048, n)

	n, err = s.Send([]byte("123456789"))
	require.NoError(t, err)
	require.Equal(t, 9, n)
}

func TestStream_Send_NotConnected(t *testing.T) {
	e := newEngine(t)
	s := stream.New(e)
	_, err := s.Send([]byte("x"))
	require.True(t, herrors.Is(err, herrors.KindNotConnected))
}

func TestStream_Send_ShortWrite(t *testing.T) {
	e := newEngine(t)
	fc := &fakeConn{writeN: 2}
	s := stream.New(e)
	s.Adopt(fc)

	_, err := s.Send([]byte("hello"))
	require.Error(t, err)
	require.ErrorIs(t, err, herrors.ErrShortWrite)
}

func TestStream_Receive_ZeroBytes(t *testing.T) {
	e := newEngine(t)
	fc := &fakeConn{readData: nil}
	s := stream.New(e)
	s.Adopt(fc)

	_, err := s.Receive()
	require.Error(t, err)
	require.ErrorIs(t, err, herrors.ErrZeroBytesRead)
}

func TestStream_Receive_ClosedConnection(t *testing.T) {
	e := newEngine(t)
	fc := &fakeConn{readErr: io.EOF}
	s := stream.New(e)
	s.Adopt(fc)

	_, err := s.Receive()
	require.Error(t, err)
	require.ErrorIs(t, err, herrors.ErrClosedConnection)
	require.False(t, s.Connected())
}

func TestStream_AsyncReceive_NoHandler_ClosedConnection_DoesNotDeadlock(t *testing.T) {
	e := newEngine(t)
	fc := &fakeConn{readErr: io.EOF}
	s := stream.New(e)
	s.Adopt(fc)

	require.NoError(t, s.AsyncReceive())

	require.Eventually(t, func() bool { return !s.Connected() }, time.Second, time.Millisecond)
	require.Equal(t, int32(1), fc.CloseCount())
}

func TestStream_AsyncSend_NoHandler_WriteError_DoesNotDeadlock(t *testing.T) {
	e := newEngine(t)
	fc := &fakeConn{writeErr: io.ErrClosedPipe}
	s := stream.New(e)
	s.Adopt(fc)

	require.NoError(t, s.AsyncSend([]byte("x")))

	require.Eventually(t, func() bool { return !s.Connected() }, time.Second, time.Millisecond)
	require.Equal(t, int32(1), fc.CloseCount())
}

func TestStream_AsyncSend_KeepAlive_DelaysStop(t *testing.T) {
	e := newEngine(t)
	block := make(chan struct{})
	fc := &fakeConn{writeBlock: block}
	s := stream.New(e)
	s.Adopt(fc)

	go func() { _ = s.AsyncSend([]byte("x")) }()
	time.Sleep(10 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while an in-flight AsyncSend still held the keepalive")
	case <-time.After(20 * time.Millisecond):
	}

	close(block)
	<-stopped
}

func TestStream_ConcurrentDisconnect_ExactlyOnce(t *testing.T) {
	e := newEngine(t)
	fc := &fakeConn{}
	s := stream.New(e)
	s.Adopt(fc)

	const k = 100
	var wg sync.WaitGroup
	wg.Add(k)
	for i := 0; i < k; i++ {
		go func() {
			defer wg.Done()
			s.Disconnect()
		}()
	}
	wg.Wait()

	require.False(t, s.Connected())
	require.Equal(t, int32(1), fc.CloseCount())
}
