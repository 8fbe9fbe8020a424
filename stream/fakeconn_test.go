package stream_test

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// fakeConn is a minimal api.NetConn double used to make Stream's
// internals (disconnect exactly-once, short-write, oversize-rejection)
// observable without touching a real socket.
type fakeConn struct {
	mu         sync.Mutex
	closes     int32
	writes     int32
	writeN     int
	writeErr   error
	writeBlock chan struct{}
	readData   []byte
	readErr    error
	readBlock  chan struct{}
	readOnce   bool
	didRead    atomic.Bool
}

func (f *fakeConn) Read(p []byte) (int, error) {
	if f.readBlock != nil {
		<-f.readBlock
	}
	if f.readErr != nil {
		return 0, f.readErr
	}
	f.didRead.Store(true)
	n := copy(p, f.readData)
	return n, nil
}

func (f *fakeConn) Write(p []byte) (int, error) {
	atomic.AddInt32(&f.writes, 1)
	if f.writeBlock != nil {
		<-f.writeBlock
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.writeN > 0 {
		return f.writeN, nil
	}
	return len(p), nil
}

func (f *fakeConn) Close() error {
	atomic.AddInt32(&f.closes, 1)
	return nil
}

func (f *fakeConn) SetDeadline(t time.Time) error { return nil }

func (f *fakeConn) CloseCount() int32 { return atomic.LoadInt32(&f.closes) }

func (f *fakeConn) WriteCount() int32 { return atomic.LoadInt32(&f.writes) }

var _ io.Closer = (*fakeConn)(nil)
