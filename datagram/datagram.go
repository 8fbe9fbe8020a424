// Package datagram implements Datagram, the UDP counterpart to
// stream.Stream: the same method set as Stream (Connect/AsyncConnect/
// Disconnect/Send/Receive/AsyncSend/AsyncReceive), the same fixed
// 2048-byte framing policy, but backed by net.UDPConn instead of a TCP
// net.Conn. Connect binds a default peer via net.DialUDP; every Send
// after that targets that one peer, and the connected socket only
// receives datagrams from that peer. One send is one datagram, one receive is one datagram — no
// reassembly, no multi-peer fan-out, no retry.
//
// Grounded the same way stream.Stream is grounded: an atomic connected
// flag and idempotent close, fixed-buffer read/write against one socket
// — re-targeted from a TCP net.Conn onto *net.UDPConn.
package datagram

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hermes-go/hermes/bufpool"
	"github.com/hermes-go/hermes/diag"
	"github.com/hermes-go/hermes/herrors"
	"github.com/hermes-go/hermes/ioengine"
	"github.com/hermes-go/hermes/session"
)

// WriteHandler receives the result of an AsyncSend.
type WriteHandler func(n int, err error, d *Datagram)

// ReadHandler receives the result of an AsyncReceive.
type ReadHandler func(data string, err error, d *Datagram)

// Datagram owns one UDP socket bound to a single default peer, plus its
// Session and fixed scratch buffer. The zero value is not usable;
// construct with New.
type Datagram struct {
	engine *ioengine.IoEngine
	sess   *session.Session
	sink   diag.Sink

	mu   sync.Mutex
	conn *net.UDPConn
	buf  []byte

	connected atomic.Bool

	handlerMu    sync.Mutex
	writeHandler WriteHandler
	readHandler  ReadHandler
}

// Option configures a Datagram at construction.
type Option func(*Datagram)

// WithSink overrides the default diagnostic sink.
func WithSink(sink diag.Sink) Option {
	return func(d *Datagram) { d.sink = sink }
}

// New constructs a fresh, unconnected Datagram bound to engine.
func New(engine *ioengine.IoEngine, opts ...Option) *Datagram {
	d := &Datagram{
		engine: engine,
		sess:   session.New(),
		sink:   diag.NewStderr("[Messenger]"),
		buf:    bufpool.Get(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Session exposes the Datagram's policy bag.
func (d *Datagram) Session() *session.Session { return d.sess }

// Connected reports whether the Datagram currently owns a bound socket.
func (d *Datagram) Connected() bool { return d.connected.Load() }

// Connect resolves host:port and binds it as the default peer for
// subsequent Send/Receive calls via net.DialUDP.
func (d *Datagram) Connect(host, port string) error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return herrors.New(herrors.KindConnection, "Datagram.Connect", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return herrors.New(herrors.KindConnection, "Datagram.Connect", err)
	}
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
	d.connected.Store(true)
	return nil
}

// AsyncConnect submits a non-blocking connect to the engine; onConnected,
// if non-nil, runs on completion. AsyncConnect blocks until the outcome
// has been observed exactly once, mirroring stream.Stream.AsyncConnect.
func (d *Datagram) AsyncConnect(host, port string, onConnected func(error)) {
	done := make(chan struct{})
	d.engine.Post(func() {
		err := d.Connect(host, port)
		if onConnected != nil {
			onConnected(err)
		}
		close(done)
	})
	<-done
}

// Disconnect idempotently tears down the Datagram. Exactly one close runs
// per Datagram even under concurrent callers.
func (d *Datagram) Disconnect() {
	if !d.connected.CompareAndSwap(true, false) {
		return
	}
	done := make(chan struct{})
	d.engine.PostSerialized(func() {
		d.mu.Lock()
		conn := d.conn
		buf := d.buf
		d.buf = nil
		d.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		if buf != nil {
			bufpool.Put(buf)
		}
		d.sess.Stop()
		close(done)
	})
	<-done
}

func validatePayload(op string, payload []byte) error {
	switch {
	case len(payload) == 0:
		return herrors.New(herrors.KindWrite, op, herrors.ErrEmptyPayload)
	case len(payload) > bufpool.BufferSize:
		return herrors.New(herrors.KindWrite, op, herrors.ErrOversizePayload)
	default:
		return nil
	}
}

// Send synchronously writes payload to the bound default peer.
// Payload-size violations are rejected before the socket is touched.
func (d *Datagram) Send(payload []byte) (int, error) {
	if !d.Connected() {
		return 0, herrors.New(herrors.KindNotConnected, "Datagram.Send", herrors.ErrNotConnected)
	}
	if err := validatePayload("Datagram.Send", payload); err != nil {
		return 0, err
	}

	var n int
	var writeErr error
	done := make(chan struct{})
	d.engine.PostSerialized(func() {
		d.mu.Lock()
		conn := d.conn
		d.mu.Unlock()
		if conn == nil {
			writeErr = herrors.ErrNotConnected
			close(done)
			return
		}
		n, writeErr = conn.Write(payload)
		close(done)
	})
	<-done

	if writeErr != nil {
		d.Disconnect()
		return n, herrors.New(herrors.KindWrite, "Datagram.Send", writeErr)
	}
	if n != len(payload) {
		return n, herrors.New(herrors.KindWrite, "Datagram.Send", herrors.ErrShortWrite)
	}
	return n, nil
}

// Receive synchronously reads at most bufpool.BufferSize bytes from the
// default peer bound by Connect into the Datagram's fixed scratch
// buffer; datagrams from other sources are not delivered to the
// connected socket.
func (d *Datagram) Receive() (string, error) {
	if !d.Connected() {
		return "", herrors.New(herrors.KindNotConnected, "Datagram.Receive", herrors.ErrNotConnected)
	}

	var n int
	var readErr error
	done := make(chan struct{})
	d.engine.PostSerialized(func() {
		d.mu.Lock()
		conn := d.conn
		buf := d.buf
		d.mu.Unlock()
		if conn == nil || buf == nil {
			readErr = herrors.ErrNotConnected
			close(done)
			return
		}
		n, readErr = conn.Read(buf)
		close(done)
	})
	<-done

	if readErr != nil {
		if errors.Is(readErr, net.ErrClosed) {
			return "", herrors.New(herrors.KindRead, "Datagram.Receive", herrors.ErrClosedConnection)
		}
		return "", herrors.New(herrors.KindRead, "Datagram.Receive", readErr)
	}
	if n == 0 {
		return "", herrors.New(herrors.KindRead, "Datagram.Receive", herrors.ErrZeroBytesRead)
	}

	d.mu.Lock()
	data := string(d.buf[:n])
	d.mu.Unlock()
	return data, nil
}

// AsyncSend posts a write through the strand; on completion, the
// registered write handler (if any) is invoked with the result. Holds a
// keepalive on the engine for the lifetime of the posted work, so a
// concurrent Stop cannot tear down the strand or worker pool out from
// under an in-flight write that was never joined by its caller.
func (d *Datagram) AsyncSend(payload []byte) error {
	if !d.Connected() {
		return herrors.New(herrors.KindNotConnected, "Datagram.AsyncSend", herrors.ErrNotConnected)
	}
	if err := validatePayload("Datagram.AsyncSend", payload); err != nil {
		return err
	}

	release := d.engine.KeepAlive()
	d.engine.PostSerialized(func() {
		d.mu.Lock()
		conn := d.conn
		d.mu.Unlock()
		if conn == nil {
			d.reportWrite(0, herrors.New(herrors.KindNotConnected, "Datagram.AsyncSend", herrors.ErrNotConnected), release)
			return
		}
		n, err := conn.Write(payload)
		if err == nil && n != len(payload) {
			err = herrors.ErrShortWrite
		}
		var wrapped error
		if err != nil {
			wrapped = herrors.New(herrors.KindWrite, "Datagram.AsyncSend", err)
		}
		d.reportWrite(n, wrapped, release)
	})
	return nil
}

// reportWrite runs inside the strand drain (the goroutine that posted
// the write became the drainer via Post's inline-drain model).
// Disconnect posts its close work back through PostSerialized and
// blocks on it, so calling it here directly would deadlock the drainer
// against its own queue; run it on a fresh goroutine instead. release is
// the keepalive acquired by AsyncSend.
func (d *Datagram) reportWrite(n int, err error, release func()) {
	defer release()
	d.handlerMu.Lock()
	h := d.writeHandler
	d.handlerMu.Unlock()
	if h != nil {
		h(n, err, d)
		return
	}
	if err != nil {
		d.sink.Fatal("Datagram.AsyncSend", err)
		go d.Disconnect()
	}
}

// AsyncReceive posts a read through the strand; on completion, the
// registered read handler (if any) is invoked, after which the scratch
// buffer is zeroed. Holds a keepalive on the engine for the lifetime of
// the posted work; see AsyncSend.
func (d *Datagram) AsyncReceive() error {
	if !d.Connected() {
		return herrors.New(herrors.KindNotConnected, "Datagram.AsyncReceive", herrors.ErrNotConnected)
	}

	release := d.engine.KeepAlive()
	d.engine.PostSerialized(func() {
		d.mu.Lock()
		conn := d.conn
		buf := d.buf
		d.mu.Unlock()
		if conn == nil || buf == nil {
			d.reportRead("", herrors.New(herrors.KindNotConnected, "Datagram.AsyncReceive", herrors.ErrNotConnected), release)
			return
		}

		n, err := conn.Read(buf)
		var data string
		var wrapped error
		switch {
		case err != nil && errors.Is(err, net.ErrClosed):
			wrapped = herrors.New(herrors.KindRead, "Datagram.AsyncReceive", herrors.ErrClosedConnection)
		case err != nil:
			wrapped = herrors.New(herrors.KindRead, "Datagram.AsyncReceive", err)
		case n == 0:
			wrapped = herrors.New(herrors.KindRead, "Datagram.AsyncReceive", herrors.ErrZeroBytesRead)
		default:
			data = string(buf[:n])
		}
		d.reportRead(data, wrapped, release)

		d.mu.Lock()
		if d.buf != nil {
			for i := range d.buf {
				d.buf[i] = 0
			}
		}
		d.mu.Unlock()
	})
	return nil
}

// reportRead runs inside the strand drain for the same reason
// reportWrite does; see its comment. release is the keepalive acquired
// by AsyncReceive.
func (d *Datagram) reportRead(data string, err error, release func()) {
	defer release()
	d.handlerMu.Lock()
	h := d.readHandler
	d.handlerMu.Unlock()
	if h != nil {
		h(data, err, d)
		return
	}
	if err != nil {
		d.sink.Fatal("Datagram.AsyncReceive", err)
		go d.Disconnect()
	}
}

// SetWriteHandler replaces the handler invoked on AsyncSend completion.
func (d *Datagram) SetWriteHandler(h WriteHandler) {
	d.handlerMu.Lock()
	d.writeHandler = h
	d.handlerMu.Unlock()
}

// SetReadHandler replaces the handler invoked on AsyncReceive completion.
func (d *Datagram) SetReadHandler(h ReadHandler) {
	d.handlerMu.Lock()
	d.readHandler = h
	d.handlerMu.Unlock()
}

// String implements fmt.Stringer for diagnostics.
func (d *Datagram) String() string {
	return fmt.Sprintf("Datagram{connected=%v}", d.Connected())
}
