// Package stream implements Stream, the single TCP conversation wrapper:
// Connect/AsyncConnect/Disconnect/Send/Receive/AsyncSend/AsyncReceive,
// serialized through an IoEngine strand, enforcing a fixed 2048-byte
// framing policy.
//
// Uses an atomic connected flag, CompareAndSwap-guarded idempotent
// Close, and handler registration against a fixed-buffer read/write on
// one socket; no reconnect — every Stream is single-shot.
package stream

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hermes-go/hermes/api"
	"github.com/hermes-go/hermes/bufpool"
	"github.com/hermes-go/hermes/diag"
	"github.com/hermes-go/hermes/herrors"
	"github.com/hermes-go/hermes/ioengine"
	"github.com/hermes-go/hermes/session"
)

// WriteHandler receives the result of an AsyncSend: the number of bytes
// written, an error (nil on success), and the Stream itself.
type WriteHandler func(n int, err error, s *Stream)

// ReadHandler receives the result of an AsyncReceive: the payload read
// (as a string), an error, and the Stream itself.
type ReadHandler func(data string, err error, s *Stream)

// Stream owns one TCP net.Conn plus its Session and fixed scratch buffer.
// The zero value is not usable; construct with New.
type Stream struct {
	engine *ioengine.IoEngine
	sess   *session.Session
	sink   diag.Sink

	mu   sync.Mutex
	conn api.NetConn
	buf  []byte

	connected atomic.Bool

	handlerMu    sync.Mutex
	writeHandler WriteHandler
	readHandler  ReadHandler
}

// Option configures a Stream at construction.
type Option func(*Stream)

// WithSink overrides the default diagnostic sink.
func WithSink(sink diag.Sink) Option {
	return func(s *Stream) { s.sink = sink }
}

// New constructs a fresh, unconnected Stream bound to engine.
func New(engine *ioengine.IoEngine, opts ...Option) *Stream {
	s := &Stream{
		engine: engine,
		sess:   session.New(),
		sink:   diag.NewStderr("[Messenger]"),
		buf:    bufpool.Get(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Session exposes the Stream's policy bag.
func (s *Stream) Session() *session.Session { return s.sess }

// Connected reports whether the Stream currently owns a live connection.
func (s *Stream) Connected() bool { return s.connected.Load() }

func dialAddr(host, port string) string { return net.JoinHostPort(host, port) }

// Connect synchronously resolves and connects to host:port. On success,
// Connected() becomes true. On any OS error, Connected() remains false and
// a herrors.KindConnection error is returned.
func (s *Stream) Connect(host, port string) error {
	conn, err := net.Dial("tcp", dialAddr(host, port))
	if err != nil {
		return herrors.New(herrors.KindConnection, "Stream.Connect", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)
	return nil
}

// AsyncConnect submits a non-blocking connect to the engine; onConnected,
// if non-nil, runs on completion. AsyncConnect does not return until
// success or failure has been observed exactly once, so the caller can
// issue subsequent operations without racing the handler — a latch
// implemented with a completion channel.
func (s *Stream) AsyncConnect(host, port string, onConnected func(error)) {
	done := make(chan struct{})
	s.engine.Post(func() {
		err := s.Connect(host, port)
		if onConnected != nil {
			onConnected(err)
		}
		close(done)
	})
	<-done
}

// Disconnect idempotently tears down the Stream. Exactly one shutdown-and-
// close runs per Stream even under concurrent callers: the first caller to
// flip connected from true to false posts the close work through the
// strand and waits for it to run; later callers observe connected already
// false and return immediately without error.
func (s *Stream) Disconnect() {
	if !s.connected.CompareAndSwap(true, false) {
		return
	}
	done := make(chan struct{})
	s.engine.PostSerialized(func() {
		s.mu.Lock()
		conn := s.conn
		buf := s.buf
		s.buf = nil
		s.mu.Unlock()

		if conn != nil {
			if sh, ok := conn.(api.Shutdowner); ok {
				_ = sh.CloseWrite()
				_ = sh.CloseRead()
			}
			_ = conn.Close()
		}
		if buf != nil {
			bufpool.Put(buf)
		}
		s.sess.Stop()
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

// Send synchronously writes payload and returns the number of bytes
// written. Payload-size violations (empty or over BufferSize) are
// rejected before the socket is touched.
func (s *Stream) Send(payload []byte) (int, error) {
	if !s.Connected() {
		return 0, herrors.New(herrors.KindNotConnected, "Stream.Send", herrors.ErrNotConnected)
	}
	if err := validatePayload("Stream.Send", payload); err != nil {
		return 0, err
	}

	var n int
	var writeErr error
	done := make(chan struct{})
	s.engine.PostSerialized(func() {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
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
		s.Disconnect()
		return n, herrors.New(herrors.KindWrite, "Stream.Send", writeErr)
	}
	if n != len(payload) {
		return n, herrors.New(herrors.KindWrite, "Stream.Send", herrors.ErrShortWrite)
	}
	return n, nil
}

// Receive synchronously reads at most bufpool.BufferSize bytes using the
// Stream's fixed scratch buffer.
func (s *Stream) Receive() (string, error) {
	if !s.Connected() {
		return "", herrors.New(herrors.KindNotConnected, "Stream.Receive", herrors.ErrNotConnected)
	}

	var n int
	var readErr error
	done := make(chan struct{})
	s.engine.PostSerialized(func() {
		s.mu.Lock()
		conn := s.conn
		buf := s.buf
		s.mu.Unlock()
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
		if errors.Is(readErr, io.EOF) {
			s.Disconnect()
			return "", herrors.New(herrors.KindRead, "Stream.Receive", herrors.ErrClosedConnection)
		}
		return "", herrors.New(herrors.KindRead, "Stream.Receive", readErr)
	}
	if n == 0 {
		return "", herrors.New(herrors.KindRead, "Stream.Receive", herrors.ErrZeroBytesRead)
	}

	s.mu.Lock()
	data := string(s.buf[:n])
	s.mu.Unlock()
	return data, nil
}

// AsyncSend posts a write through the strand; on completion, the
// registered write handler (if any) is invoked with the result. Absent a
// handler, errors are logged and the Stream is disconnected. Holds a
// keepalive on the engine for the lifetime of the posted work, so a
// concurrent Stop cannot tear down the strand or worker pool out from
// under an in-flight write that was never joined by its caller.
func (s *Stream) AsyncSend(payload []byte) error {
	if !s.Connected() {
		return herrors.New(herrors.KindNotConnected, "Stream.AsyncSend", herrors.ErrNotConnected)
	}
	if err := validatePayload("Stream.AsyncSend", payload); err != nil {
		return err
	}

	release := s.engine.KeepAlive()
	s.engine.PostSerialized(func() {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			s.reportWrite(0, herrors.New(herrors.KindNotConnected, "Stream.AsyncSend", herrors.ErrNotConnected), release)
			return
		}
		n, err := conn.Write(payload)
		if err == nil && n != len(payload) {
			err = herrors.ErrShortWrite
		}
		var wrapped error
		if err != nil {
			wrapped = herrors.New(herrors.KindWrite, "Stream.AsyncSend", err)
		}
		s.reportWrite(n, wrapped, release)
	})
	return nil
}

// reportWrite runs inside the strand drain (the goroutine that posted the
// write became the drainer via Post's inline-drain model). Disconnect
// posts its close work back through PostSerialized and blocks on it, so
// calling it here directly would deadlock the drainer against its own
// queue; run it on a fresh goroutine instead. release is the keepalive
// acquired by AsyncSend; it must be called before reportWrite returns on
// every path, including the handler path.
func (s *Stream) reportWrite(n int, err error, release func()) {
	defer release()
	s.handlerMu.Lock()
	h := s.writeHandler
	s.handlerMu.Unlock()
	if h != nil {
		h(n, err, s)
		return
	}
	if err != nil {
		s.sink.Fatal("Stream.AsyncSend", err)
		go s.Disconnect()
	}
}

// AsyncReceive posts a read through the strand; on completion, the
// registered read handler (if any) is invoked, after which the scratch
// buffer is zeroed. Holds a keepalive on the engine for the lifetime of
// the posted work; see AsyncSend.
func (s *Stream) AsyncReceive() error {
	if !s.Connected() {
		return herrors.New(herrors.KindNotConnected, "Stream.AsyncReceive", herrors.ErrNotConnected)
	}

	release := s.engine.KeepAlive()
	s.engine.PostSerialized(func() {
		s.mu.Lock()
		conn := s.conn
		buf := s.buf
		s.mu.Unlock()
		if conn == nil || buf == nil {
			s.reportRead("", herrors.New(herrors.KindNotConnected, "Stream.AsyncReceive", herrors.ErrNotConnected), release)
			return
		}

		n, err := conn.Read(buf)
		var data string
		var wrapped error
		switch {
		case err != nil && errors.Is(err, io.EOF):
			wrapped = herrors.New(herrors.KindRead, "Stream.AsyncReceive", herrors.ErrClosedConnection)
		case err != nil:
			wrapped = herrors.New(herrors.KindRead, "Stream.AsyncReceive", err)
		case n == 0:
			wrapped = herrors.New(herrors.KindRead, "Stream.AsyncReceive", herrors.ErrZeroBytesRead)
		default:
			data = string(buf[:n])
		}
		s.reportRead(data, wrapped, release)

		s.mu.Lock()
		if s.buf != nil {
			for i := range s.buf {
				s.buf[i] = 0
			}
		}
		s.mu.Unlock()
	})
	return nil
}

// reportRead runs inside the strand drain for the same reason
// reportWrite does; see its comment. release is the keepalive acquired
// by AsyncReceive.
func (s *Stream) reportRead(data string, err error, release func()) {
	defer release()
	s.handlerMu.Lock()
	h := s.readHandler
	s.handlerMu.Unlock()
	if h != nil {
		h(data, err, s)
		return
	}
	if err != nil {
		s.sink.Fatal("Stream.AsyncReceive", err)
		go s.Disconnect()
	}
}

// SetWriteHandler replaces the handler invoked on AsyncSend completion.
func (s *Stream) SetWriteHandler(h WriteHandler) {
	s.handlerMu.Lock()
	s.writeHandler = h
	s.handlerMu.Unlock()
}

// SetReadHandler replaces the handler invoked on AsyncReceive completion.
func (s *Stream) SetReadHandler(h ReadHandler) {
	s.handlerMu.Lock()
	s.readHandler = h
	s.handlerMu.Unlock()
}

// Adopt installs an already-established connection (used by TcpServer
// after Accept, and by tests substituting a fake api.NetConn) and marks
// the Stream connected.
func (s *Stream) Adopt(conn api.NetConn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)
}

// String implements fmt.Stringer for diagnostics.
func (s *Stream) String() string {
	return fmt.Sprintf("Stream{connected=%v}", s.Connected())
}
