// Package protobufio implements ProtobufIo's four free operations: Send,
// Receive, AsyncSend, AsyncReceive, each a one-shot typed exchange of
// exactly one protocol buffers message over a freshly opened and freshly
// closed Stream. No state is retained between calls — every call builds
// a private IoEngine, performs its one exchange, then deterministically
// stops that engine before returning.
//
// Uses a dial-write-close short-lived foreground operation shape: a bare
// connect/write-or-read/close exchange of one serialized proto.Message,
// with the message type itself supplied by
// google.golang.org/protobuf/proto for serialization and descriptor
// identity.
package protobufio

import (
	"context"
	"net"

	"google.golang.org/protobuf/proto"

	"github.com/hermes-go/hermes/bufpool"
	"github.com/hermes-go/hermes/diag"
	"github.com/hermes-go/hermes/herrors"
	"github.com/hermes-go/hermes/ioengine"
	"github.com/hermes-go/hermes/stream"
)

var sink diag.Sink = diag.NewStderr("[protobuf]")

func assertPrecondition(op string, m proto.Message, port string) error {
	if m == nil || m.ProtoReflect().Descriptor() == nil {
		return herrors.New(herrors.KindConfiguration, op, herrors.ErrInvalidConfig)
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return herrors.New(herrors.KindConfiguration, op, herrors.ErrInvalidConfig)
	}
	return nil
}

// Send synchronously connects to host:port, writes message's serialized
// form, shuts the connection down, and returns the number of bytes
// written.
func Send(host, port string, message proto.Message) (int, error) {
	if err := assertPrecondition("protobufio.Send", message, port); err != nil {
		return 0, err
	}
	payload, err := proto.Marshal(message)
	if err != nil {
		return 0, herrors.New(herrors.KindWrite, "protobufio.Send", err)
	}
	if len(payload) > bufpool.BufferSize {
		return 0, herrors.New(herrors.KindWrite, "protobufio.Send", herrors.ErrOversizePayload)
	}

	engine, err := ioengine.New()
	if err != nil {
		return 0, herrors.New(herrors.KindConfiguration, "protobufio.Send", err)
	}
	engine.Run()
	defer engine.Stop()

	s := stream.New(engine, stream.WithSink(sink))
	if err := s.Connect(host, port); err != nil {
		return 0, err
	}
	defer s.Disconnect()

	return s.Send(payload)
}

// Receive synchronously binds an address-reuse acceptor on port, accepts
// exactly one peer, reads one frame, and parses it into a fresh instance
// of M.
func Receive[M proto.Message](port string, newMessage func() M) (M, error) {
	var zero M
	if err := assertPrecondition("protobufio.Receive", newMessage(), port); err != nil {
		return zero, err
	}

	engine, err := ioengine.New()
	if err != nil {
		return zero, herrors.New(herrors.KindConfiguration, "protobufio.Receive", err)
	}
	engine.Run()
	defer engine.Stop()

	ln, err := acceptorListen(port)
	if err != nil {
		return zero, herrors.New(herrors.KindConnection, "protobufio.Receive", err)
	}
	defer ln.Close()

	conn, err := ln.Accept()
	if err != nil {
		return zero, herrors.New(herrors.KindConnection, "protobufio.Receive", err)
	}

	s := stream.New(engine, stream.WithSink(sink))
	s.Adopt(conn)
	defer s.Disconnect()

	data, err := s.Receive()
	if err != nil {
		return zero, err
	}

	m := newMessage()
	if err := proto.Unmarshal([]byte(data), m); err != nil {
		return zero, herrors.New(herrors.KindRead, "protobufio.Receive", err)
	}
	return m, nil
}

// AsyncSend spawns a dedicated worker to run a private IoEngine,
// performs an asynchronous connect then an asynchronous write, invokes
// onSent (if non-nil) with the byte count on completion, then joins that
// worker before returning.
func AsyncSend(host, port string, message proto.Message, onSent func(int, error)) error {
	if err := assertPrecondition("protobufio.AsyncSend", message, port); err != nil {
		return err
	}
	payload, err := proto.Marshal(message)
	if err != nil {
		return herrors.New(herrors.KindWrite, "protobufio.AsyncSend", err)
	}
	if len(payload) > bufpool.BufferSize {
		return herrors.New(herrors.KindWrite, "protobufio.AsyncSend", herrors.ErrOversizePayload)
	}

	engine, err := ioengine.New()
	if err != nil {
		return herrors.New(herrors.KindConfiguration, "protobufio.AsyncSend", err)
	}
	defer engine.Stop()
	engine.Run()

	s := stream.New(engine, stream.WithSink(sink))
	done := make(chan struct{})
	s.SetWriteHandler(func(n int, err error, _ *stream.Stream) {
		if onSent != nil {
			onSent(n, err)
		}
		close(done)
	})

	var connErr error
	s.AsyncConnect(host, port, func(err error) { connErr = err })
	if connErr != nil {
		s.Disconnect()
		return connErr
	}
	defer s.Disconnect()

	if err := s.AsyncSend(payload); err != nil {
		return err
	}
	<-done
	return nil
}

// AsyncReceive spawns a dedicated worker to run a private IoEngine,
// performs an asynchronous accept then an asynchronous read, parses the
// result into a fresh M, and delivers it through onReceived, then joins
// that worker before returning.
func AsyncReceive[M proto.Message](port string, newMessage func() M, onReceived func(M, error)) error {
	if err := assertPrecondition("protobufio.AsyncReceive", newMessage(), port); err != nil {
		return err
	}

	engine, err := ioengine.New()
	if err != nil {
		return herrors.New(herrors.KindConfiguration, "protobufio.AsyncReceive", err)
	}
	defer engine.Stop()
	engine.Run()

	ln, err := acceptorListen(port)
	if err != nil {
		return herrors.New(herrors.KindConnection, "protobufio.AsyncReceive", err)
	}
	defer ln.Close()

	var conn net.Conn
	accepted := make(chan struct{})
	engine.Post(func() {
		conn, err = ln.Accept()
		close(accepted)
	})
	<-accepted
	if err != nil {
		return herrors.New(herrors.KindConnection, "protobufio.AsyncReceive", err)
	}

	s := stream.New(engine, stream.WithSink(sink))
	s.Adopt(conn)
	defer s.Disconnect()

	done := make(chan struct{})
	s.SetReadHandler(func(data string, err error, _ *stream.Stream) {
		defer close(done)
		var zero M
		if err != nil {
			if onReceived != nil {
				onReceived(zero, err)
			}
			return
		}
		m := newMessage()
		if perr := proto.Unmarshal([]byte(data), m); perr != nil {
			if onReceived != nil {
				onReceived(zero, herrors.New(herrors.KindRead, "protobufio.AsyncReceive", perr))
			}
			return
		}
		if onReceived != nil {
			onReceived(m, nil)
		}
	})

	if err := s.AsyncReceive(); err != nil {
		return err
	}
	<-done
	return nil
}

func acceptorListen(port string) (net.Listener, error) {
	lc := net.ListenConfig{Control: setReuseAddr}
	return lc.Listen(context.Background(), "tcp", net.JoinHostPort("", port))
}
