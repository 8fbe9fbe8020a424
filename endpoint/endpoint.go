// Package endpoint implements Endpoint, the user-facing role-and-protocol
// handle: TcpClient, TcpServer, UdpClient, UdpServer, resolved at
// construction from a role string and a protocol string (both matched
// case-insensitively) plus an async flag. An unresolved combination fails construction with a
// herrors.KindConfiguration error before any socket is opened.
//
// Uses an accept loop running as a goroutine racing a shutdown channel,
// plus functional-options construction, driving a plain TCP/UDP accept
// loop with a worker pool of goroutines instead of OS threads.
package endpoint

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hermes-go/hermes/affinity"
	"github.com/hermes-go/hermes/datagram"
	"github.com/hermes-go/hermes/diag"
	"github.com/hermes-go/hermes/herrors"
	"github.com/hermes-go/hermes/internal/concurrency"
	"github.com/hermes-go/hermes/ioengine"
	"github.com/hermes-go/hermes/stream"
)

// Role selects which side of a connection an Endpoint plays.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Protocol selects the transport an Endpoint rides on.
type Protocol int

const (
	ProtocolTCP Protocol = iota
	ProtocolUDP
)

func parseRole(s string) (Role, bool) {
	switch s {
	case "client":
		return RoleClient, true
	case "server":
		return RoleServer, true
	default:
		return 0, false
	}
}

func parseProtocol(s string) (Protocol, bool) {
	switch s {
	case "tcp":
		return ProtocolTCP, true
	case "udp":
		return ProtocolUDP, true
	default:
		return 0, false
	}
}

// DefaultWorkerPoolSize is the default number of goroutines driving a
// TcpServer's asynchronous accept loop.
const DefaultWorkerPoolSize = 100

// ConnectHook fires once per successful connect/accept.
type ConnectHook func()

// DisconnectHook fires once per disconnect.
type DisconnectHook func()

// Endpoint is the polymorphic role/protocol handle. Construct with New;
// the zero value is not usable.
type Endpoint struct {
	role     Role
	protocol Protocol
	async    bool
	host     string
	port     string

	sink diag.Sink
	pool int
	numa *int

	engine *ioengine.IoEngine

	mu       sync.Mutex
	str      *stream.Stream
	dgr      *datagram.Datagram
	listener net.Listener
	udpConn  *net.UDPConn

	connected atomic.Bool
	running   atomic.Bool

	hookMu          sync.Mutex
	connectHook     ConnectHook
	disconnectHook  DisconnectHook

	workers *concurrency.WorkerPool
	stopCh  chan struct{}
}

// Option configures an Endpoint at construction.
type Option func(*Endpoint)

// WithSink overrides the default diagnostic sink.
func WithSink(sink diag.Sink) Option {
	return func(e *Endpoint) { e.sink = sink }
}

// WithWorkerPoolSize overrides THREAD_POOL for a TcpServer's accept
// loop. Meaningless (ignored) outside RoleServer+ProtocolTCP+async.
func WithWorkerPoolSize(n int) Option {
	return func(e *Endpoint) {
		if n > 0 {
			e.pool = n
		}
	}
}

// WithNUMANode requests best-effort CPU affinity for the accept-loop
// worker pool: node is passed as the CPU id to one affinity.SetAffinity
// call, submitted as a single pool task, which pins the OS thread of
// whichever worker runs it. Worker goroutines are not locked to their
// OS threads. Advisory only; never affects correctness.
func WithNUMANode(node int) Option {
	return func(e *Endpoint) { e.numa = &node }
}

// New resolves role/protocol/async into a concrete Endpoint. host
// defaults to "127.0.0.1" when empty. An unresolved role/protocol
// combination, or a non-numeric port, fails with a
// herrors.KindConfiguration error; no socket is opened either way.
func New(role, protocol string, async bool, port string, opts ...Option) (*Endpoint, error) {
	r, ok := parseRole(strings.ToLower(role))
	if !ok {
		return nil, herrors.New(herrors.KindConfiguration, "endpoint.New", herrors.ErrInvalidConfig)
	}
	p, ok := parseProtocol(strings.ToLower(protocol))
	if !ok {
		return nil, herrors.New(herrors.KindConfiguration, "endpoint.New", herrors.ErrInvalidConfig)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil, herrors.New(herrors.KindConfiguration, "endpoint.New", herrors.ErrInvalidConfig)
	}

	engine, err := ioengine.New()
	if err != nil {
		return nil, herrors.New(herrors.KindConfiguration, "endpoint.New", err)
	}

	e := &Endpoint{
		role:     r,
		protocol: p,
		async:    async,
		host:     "127.0.0.1",
		port:     port,
		sink:     diag.NewStderr("[Messenger]"),
		pool:     DefaultWorkerPoolSize,
		engine:   engine,
		stopCh:   make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// WithHost overrides the default "127.0.0.1" bind/dial host.
func WithHost(host string) Option {
	return func(e *Endpoint) {
		if host != "" {
			e.host = host
		}
	}
}

// SetConnectHook installs the hook fired once per successful
// connect/accept.
func (e *Endpoint) SetConnectHook(h ConnectHook) {
	e.hookMu.Lock()
	e.connectHook = h
	e.hookMu.Unlock()
}

// SetDisconnectHook installs the hook fired once per disconnect.
func (e *Endpoint) SetDisconnectHook(h DisconnectHook) {
	e.hookMu.Lock()
	e.disconnectHook = h
	e.hookMu.Unlock()
}

func (e *Endpoint) fireConnect() {
	e.hookMu.Lock()
	h := e.connectHook
	e.hookMu.Unlock()
	if h != nil {
		h()
	}
}

func (e *Endpoint) fireDisconnect() {
	e.hookMu.Lock()
	h := e.disconnectHook
	e.hookMu.Unlock()
	if h != nil {
		h()
	}
}

// Connected reports whether the Endpoint currently owns a live peer.
func (e *Endpoint) Connected() bool { return e.connected.Load() }

// Addr returns the bound local address for a server Endpoint once Run
// has created its listener/socket, or nil before that or for a client.
func (e *Endpoint) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener != nil {
		return e.listener.Addr()
	}
	if e.udpConn != nil {
		return e.udpConn.LocalAddr()
	}
	return nil
}

// Run activates the Endpoint: a synchronous client blocking-connects; an
// asynchronous client submits an async connect and waits for its
// outcome; a synchronous TCP/UDP server blocking-accepts (or binds, for
// UDP) one peer; an asynchronous TcpServer spawns its worker pool and
// keeps exactly one outstanding Accept at all times.
func (e *Endpoint) Run() error {
	if !e.running.CompareAndSwap(false, true) {
		return nil
	}
	e.engine.Run()

	switch {
	case e.role == RoleClient && e.protocol == ProtocolTCP:
		return e.runTCPClient()
	case e.role == RoleClient && e.protocol == ProtocolUDP:
		return e.runUDPClient()
	case e.role == RoleServer && e.protocol == ProtocolTCP:
		return e.runTCPServer()
	case e.role == RoleServer && e.protocol == ProtocolUDP:
		return e.runUDPServer()
	default:
		return herrors.New(herrors.KindConfiguration, "Endpoint.Run", herrors.ErrInvalidConfig)
	}
}

func (e *Endpoint) runTCPClient() error {
	s := stream.New(e.engine, stream.WithSink(e.sink))
	if e.async {
		var connErr error
		s.AsyncConnect(e.host, e.port, func(err error) { connErr = err })
		if connErr != nil {
			return connErr
		}
	} else if err := s.Connect(e.host, e.port); err != nil {
		return err
	}
	e.mu.Lock()
	e.str = s
	e.mu.Unlock()
	e.connected.Store(true)
	e.fireConnect()
	return nil
}

func (e *Endpoint) runUDPClient() error {
	d := datagram.New(e.engine, datagram.WithSink(e.sink))
	if e.async {
		var connErr error
		d.AsyncConnect(e.host, e.port, func(err error) { connErr = err })
		if connErr != nil {
			return connErr
		}
	} else if err := d.Connect(e.host, e.port); err != nil {
		return err
	}
	e.mu.Lock()
	e.dgr = d
	e.mu.Unlock()
	e.connected.Store(true)
	e.fireConnect()
	return nil
}

func reuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{Control: setReuseAddr}
}

func (e *Endpoint) runTCPServer() error {
	lc := reuseAddrListenConfig()
	ln, err := lc.Listen(context.Background(), "tcp", net.JoinHostPort(e.host, e.port))
	if err != nil {
		return herrors.New(herrors.KindConnection, "Endpoint.Run", err)
	}
	e.mu.Lock()
	e.listener = ln
	e.mu.Unlock()

	if !e.async {
		conn, err := ln.Accept()
		if err != nil {
			return herrors.New(herrors.KindConnection, "Endpoint.Run", err)
		}
		s := stream.New(e.engine, stream.WithSink(e.sink))
		s.Adopt(conn)
		e.mu.Lock()
		e.str = s
		e.mu.Unlock()
		e.connected.Store(true)
		e.fireConnect()
		return nil
	}

	pool := concurrency.NewWorkerPool(e.pool, noopReactor{})
	e.workers = pool
	if e.numa != nil {
		node := *e.numa
		pool.Submit(func() { _ = affinity.SetAffinity(node) })
	}
	pool.Submit(e.acceptLoop)
	return nil
}

type noopReactor struct{}

func (noopReactor) Poll(timeoutMs int) error { return nil }
func (noopReactor) Close() error             { return nil }

func (e *Endpoint) acceptLoop() {
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}
		e.mu.Lock()
		ln := e.listener
		e.mu.Unlock()
		if ln == nil {
			return
		}
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-e.stopCh:
				return
			default:
			}
			e.sink.Fatal("Endpoint.acceptLoop", herrors.New(herrors.KindConnection, "Endpoint.acceptLoop", err))
			// acceptLoop runs on a pool worker and Disconnect joins the
			// pool, so it must run on another goroutine.
			go e.Disconnect()
			return
		}

		s := stream.New(e.engine, stream.WithSink(e.sink))
		s.Adopt(conn)
		e.mu.Lock()
		e.str = s
		e.mu.Unlock()
		e.connected.Store(true)
		e.fireConnect()
	}
}

func (e *Endpoint) runUDPServer() error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(e.host, e.port))
	if err != nil {
		return herrors.New(herrors.KindConfiguration, "Endpoint.Run", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return herrors.New(herrors.KindConnection, "Endpoint.Run", err)
	}
	e.mu.Lock()
	e.udpConn = conn
	e.mu.Unlock()
	e.connected.Store(true)
	e.fireConnect()
	return nil
}

// Disconnect idempotently tears the Endpoint down: closes its owned
// Stream/Datagram/listener/UDP socket, stops the accept-loop worker pool
// if one was spawned, and fires the disconnect hook exactly once.
func (e *Endpoint) Disconnect() {
	e.mu.Lock()
	select {
	case <-e.stopCh:
		e.mu.Unlock()
		return
	default:
	}
	close(e.stopCh)
	s, d, ln, uc, pool := e.str, e.dgr, e.listener, e.udpConn, e.workers
	e.mu.Unlock()
	e.connected.Store(false)

	if s != nil {
		s.Disconnect()
	}
	if d != nil {
		d.Disconnect()
	}
	if ln != nil {
		_ = ln.Close()
	}
	if uc != nil {
		_ = uc.Close()
	}
	if pool != nil {
		pool.Close()
	}
	e.fireDisconnect()
}

// Stop releases the Endpoint's private IoEngine. Call after Disconnect.
func (e *Endpoint) Stop() {
	e.engine.Stop()
}

func requireAsync(op string, async bool) error {
	if !async {
		return herrors.New(herrors.KindLogicViolation, op, herrors.ErrAsyncOnSync)
	}
	return nil
}

func (e *Endpoint) activeStream() (*stream.Stream, *datagram.Datagram, error) {
	e.mu.Lock()
	s, d := e.str, e.dgr
	e.mu.Unlock()
	if s == nil && d == nil {
		return nil, nil, herrors.New(herrors.KindNotConnected, "Endpoint", herrors.ErrNotConnected)
	}
	return s, d, nil
}

// Send delegates to the owned Stream or Datagram.
func (e *Endpoint) Send(payload []byte) (int, error) {
	s, d, err := e.activeStream()
	if err != nil {
		return 0, err
	}
	if s != nil {
		return s.Send(payload)
	}
	return d.Send(payload)
}

// Receive delegates to the owned Stream or Datagram.
func (e *Endpoint) Receive() (string, error) {
	s, d, err := e.activeStream()
	if err != nil {
		return "", err
	}
	if s != nil {
		return s.Receive()
	}
	return d.Receive()
}

// AsyncSend delegates to the owned Stream or Datagram; valid only on an
// Endpoint constructed with async=true.
func (e *Endpoint) AsyncSend(payload []byte) error {
	if err := requireAsync("Endpoint.AsyncSend", e.async); err != nil {
		return err
	}
	s, d, err := e.activeStream()
	if err != nil {
		return err
	}
	if s != nil {
		return s.AsyncSend(payload)
	}
	return d.AsyncSend(payload)
}

// AsyncReceive delegates to the owned Stream or Datagram; valid only on
// an Endpoint constructed with async=true.
func (e *Endpoint) AsyncReceive() error {
	if err := requireAsync("Endpoint.AsyncReceive", e.async); err != nil {
		return err
	}
	s, d, err := e.activeStream()
	if err != nil {
		return err
	}
	if s != nil {
		return s.AsyncReceive()
	}
	return d.AsyncReceive()
}
