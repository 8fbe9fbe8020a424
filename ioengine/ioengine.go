// Package ioengine implements Hermes's IoEngine: the asynchronous I/O
// execution environment plus serializing dispatch lane every Stream,
// Datagram, Endpoint and ProtobufIo call runs on top of. Combines a
// post/strand/work-keepalive/stop-joins-worker-pool contract with
// goroutine worker-pool mechanics.
package ioengine

import (
	"sync"
	"sync/atomic"

	"github.com/hermes-go/hermes/herrors"
	"github.com/hermes-go/hermes/internal/concurrency"
	"github.com/hermes-go/hermes/reactor"
)

// DefaultWorkers is the number of goroutines an IoEngine spawns on Run when
// no explicit worker count is configured.
const DefaultWorkers = 1

// IoEngine is the asynchronous I/O execution environment every Stream,
// Datagram, Endpoint and ProtobufIo call ultimately runs on top of. The
// zero value is not usable; construct with New.
type IoEngine struct {
	mu       sync.Mutex
	workers  int
	react    reactor.Reactor
	pool     *concurrency.WorkerPool
	strand   *concurrency.Strand
	running  atomic.Bool
	stopped  atomic.Bool
	keepAlive sync.WaitGroup
}

// Option configures an IoEngine at construction.
type Option func(*IoEngine)

// WithWorkers overrides the number of worker goroutines Run spawns.
func WithWorkers(n int) Option {
	return func(e *IoEngine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New constructs an IoEngine. Construction itself never starts workers —
// ensuring at least one worker is driving the reactor is Run's job, not
// New's.
func New(opts ...Option) (*IoEngine, error) {
	e := &IoEngine{
		workers: DefaultWorkers,
		strand:  concurrency.NewStrand(),
	}
	for _, o := range opts {
		o(e)
	}
	react, err := reactor.New()
	if err != nil {
		return nil, herrors.New(herrors.KindConfiguration, "IoEngine.New", err)
	}
	e.react = react
	return e, nil
}

// Run ensures at least one worker is driving the reactor. Idempotent: a
// second call is a no-op while workers are already running.
func (e *IoEngine) Run() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	e.pool = concurrency.NewWorkerPool(e.workers, e.react)
	e.mu.Unlock()
}

// Post enqueues work to run on some worker; ordering between successive
// Post calls is not guaranteed. Post after Stop, or before Run, is
// silently discarded.
func (e *IoEngine) Post(work func()) {
	if e.stopped.Load() {
		return
	}
	e.mu.Lock()
	pool := e.pool
	e.mu.Unlock()
	if pool == nil {
		return
	}
	pool.Submit(work)
}

// PostSerialized enqueues work onto the strand: work items submitted
// through this entry point execute in submission order and never
// concurrently with one another, even across workers. This is the single
// mechanism Stream uses to multiplex many caller goroutines onto one
// socket without a per-byte lock.
func (e *IoEngine) PostSerialized(work func()) {
	if e.stopped.Load() {
		return
	}
	e.strand.Post(work)
}

// KeepAlive returns a release function that, while unreleased, prevents
// Stop from completing. Callers that post asynchronous work they need
// the engine alive for should acquire one before posting and release it
// from the completion.
func (e *IoEngine) KeepAlive() (release func()) {
	e.keepAlive.Add(1)
	var once sync.Once
	return func() { once.Do(e.keepAlive.Done) }
}

// Stop releases the keepalive sentinel, waits for outstanding keepalive
// holders to release, closes the strand, and joins the worker pool.
// Idempotent.
func (e *IoEngine) Stop() {
	if !e.stopped.CompareAndSwap(false, true) {
		return
	}
	e.keepAlive.Wait()
	e.strand.Close()

	e.mu.Lock()
	pool := e.pool
	e.mu.Unlock()
	if pool != nil {
		pool.Close()
	}
	_ = e.react.Close()
}

// IsStopped reports whether Stop has been called.
func (e *IoEngine) IsStopped() bool {
	return e.stopped.Load()
}
