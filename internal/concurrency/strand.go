// Package concurrency provides the WorkerPool and Strand primitives
// IoEngine is built from: a fixed set of goroutines that pump the platform
// reactor (see the reactor package) and a serializing dispatch lane whose
// submitted work always runs one item at a time, in submission order.
package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// Strand is a serializing dispatch lane: work submitted through Post runs
// in submission order and never concurrently with other strand work, even
// when Post is called from many goroutines at once. Unlike a plain mutex,
// a Strand never blocks the submitting goroutine waiting for the work
// itself to run — the submitter either becomes the drainer (runs the
// entire pending batch inline) or, finding a drainer already active,
// simply enqueues and returns.
type Strand struct {
	mu       sync.Mutex
	q        *queue.Queue
	draining bool
	closed   bool
}

// NewStrand creates an empty, open Strand.
func NewStrand() *Strand {
	return &Strand{q: queue.New()}
}

// Post enqueues work onto the strand. If no goroutine is currently draining
// the strand, the calling goroutine becomes the drainer and runs work items
// (this one and any enqueued while draining) inline until the queue is
// empty. Post on a closed Strand silently discards work, mirroring
// IoEngine.Post's documented behavior after Stop.
func (s *Strand) Post(work func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.q.Add(work)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	s.drain()
}

func (s *Strand) drain() {
	for {
		s.mu.Lock()
		if s.q.Length() == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		work := s.q.Remove().(func())
		s.mu.Unlock()

		s.runSafely(work)
	}
}

// runSafely executes work, recovering a panic so that one misbehaving
// handler can never take down the strand's drainer goroutine nor leave the
// strand permanently marked as draining.
func (s *Strand) runSafely(work func()) {
	defer func() { _ = recover() }()
	work()
}

// Close marks the strand closed: subsequent Post calls are discarded.
// Work already queued still runs out before the current drain exits.
func (s *Strand) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
