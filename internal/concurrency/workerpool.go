package concurrency

import (
	"sync"
	"sync/atomic"

	"github.com/hermes-go/hermes/reactor"
)

// TaskFunc is a unit of work posted to a WorkerPool.
type TaskFunc func()

// WorkerPool is IoEngine's fixed set of goroutines. Each worker pumps the
// given reactor.Reactor's Poll step and drains a shared channel of posted
// tasks, modeling an IoEngine that wraps an OS-level reactor with workers
// that each pump the reactor loop. Uses a worker/close/join lifecycle.
type WorkerPool struct {
	tasks   chan TaskFunc
	react   reactor.Reactor
	wg      sync.WaitGroup
	closeCh chan struct{}
	closed  atomic.Bool
}

// NewWorkerPool starts n goroutines, each driving react's Poll step between
// task drains. n <= 0 is rejected by callers (IoEngine validates before
// calling in).
func NewWorkerPool(n int, react reactor.Reactor) *WorkerPool {
	p := &WorkerPool{
		tasks:   make(chan TaskFunc, n*8+8),
		react:   react,
		closeCh: make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *WorkerPool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.closeCh:
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.safeExecute(task)
		default:
			if p.react != nil {
				_ = p.react.Poll(1)
			}
			select {
			case <-p.closeCh:
				return
			case task, ok := <-p.tasks:
				if !ok {
					return
				}
				p.safeExecute(task)
			}
		}
	}
}

func (p *WorkerPool) safeExecute(task TaskFunc) {
	defer func() { _ = recover() }()
	task()
}

// Submit enqueues task for execution on some worker. Returns false if the
// pool is closed (mirrors IoEngine.Post's "silently discarded" contract —
// the caller decides whether that's worth logging).
func (p *WorkerPool) Submit(task TaskFunc) bool {
	if p.closed.Load() {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	case <-p.closeCh:
		return false
	}
}

// Close stops accepting work and joins every worker goroutine. Idempotent.
func (p *WorkerPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.closeCh)
	p.wg.Wait()
}
