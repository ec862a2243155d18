package cel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Executor runs the execute phase of render jobs.
type Executor interface {
	// Submit schedules fn and returns without waiting for it. It reports
	// false if the executor no longer accepts work.
	Submit(fn func()) bool
	// Close stops the executor after queued work has run.
	Close()
}

// WorkerPool is an Executor backed by a fixed set of goroutines. Each worker
// owns a queue and steals from the others when its own queue is empty.
// Submit never blocks: when every queue is full, work goes to a shared
// overflow list that idle workers drain.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wake       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool

	mu       sync.Mutex
	overflow []func()
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers <= 0, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
		wake:       make(chan struct{}, workers),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	myQueue := p.workQueues[id]

	for {
		select {
		case <-p.done:
			p.drain(myQueue)
			return
		case work := <-myQueue:
			work()
			continue
		default:
		}

		if work := p.steal(id); work != nil {
			work()
			continue
		}

		select {
		case <-p.done:
			p.drain(myQueue)
			return
		case work := <-myQueue:
			work()
		case <-p.wake:
		}
	}
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			if work := p.popOverflow(); work != nil {
				work()
				continue
			}
			return
		}
	}
}

// steal takes work from the overflow list or from another worker's queue.
func (p *WorkerPool) steal(myID int) func() {
	if work := p.popOverflow(); work != nil {
		return work
	}
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

func (p *WorkerPool) popOverflow() func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.overflow) == 0 {
		return nil
	}
	work := p.overflow[0]
	p.overflow[0] = nil
	p.overflow = p.overflow[1:]
	return work
}

// Submit implements Executor. Work goes to the least loaded queue.
func (p *WorkerPool) Submit(fn func()) bool {
	if fn == nil || !p.running.Load() {
		return false
	}

	minLen := len(p.workQueues[0])
	minIdx := 0
	for i := 1; i < p.workers; i++ {
		if qLen := len(p.workQueues[i]); qLen < minLen {
			minLen = qLen
			minIdx = i
		}
	}

	select {
	case p.workQueues[minIdx] <- fn:
	default:
		p.mu.Lock()
		p.overflow = append(p.overflow, fn)
		p.mu.Unlock()
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return true
}

// Close implements Executor. It waits for queued work to finish.
// Safe to call more than once.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// QueuedWork returns the number of submitted functions not yet started.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.workQueues {
		total += len(q)
	}
	p.mu.Lock()
	total += len(p.overflow)
	p.mu.Unlock()
	return total
}

// InlineExecutor runs submitted work immediately on the calling goroutine.
// Scenes configured as synchronous use it; rendering then happens inside
// ProcessAll, which makes scheduling fully deterministic.
type InlineExecutor struct {
	closed atomic.Bool
}

// Submit implements Executor.
func (e *InlineExecutor) Submit(fn func()) bool {
	if fn == nil || e.closed.Load() {
		return false
	}
	fn()
	return true
}

// Close implements Executor.
func (e *InlineExecutor) Close() {
	e.closed.Store(true)
}
