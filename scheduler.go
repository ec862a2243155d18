package cel

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// Scheduler tracks the boxes with pending render jobs and moves those jobs
// to an Executor in batches. Enqueue, ProcessAll and Deliver run on the
// controlling goroutine; only execute runs on the executor.
//
// Results reach boxes through each job's own delivery, never through the
// Scheduler itself.
type Scheduler struct {
	scene *Scene
	exec  Executor

	boxes []*Box

	mu       sync.Mutex
	finished []*RenderJob
	ready    chan struct{}
	inflight atomic.Int64
}

func newScheduler(sc *Scene, exec Executor) *Scheduler {
	return &Scheduler{scene: sc, exec: exec, ready: make(chan struct{}, 1)}
}

// enqueue records j as pending for b. Nothing runs until ProcessAll.
func (s *Scheduler) enqueue(b *Box, j *RenderJob) {
	j.retain()
	b.pending = append(b.pending, j)
	if !b.queued {
		b.queued = true
		s.boxes = append(s.boxes, b)
	}
}

// forget drops every pending job of b.
func (s *Scheduler) forget(b *Box) {
	for _, j := range b.pending {
		j.release()
	}
	b.pending = nil
	if b.queued {
		b.queued = false
		if i := slices.Index(s.boxes, b); i >= 0 {
			s.boxes = slices.Delete(s.boxes, i, i+1)
		}
	}
}

// Pending returns the number of boxes waiting for ProcessAll.
func (s *Scheduler) Pending() int {
	return len(s.boxes)
}

// InFlight returns the number of jobs submitted and not yet finished.
func (s *Scheduler) InFlight() int {
	return int(s.inflight.Load())
}

// ProcessAll resolves every pending job and submits it for execution. Jobs
// whose box is not ready stay pending for the next call. It returns the
// number of jobs submitted.
func (s *Scheduler) ProcessAll() int {
	sc := s.scene
	boxes := s.boxes
	s.boxes = nil

	sc.resolving = true
	defer func() { sc.resolving = false }()

	submitted := 0
	for _, b := range boxes {
		b.queued = false
		var deferred []*RenderJob
		for _, j := range b.pending {
			if !j.resolve(b, b.absFrame, b.liveLayers()) {
				deferred = append(deferred, j)
				sc.stats.deferred.Add(1)
				Logger().Debug("render deferred", "box", b.Name, "frame", b.absFrame)
				continue
			}
			s.submit(j)
			submitted++
		}
		b.pending = deferred
		if len(deferred) > 0 {
			b.queued = true
			s.boxes = append(s.boxes, b)
		}
	}
	return submitted
}

func (s *Scheduler) submit(j *RenderJob) {
	s.inflight.Add(1)
	ok := s.exec.Submit(func() {
		j.execute()
		s.finish(j)
	})
	if !ok {
		s.inflight.Add(-1)
		j.release()
	}
}

// finish is called on the executing goroutine.
func (s *Scheduler) finish(j *RenderJob) {
	s.mu.Lock()
	s.finished = append(s.finished, j)
	s.mu.Unlock()
	s.inflight.Add(-1)
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled when executed jobs are waiting for Deliver.
func (s *Scheduler) Ready() <-chan struct{} {
	return s.ready
}

// Deliver runs the delivery of every executed job and returns how many
// jobs it handled.
func (s *Scheduler) Deliver() int {
	s.mu.Lock()
	jobs := s.finished
	s.finished = nil
	s.mu.Unlock()

	for _, j := range jobs {
		j.deliverResult()
		j.release()
	}
	return len(jobs)
}

func (s *Scheduler) waitingDelivery() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.finished)
}

// Wait delivers and processes until no job is pending, executing or
// waiting for delivery, or until ctx is done. Jobs that stay deferred do
// not keep Wait from returning.
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		delivered := s.Deliver()
		submitted := s.ProcessAll()
		busy := s.inflight.Load() > 0 || s.waitingDelivery() > 0
		if !busy {
			if delivered == 0 && submitted == 0 {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ready:
		}
	}
}
