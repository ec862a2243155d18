package cel

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestWorkerPoolRunsAllWork(t *testing.T) {
	p := NewWorkerPool(4)
	var n atomic.Int64
	var wg sync.WaitGroup
	const jobs = 500 // more than the queues hold, so some go to overflow
	wg.Add(jobs)
	for range jobs {
		if !p.Submit(func() {
			n.Add(1)
			wg.Done()
		}) {
			t.Fatal("Submit rejected work on a running pool")
		}
	}
	wg.Wait()
	p.Close()
	if n.Load() != jobs {
		t.Errorf("ran %d jobs, want %d", n.Load(), jobs)
	}
}

func TestWorkerPoolCloseWaitsForQueuedWork(t *testing.T) {
	p := NewWorkerPool(2)
	var n atomic.Int64
	for range 50 {
		p.Submit(func() { n.Add(1) })
	}
	p.Close()
	if n.Load() != 50 {
		t.Errorf("ran %d jobs before Close returned, want 50", n.Load())
	}
	if p.Submit(func() {}) {
		t.Error("Submit accepted work after Close")
	}
	p.Close() // idempotent
}

func TestWorkerPoolDefaultSize(t *testing.T) {
	p := NewWorkerPool(0)
	defer p.Close()
	if p.Workers() < 1 {
		t.Errorf("Workers = %d, want >= 1", p.Workers())
	}
	if p.Submit(nil) {
		t.Error("Submit(nil) should be rejected")
	}
}

func TestInlineExecutor(t *testing.T) {
	var e InlineExecutor
	ran := false
	if !e.Submit(func() { ran = true }) || !ran {
		t.Fatal("InlineExecutor should run work before Submit returns")
	}
	e.Close()
	if e.Submit(func() { t.Error("ran after Close") }) {
		t.Error("Submit accepted work after Close")
	}
}
