package pool

import (
	"fmt"
	"log/slog"
	"sync"
)

// SharedQueue is a pool of n workers all draining one multi-producer
// single-receiver job queue. A job that panics is recovered and logged;
// the worker continues with the next job.
type SharedQueue struct {
	jobs chan func()
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewSharedQueue builds a shared-queue pool with n workers.
func NewSharedQueue(n int) (*SharedQueue, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: worker count must be positive, got %d", ErrBuild, n)
	}

	p := &SharedQueue{
		jobs: make(chan func()),
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p, nil
}

// worker consumes jobs in FIFO order until the queue closes.
func (p *SharedQueue) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		runJob(job)
	}
	slog.Debug("pool: worker shutting down",
		"worker", id)
}

// Spawn submits a job. Jobs submitted after Shutdown are dropped with a
// log line rather than panicking the caller.
func (p *SharedQueue) Spawn(job func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		slog.Warn("pool: job submitted after shutdown, dropping")
		return
	}
	p.jobs <- job
}

// Shutdown closes the queue and joins all workers. In-flight and queued
// jobs run to completion.
func (p *SharedQueue) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
