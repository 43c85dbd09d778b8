// Package worker provides a bounded pool for concurrent per-image work.
package worker

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Stats is a point-in-time view of pool counters
type Stats struct {
	TotalJobs     int64
	CompletedJobs int64
	ActiveWorkers int64
}

// Pool runs submitted jobs on a fixed number of goroutines
type Pool struct {
	workers  int
	jobQueue chan func()
	wg       sync.WaitGroup
	once     sync.Once
	closed   sync.Once

	totalJobs     atomic.Int64
	completedJobs atomic.Int64
	activeWorkers atomic.Int64
}

// NewPool creates a pool with the specified number of workers
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Pool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Workers returns the pool size
func (p *Pool) Workers() int {
	return p.workers
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			go p.worker()
		}
	})
}

func (p *Pool) worker() {
	for job := range p.jobQueue {
		p.run(job)
	}
}

func (p *Pool) run(job func()) {
	p.activeWorkers.Add(1)
	defer func() {
		p.activeWorkers.Add(-1)
		p.completedJobs.Add(1)
		p.wg.Done()
	}()
	job()
}

// Submit queues a job, blocking while the queue is full
func (p *Pool) Submit(job func()) {
	p.wg.Add(1)
	p.totalJobs.Add(1)
	p.jobQueue <- job
}

// Wait blocks until every submitted job has returned
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops the workers once the queue drains. Submit must not be called afterwards.
func (p *Pool) Close() {
	p.closed.Do(func() {
		close(p.jobQueue)
	})
}

// GetStats returns the current counters
func (p *Pool) GetStats() Stats {
	return Stats{
		TotalJobs:     p.totalJobs.Load(),
		CompletedJobs: p.completedJobs.Load(),
		ActiveWorkers: p.activeWorkers.Load(),
	}
}
