package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrQueueFull is returned by Submit when the job queue has no free slot
	ErrQueueFull = errors.New("worker queue full")

	// ErrPoolStopped is returned by Submit after Stop or Close
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool manages a pool of workers that execute jobs concurrently.
// Results are gathered in a ResultCollector so workers never block on a reader.
type Pool struct {
	workers    int
	jobQueue   chan Job
	collector  *ResultCollector
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc

	mu       sync.RWMutex
	closed   bool
	stopping atomic.Bool
	active   atomic.Int64
	skipped  atomic.Int64
}

// NewPool creates a new worker pool with the specified number of workers.
// Jobs run under a context derived from parent.
func NewPool(parent context.Context, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}

	ctx, cancel := context.WithCancel(parent)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, queueSize),
		collector:  NewResultCollector(),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker is the worker goroutine that processes jobs
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			p.skipped.Add(int64(p.drain()))
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			if p.stopping.Load() || p.ctx.Err() != nil {
				p.skipped.Add(1)
				continue
			}
			p.active.Add(1)
			result := job.Execute(p.ctx)
			p.active.Add(-1)
			if result != nil {
				p.collector.Add(result)
			}
		}
	}
}

// drain discards queued jobs without running them
func (p *Pool) drain() int {
	n := 0
	for {
		select {
		case _, ok := <-p.jobQueue:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Submit enqueues a job without blocking
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || p.stopping.Load() || p.ctx.Err() != nil {
		return ErrPoolStopped
	}

	select {
	case p.jobQueue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs; queued jobs still run
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
}

// Wait closes the queue, waits for all jobs to complete and returns the results
func (p *Pool) Wait() []Result {
	p.Close()
	p.wg.Wait()
	return p.collector.Results()
}

// Stop stops accepting jobs and skips every job that has not started yet
func (p *Pool) Stop() {
	p.stopping.Store(true)
	p.Close()
}

// WaitTimeout waits up to d for running jobs to finish. It reports whether the workers exited.
func (p *Pool) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Cancel cancels the context of running jobs without waiting for them
func (p *Pool) Cancel() {
	p.cancelFunc()
}

// Shutdown shuts down the worker pool immediately and waits for workers to exit
func (p *Pool) Shutdown() {
	p.stopping.Store(true)
	p.cancelFunc()
	p.Close()
	p.wg.Wait()
}

// InFlight returns the number of jobs currently executing
func (p *Pool) InFlight() int {
	return int(p.active.Load())
}

// Skipped returns the number of queued jobs dropped by Stop or cancellation
func (p *Pool) Skipped() int {
	return int(p.skipped.Load())
}

// Pending returns the number of jobs still waiting in the queue
func (p *Pool) Pending() int {
	return len(p.jobQueue)
}

// Results returns the results collected so far
func (p *Pool) Results() []Result {
	return p.collector.Results()
}

// ResultCollector provides a safer way to collect results as they arrive
type ResultCollector struct {
	results []Result
	mu      sync.Mutex
}

// NewResultCollector creates a new result collector
func NewResultCollector() *ResultCollector {
	return &ResultCollector{
		results: make([]Result, 0),
	}
}

// Add adds a result to the collector (thread-safe)
func (c *ResultCollector) Add(result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Results returns a copy of all collected results
func (c *ResultCollector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}
