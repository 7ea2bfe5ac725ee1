package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockResult implements Result
type mockResult struct {
	err error
}

func (r *mockResult) GetError() error {
	return r.err
}

// mockJob implements Job
type mockJob struct {
	duration  time.Duration
	shouldErr bool
	executed  *int32 // atomic counter
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{err: errors.New("job error")}
	}
	return &mockResult{err: nil}
}

// blockingJob ignores cancellation until release is closed
type blockingJob struct {
	started chan struct{}
	release chan struct{}
}

func (j *blockingJob) Execute(ctx context.Context) Result {
	close(j.started)
	<-j.release
	return &mockResult{}
}

func TestNewPool(t *testing.T) {
	p1 := NewPool(context.Background(), 5, 0)
	if p1.workers != 5 {
		t.Errorf("expected 5 workers, got %d", p1.workers)
	}
	if cap(p1.jobQueue) != 10 {
		t.Errorf("expected default queue size 10, got %d", cap(p1.jobQueue))
	}

	p2 := NewPool(context.Background(), 0, 4)
	if p2.workers != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p2.workers)
	}

	p3 := NewPool(context.Background(), -1, 4)
	if p3.workers != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p3.workers)
	}
}

func TestPool_Execution(t *testing.T) {
	count := 100
	pool := NewPool(context.Background(), 2, count)
	pool.Start()

	var executed int32
	for i := 0; i < count; i++ {
		if err := pool.Submit(&mockJob{executed: &executed}); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}

	results := pool.Wait()

	if len(results) != count {
		t.Errorf("expected %d results, got %d", count, len(results))
	}

	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, executed)
	}
}

// concurrencyJob tracks max concurrent executions
type concurrencyJob struct {
	start    func()
	end      func()
	duration time.Duration
}

func (j *concurrencyJob) Execute(ctx context.Context) Result {
	if j.start != nil {
		j.start()
	}
	time.Sleep(j.duration)
	if j.end != nil {
		j.end()
	}
	return &mockResult{}
}

func TestPool_Concurrency(t *testing.T) {
	workers := 4
	totalJobs := 40
	pool := NewPool(context.Background(), workers, totalJobs)
	pool.Start()

	var current int32
	var maxConcurrent int32
	var completed int32
	var mu sync.Mutex

	for i := 0; i < totalJobs; i++ {
		_ = pool.Submit(&concurrencyJob{
			start: func() {
				curr := atomic.AddInt32(&current, 1)
				mu.Lock()
				if curr > maxConcurrent {
					maxConcurrent = curr
				}
				mu.Unlock()
			},
			end: func() {
				atomic.AddInt32(&current, -1)
				atomic.AddInt32(&completed, 1)
			},
			duration: 5 * time.Millisecond,
		})
	}

	pool.Wait()

	if atomic.LoadInt32(&completed) != int32(totalJobs) {
		t.Errorf("expected %d completed jobs, got %d", totalJobs, completed)
	}

	mu.Lock()
	max := maxConcurrent
	mu.Unlock()

	if max > int32(workers) {
		t.Errorf("max concurrency %d exceeded workers %d", max, workers)
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	pool := NewPool(context.Background(), 2, 4)
	pool.Start()

	_ = pool.Submit(&mockJob{shouldErr: true})
	_ = pool.Submit(&mockJob{shouldErr: false})

	results := pool.Wait()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	errs := 0
	for _, res := range results {
		if res.GetError() != nil {
			errs++
		}
	}

	if errs != 1 {
		t.Errorf("expected 1 error, got %d", errs)
	}
}

func TestPool_SubmitQueueFull(t *testing.T) {
	pool := NewPool(context.Background(), 1, 1)
	// Not started: nothing drains the queue
	if err := pool.Submit(&mockJob{}); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if err := pool.Submit(&mockJob{}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestResultCollector(t *testing.T) {
	c := NewResultCollector()
	c.Add(&mockResult{})
	c.Add(&mockResult{err: errors.New("err")})

	res := c.Results()
	if len(res) != 2 {
		t.Errorf("expected 2 results, got %d", len(res))
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(context.Background(), 2, 4)
	pool.Start()
	pool.Shutdown()

	done := make(chan error, 1)
	go func() {
		done <- pool.Submit(&mockJob{})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrPoolStopped) {
			t.Errorf("expected ErrPoolStopped, got %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Submit after shutdown blocked")
	}
}

func TestPool_StopSkipsQueuedJobs(t *testing.T) {
	pool := NewPool(context.Background(), 1, 10)
	pool.Start()

	first := &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
	_ = pool.Submit(first)
	<-first.started

	var executed int32
	for i := 0; i < 5; i++ {
		_ = pool.Submit(&mockJob{executed: &executed})
	}

	pool.Stop()
	close(first.release)

	if !pool.WaitTimeout(time.Second) {
		t.Fatal("expected workers to exit after Stop")
	}
	if n := atomic.LoadInt32(&executed); n != 0 {
		t.Errorf("expected queued jobs to be skipped, %d executed", n)
	}
	if pool.Skipped() != 5 {
		t.Errorf("expected 5 skipped jobs, got %d", pool.Skipped())
	}
}

func TestPool_WaitTimeoutWithStuckJob(t *testing.T) {
	pool := NewPool(context.Background(), 1, 2)
	pool.Start()

	stuck := &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
	defer close(stuck.release)
	_ = pool.Submit(stuck)
	<-stuck.started

	pool.Stop()

	start := time.Now()
	if pool.WaitTimeout(50 * time.Millisecond) {
		t.Fatal("expected WaitTimeout to report a running job")
	}
	if time.Since(start) > time.Second {
		t.Error("WaitTimeout blocked past its deadline")
	}
	if pool.InFlight() != 1 {
		t.Errorf("expected 1 in-flight job, got %d", pool.InFlight())
	}

	pool.Cancel()
}

func TestPool_ShutdownCancelsJobs(t *testing.T) {
	pool := NewPool(context.Background(), 2, 4)
	pool.Start()

	started := make(chan struct{})
	var once sync.Once
	_ = pool.Submit(&mockJob{duration: 5 * time.Second})
	_ = pool.Submit(&concurrencyJob{start: func() { once.Do(func() { close(started) }) }})
	<-started

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Shutdown timed out")
	}
}
