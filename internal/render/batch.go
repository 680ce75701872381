package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// PoolMetrics tracks batch render counters.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// ErrPoolShutdown is returned when work is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("render pool is shut down")

// Pool is a bounded goroutine pool for concurrent renders.
type Pool struct {
	sem     chan struct{}
	wg      sync.WaitGroup
	metrics PoolMetrics
	mu      sync.Mutex
	done    chan struct{}
	closed  bool
}

// NewPool creates a pool running at most size renders at once.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem:  make(chan struct{}, size),
		done: make(chan struct{}),
	}
}

// Submit runs fn on the pool. It blocks while the pool is full and gives up
// when ctx is done or the pool shuts down.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolShutdown
	}

	// wg.Add must happen under the lock so Shutdown's Wait cannot miss it.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	atomic.AddInt64(&p.metrics.Active, 1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&p.metrics.Panics, 1)
				atomic.AddInt64(&p.metrics.Failed, 1)
			}
			atomic.AddInt64(&p.metrics.Active, -1)
			<-p.sem
			p.wg.Done()
		}()

		if err := fn(ctx); err != nil {
			atomic.AddInt64(&p.metrics.Failed, 1)
		} else {
			atomic.AddInt64(&p.metrics.Completed, 1)
		}
	}()

	return nil
}

// Wait blocks until all submitted work completes.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting work and waits for running renders.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() PoolMetrics {
	return PoolMetrics{
		Active:    atomic.LoadInt64(&p.metrics.Active),
		Completed: atomic.LoadInt64(&p.metrics.Completed),
		Failed:    atomic.LoadInt64(&p.metrics.Failed),
		Panics:    atomic.LoadInt64(&p.metrics.Panics),
	}
}

// Job is one chart in a batch.
type Job struct {
	Name   string
	Source Source
	Format Format
}

// JobResult pairs a job with its output or error.
type JobResult struct {
	Name   string
	Output *Output
	Err    error
}

// RenderAll renders jobs with at most workers renders in flight. Results are
// in job order; a failed job does not stop the others.
func (r *Renderer) RenderAll(ctx context.Context, jobs []Job, workers int) ([]JobResult, PoolMetrics) {
	results := make([]JobResult, len(jobs))
	pool := NewPool(workers)
	defer pool.Shutdown()

	for i, job := range jobs {
		results[i].Name = job.Name
		err := pool.Submit(ctx, func(ctx context.Context) error {
			defer func() {
				if rec := recover(); rec != nil {
					results[i].Err = fmt.Errorf("render %s: panic: %v", job.Name, rec)
					panic(rec)
				}
			}()
			out, err := r.Render(ctx, job.Source, job.Format)
			results[i].Output, results[i].Err = out, err
			return err
		})
		if err != nil {
			results[i].Err = err
		}
	}

	pool.Wait()
	return results, pool.Metrics()
}
