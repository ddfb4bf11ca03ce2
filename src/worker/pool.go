package worker

import (
	"context"
	"log"
	"runtime"
	"sync"
)

// Task is one unit of analysis work, typically a session run.
type Task func(ctx context.Context) (string, error)

// ResultCallback is invoked on task completion (from a worker goroutine).
// The event loop should pass a closure that posts back into the event loop safely.
type ResultCallback func(text string, err error)

// Pool is a fixed-size analysis worker pool with a 1-slot input queue (strict back-pressure).
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup
	once sync.Once
}

type job struct {
	ctx  context.Context
	task Task
	cb   ResultCallback
}

// New creates a worker pool. Size defaults to NumCPU when size<=0. Queue is 1 slot.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				text, err := runWithContext(j.ctx, j.task)
				log.Printf("worker: task completed, text length=%d, err=%v", len(text), err)
				if j.cb != nil {
					j.cb(text, err)
				}
			}
		}()
	}
}

// Submit enqueues a task if the single-slot queue is free. Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, task Task, cb ResultCallback) bool {
	if task == nil {
		return false
	}
	select {
	case p.jobs <- job{ctx: ctx, task: task, cb: cb}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.jobs) })
	p.wg.Wait()
}

// runWithContext returns when task finishes or ctx is done, whichever is
// first. A task that ignores ctx keeps running in the background.
func runWithContext(ctx context.Context, task Task) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, ok := ctx.Deadline(); !ok && ctx.Done() == nil {
		return safeRun(ctx, task)
	}
	type result struct {
		text string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		t, e := safeRun(ctx, task)
		resCh <- result{t, e}
	}()
	select {
	case r := <-resCh:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func safeRun(ctx context.Context, task Task) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker: PANIC in task: %v", r)
			err = &PanicError{Value: r}
		}
	}()
	return task(ctx)
}

// PanicError reports a task that panicked.
type PanicError struct{ Value any }

func (e *PanicError) Error() string { return "task panicked" }
