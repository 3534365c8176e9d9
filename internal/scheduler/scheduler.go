// Package scheduler runs many independent tasks on a fixed number of workers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotDispatched marks tasks that never started because ctx was canceled first.
	ErrNotDispatched = errors.New("scheduler: task not dispatched")
	// ErrPanic wraps a panic recovered from a task.
	ErrPanic = errors.New("scheduler: task panicked")
)

// Task is one unit of work. Key identifies it in its Outcome and in logs.
type Task[T any] struct {
	Key string
	Run func(ctx context.Context) (T, error)
}

// Outcome is the result of one task.
type Outcome[T any] struct {
	Key      string
	Value    T
	Err      error
	Duration time.Duration
}

// OK reports whether the task ran and returned no error.
func (o Outcome[T]) OK() bool { return o.Err == nil }

type options[T any] struct {
	onDone func(Outcome[T])
}

// Option configures RunAll.
type Option[T any] func(*options[T])

// OnDone registers fn to be called for every outcome as it is collected. fn
// runs on the collecting goroutine only, never concurrently with itself.
func OnDone[T any](fn func(Outcome[T])) Option[T] {
	return func(o *options[T]) { o.onDone = fn }
}

// RunAll runs tasks on at most limit workers and returns one outcome per task:
// completed tasks in completion order, then tasks that were never dispatched
// (ErrNotDispatched) in input order. A failing or panicking task does not
// affect the others. Canceling ctx stops dispatch; tasks already running keep
// a context without the cancellation and finish on their own deadlines.
func RunAll[T any](ctx context.Context, tasks []Task[T], limit int, opts ...Option[T]) []Outcome[T] {
	var o options[T]
	for _, opt := range opts {
		opt(&o)
	}
	if limit <= 0 {
		limit = 1
	}
	if limit > len(tasks) {
		limit = len(tasks)
	}

	jobs := make(chan int, len(tasks))
	results := make(chan Outcome[T], len(tasks))
	dispatched := make([]bool, len(tasks))
	runCtx := context.WithoutCancel(ctx)

	// idle holds one token per free worker.
	idle := make(chan struct{}, limit)
	for w := 0; w < limit; w++ {
		idle <- struct{}{}
	}

	var wg sync.WaitGroup
	for w := 0; w < limit; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- runOne(runCtx, tasks[i])
				idle <- struct{}{}
			}
		}()
	}

	go func() {
		defer func() {
			close(jobs)
			wg.Wait()
			close(results)
		}()
		for i := range tasks {
			select {
			case <-idle:
			case <-ctx.Done():
				return
			}
			// A worker freed at the moment of cancellation must not get more work.
			if ctx.Err() != nil {
				return
			}
			dispatched[i] = true
			jobs <- i
		}
	}()

	out := make([]Outcome[T], 0, len(tasks))
	for r := range results {
		out = append(out, r)
		if o.onDone != nil {
			o.onDone(r)
		}
	}
	for i, t := range tasks {
		if dispatched[i] {
			continue
		}
		r := Outcome[T]{Key: t.Key, Err: fmt.Errorf("%w: %v", ErrNotDispatched, context.Cause(ctx))}
		out = append(out, r)
		if o.onDone != nil {
			o.onDone(r)
		}
	}
	return out
}

func runOne[T any](ctx context.Context, t Task[T]) (out Outcome[T]) {
	start := time.Now()
	out.Key = t.Key
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("%w: %s: %v", ErrPanic, t.Key, r)
		}
		out.Duration = time.Since(start)
	}()
	out.Value, out.Err = t.Run(ctx)
	return out
}
