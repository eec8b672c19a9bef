// Package queue provides an unbounded single-consumer task queue used to
// deliver change callbacks one at a time and in order.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/mesh-intelligence/livetodo/internal/logger"
	"github.com/mesh-intelligence/livetodo/internal/metrics"
)

// Serial runs submitted tasks on a dedicated goroutine in submission order.
// Tasks never overlap. A panicking task is recovered and logged; the queue
// keeps running.
type Serial struct {
	name string

	mu     sync.Mutex
	tasks  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

// NewSerial starts a queue. name identifies the queue in logs.
func NewSerial(name string) *Serial {
	q := &Serial{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Push appends a task. Returns false if the queue is closed; the task is
// dropped.
func (q *Serial) Push(task func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	q.signal()
	return true
}

// Close stops the queue. Tasks not yet started are discarded; a running task
// completes. Close does not wait; use Wait or Done for that. Idempotent.
func (q *Serial) Close() {
	q.mu.Lock()
	q.closed = true
	q.tasks = nil
	q.mu.Unlock()

	q.signal()
}

// Done is closed once the queue goroutine has exited.
func (q *Serial) Done() <-chan struct{} {
	return q.done
}

// Wait blocks until the queue goroutine exits or ctx ends.
// Must not be called from inside a task of the same queue.
func (q *Serial) Wait(ctx context.Context) error {
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for queue %s: %w", q.name, ctx.Err())
	}
}

// Len returns the number of tasks waiting to run.
func (q *Serial) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Serial) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Serial) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			<-q.wake
			continue
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.runTask(task)
	}
}

func (q *Serial) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CallbackPanics.Inc()
			logger.Error("queued task panicked", "queue", q.name, "panic", r)
		}
	}()
	task()
}
