// Package taskqueue provides a bounded, fire-and-forget worker pool for
// side-effects that must never block the caller — last_used_at touches,
// webhook fan-out. Work hands off to a bounded queue;
// goroutines never leak unbounded, and drops are counted rather than hidden.
package taskqueue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/edierwan/getouch-sub000/internal/telemetry"
)

// Queue runs submitted tasks on a fixed pool of background workers. Tasks
// submitted when the buffer is full are dropped and counted, never blocked on.
type Queue struct {
	kind   string
	logger *slog.Logger
	tasks  chan func(context.Context)
	wg     sync.WaitGroup
}

// New creates a Queue with the given buffer size. kind labels the
// Prometheus tasks_dropped_total metric for this queue's callers.
func New(kind string, bufferSize int, logger *slog.Logger) *Queue {
	return &Queue{
		kind:   kind,
		logger: logger,
		tasks:  make(chan func(context.Context), bufferSize),
	}
}

// Start launches the worker pool. Workers run until Close is called and the
// queue is drained; ctx is passed to each task and does not stop the workers.
func (q *Queue) Start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.run(ctx)
		}()
	}
}

// Close stops accepting new tasks and waits for in-flight ones to finish.
func (q *Queue) Close() {
	close(q.tasks)
	q.wg.Wait()
}

// Submit enqueues task for background execution. It never blocks: if every
// worker is busy and the buffer is full, the task is dropped and
// tasks_dropped_total{kind} is incremented.
func (q *Queue) Submit(task func(context.Context)) {
	select {
	case q.tasks <- task:
	default:
		telemetry.TasksDroppedTotal.WithLabelValues(q.kind).Inc()
		q.logger.Warn("task queue full, dropping task", "kind", q.kind)
	}
}

func (q *Queue) run(ctx context.Context) {
	for task := range q.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.logger.Error("task panicked", "kind", q.kind, "panic", r)
				}
			}()
			task(ctx)
		}()
	}
}
