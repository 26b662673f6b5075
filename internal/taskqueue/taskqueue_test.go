package taskqueue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueue_RunsSubmittedTasks(t *testing.T) {
	q := New("test", 16, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx, 2)

	var n int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		q.Submit(func(context.Context) {
			atomic.AddInt32(&n, 1)
			wg.Done()
		})
	}
	wg.Wait()
	cancel()
	q.Close()

	if got := atomic.LoadInt32(&n); got != 10 {
		t.Errorf("ran %d tasks, want 10", got)
	}
}

func TestQueue_DropsWhenFull(t *testing.T) {
	q := New("test", 1, slog.Default())
	block := make(chan struct{})

	// Fill the single buffer slot with a task that blocks until we release it,
	// and don't start any workers so nothing drains the channel.
	q.Submit(func(context.Context) { <-block })
	q.Submit(func(context.Context) {})

	close(block)

	if len(q.tasks) != 1 {
		t.Errorf("queue length = %d, want 1 (second submit should have been dropped)", len(q.tasks))
	}
}

func TestQueue_RecoversPanickingTask(t *testing.T) {
	q := New("test", 4, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx, 1)

	done := make(chan struct{})
	q.Submit(func(context.Context) { panic("boom") })
	q.Submit(func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not recover from panic and continue processing")
	}

	cancel()
	q.Close()
}
