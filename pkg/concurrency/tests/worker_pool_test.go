package tests

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nickmkk/Platibus/pkg/concurrency"
)

func TestWorkerPoolRunsEverySubmittedTask(t *testing.T) {
	pool := concurrency.NewWorkerPool(4, 16)
	pool.Start(context.Background())
	defer pool.Stop()

	var done atomic.Int32
	for i := 0; i < 20; i++ {
		pool.Submit(func(ctx context.Context) {
			done.Add(1)
		})
	}

	deadline := time.Now().Add(time.Second)
	for done.Load() < 20 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if got := done.Load(); got != 20 {
		t.Fatalf("expected 20 tasks to run, got %d", got)
	}
}

func TestWorkerPoolStopWaitsForInFlightTasks(t *testing.T) {
	pool := concurrency.NewWorkerPool(2, 4)
	pool.Start(context.Background())

	var finished atomic.Bool
	pool.Submit(func(ctx context.Context) {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	pool.Stop()

	if !finished.Load() {
		t.Fatal("Stop returned before the in-flight task finished")
	}
}
