package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func int64Array(values ...int64) arrow.Array {
	b := array.NewInt64Builder(memory.DefaultAllocator)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewArray()
}

func TestNewWorkerPool(t *testing.T) {
	pool := NewWorkerPool("test", 4, 0)
	defer pool.Shutdown()

	if pool == nil {
		t.Fatal("NewWorkerPool returned nil")
	}

	stats := pool.GetStats()
	if stats.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", stats.Workers)
	}
	if stats.Name != "test" {
		t.Errorf("Expected name 'test', got %s", stats.Name)
	}
}

func TestWorkerPoolSubmit(t *testing.T) {
	pool := NewWorkerPool("test", 2, 0)
	defer pool.Shutdown()

	var processed int64

	task := NewTask("task-1", func(context.Context) (arrow.Array, error) {
		atomic.AddInt64(&processed, 1)
		return int64Array(1, 2, 3), nil
	})

	if err := pool.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case result := <-task.Done():
		if result.Err != nil {
			t.Errorf("Task should succeed: %v", result.Err)
		}
		if result.TaskID != "task-1" {
			t.Errorf("Expected task ID 'task-1', got %s", result.TaskID)
		}
		if result.Output == nil || result.Output.Len() != 3 {
			t.Errorf("Expected 3-element output, got %v", result.Output)
		}
		result.Output.Release()
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for result")
	}

	if atomic.LoadInt64(&processed) != 1 {
		t.Error("Task was not processed")
	}
}

func TestWorkerPoolSubmitWithError(t *testing.T) {
	pool := NewWorkerPool("test", 2, 0)
	defer pool.Shutdown()

	expectedErr := errors.New("task failed")
	task := NewTask("task-error", func(context.Context) (arrow.Array, error) {
		return nil, expectedErr
	})

	result, err := pool.SubmitAndWait(context.Background(), task)
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}
	if !errors.Is(result.Err, expectedErr) {
		t.Errorf("Expected %v, got %v", expectedErr, result.Err)
	}

	stats := pool.GetStats()
	if stats.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", stats.Failed)
	}
}

func TestWorkerPoolRecoversPanic(t *testing.T) {
	pool := NewWorkerPool("test", 1, 0)
	defer pool.Shutdown()

	task := NewTask("task-panic", func(context.Context) (arrow.Array, error) {
		panic("kernel bug")
	})

	result, err := pool.SubmitAndWait(context.Background(), task)
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}
	if result.Err == nil {
		t.Fatal("Expected panic to be reported as an error")
	}

	// The worker must survive the panic.
	ok := NewTask("task-ok", func(context.Context) (arrow.Array, error) {
		return int64Array(1), nil
	})
	result, err = pool.SubmitAndWait(context.Background(), ok)
	if err != nil || result.Err != nil {
		t.Fatalf("Pool unusable after panic: %v / %v", err, result.Err)
	}
	result.Output.Release()
}

func TestWorkerPoolCancelledTask(t *testing.T) {
	pool := NewWorkerPool("test", 1, 0)
	defer pool.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int64
	task := NewTask("task-cancelled", func(context.Context) (arrow.Array, error) {
		atomic.AddInt64(&ran, 1)
		return nil, nil
	})
	task.Ctx = ctx

	if err := pool.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	result := <-task.Done()
	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", result.Err)
	}
	if atomic.LoadInt64(&ran) != 0 {
		t.Error("Cancelled task should not run")
	}
}

func TestWorkerPoolConcurrency(t *testing.T) {
	pool := NewWorkerPool("test", 8, 0)
	defer pool.Shutdown()

	numTasks := 100
	var completed int64
	var wg sync.WaitGroup

	for i := 0; i < numTasks; i++ {
		task := NewTask(fmt.Sprintf("task-%d", i), func(context.Context) (arrow.Array, error) {
			time.Sleep(time.Millisecond) // Simulate work
			return nil, nil
		})
		if err := pool.Submit(task); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := <-task.Done(); res.Err == nil {
				atomic.AddInt64(&completed, 1)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("Timeout: only %d/%d completed", atomic.LoadInt64(&completed), numTasks)
	}

	if atomic.LoadInt64(&completed) != int64(numTasks) {
		t.Errorf("Expected %d completed, got %d", numTasks, completed)
	}
}

func TestWorkerPoolShutdown(t *testing.T) {
	pool := NewWorkerPool("test", 4, 0)

	task := NewTask("task-1", func(context.Context) (arrow.Array, error) {
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	})
	_ = pool.Submit(task)

	pool.Shutdown()

	if pool.IsRunning() {
		t.Error("Pool should not be running after shutdown")
	}

	// The queued task is either processed or failed, never lost.
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("Queued task never completed")
	}

	err := pool.Submit(NewTask("task-2", nil))
	if !errors.Is(err, ErrPoolShutdown) {
		t.Errorf("Submit after shutdown should fail with ErrPoolShutdown, got %v", err)
	}
}

func TestWorkerPoolQueueFull(t *testing.T) {
	pool := NewWorkerPool("test", 1, 1)
	defer pool.Shutdown()

	block := make(chan struct{})
	slow := func(context.Context) (arrow.Array, error) {
		<-block
		return nil, nil
	}

	var sawFull bool
	for i := 0; i < 3; i++ {
		if err := pool.Submit(NewTask(fmt.Sprintf("slow-%d", i), slow)); errors.Is(err, ErrQueueFull) {
			sawFull = true
		}
	}
	close(block)

	if !sawFull {
		t.Error("Expected ErrQueueFull with one worker and a queue of one")
	}
}

func TestWorkerPoolStats(t *testing.T) {
	pool := NewWorkerPool("stats-test", 2, 0)
	defer pool.Shutdown()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		task := NewTask(fmt.Sprintf("ok-%d", i), func(context.Context) (arrow.Array, error) {
			return nil, nil
		})
		if _, err := pool.SubmitAndWait(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 3; i++ {
		task := NewTask(fmt.Sprintf("fail-%d", i), func(context.Context) (arrow.Array, error) {
			return nil, errors.New("fail")
		})
		if _, err := pool.SubmitAndWait(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	stats := pool.GetStats()
	if stats.Completed != 5 {
		t.Errorf("Expected 5 completed, got %d", stats.Completed)
	}
	if stats.Failed != 3 {
		t.Errorf("Expected 3 failed, got %d", stats.Failed)
	}
	if stats.SuccessRate != 62.5 {
		t.Errorf("Expected success rate 62.5, got %f", stats.SuccessRate)
	}
}

func BenchmarkWorkerPoolSubmitAndWait(b *testing.B) {
	pool := NewWorkerPool("bench", 8, 0)
	defer pool.Shutdown()

	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		task := NewTask(fmt.Sprintf("task-%d", i), func(context.Context) (arrow.Array, error) {
			return nil, nil
		})
		_, _ = pool.SubmitAndWait(ctx, task)
	}
}
