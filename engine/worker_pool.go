package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
)

// Common errors for worker pool operations
var (
	ErrPoolShutdown = errors.New("worker pool is shut down")
	ErrQueueFull    = errors.New("task queue is full")
	ErrNoRunFunc    = errors.New("no run function defined")
)

// Task is a unit of kernel work for the worker pool.
type Task struct {
	ID        string
	Run       func(ctx context.Context) (arrow.Array, error)
	CreatedAt time.Time
	Ctx       context.Context

	done chan *Result
}

// NewTask creates a new task with default values.
func NewTask(id string, fn func(ctx context.Context) (arrow.Array, error)) *Task {
	return &Task{
		ID:        id,
		Run:       fn,
		CreatedAt: time.Now(),
		Ctx:       context.Background(),
		done:      make(chan *Result, 1),
	}
}

// Done returns the channel that receives the task's result exactly once.
func (t *Task) Done() <-chan *Result {
	return t.done
}

func (t *Task) finish(result *Result) {
	select {
	case t.done <- result:
	default:
	}
}

// Result represents the result of task processing. The receiver owns
// Output and must release it.
type Result struct {
	TaskID   string
	Output   arrow.Array
	Err      error
	Duration time.Duration
	WorkerID int
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Name        string  `json:"name"`
	Workers     int     `json:"workers"`
	Active      int64   `json:"active"`
	Completed   int64   `json:"completed"`
	Failed      int64   `json:"failed"`
	Pending     int     `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}

// WorkerPool manages a pool of goroutine workers for parallel processing.
type WorkerPool struct {
	name     string
	workers  int
	taskChan chan *Task
	wg       sync.WaitGroup

	// Atomic counters for thread-safe statistics
	active    int64
	completed int64
	failed    int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
}

// NewWorkerPool creates a new worker pool with the specified number of
// workers. A queueSize of zero or less queues 100 tasks per worker.
func NewWorkerPool(name string, workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &WorkerPool{
		name:     name,
		workers:  workers,
		taskChan: make(chan *Task, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		running:  true,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	return pool
}

// worker is the goroutine that processes tasks.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskChan:
			if !ok {
				return
			}
			p.processTask(id, task)
		}
	}
}

// processTask executes a single task and delivers its result.
func (p *WorkerPool) processTask(workerID int, task *Task) {
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	start := time.Now()

	result := &Result{
		TaskID:   task.ID,
		WorkerID: workerID,
	}

	// One panicking kernel must not take the pool down.
	defer func() {
		if r := recover(); r != nil {
			if result.Output != nil {
				result.Output.Release()
				result.Output = nil
			}
			result.Err = fmt.Errorf("panic in task %s: %v", task.ID, r)
			result.Duration = time.Since(start)
			atomic.AddInt64(&p.failed, 1)
			task.finish(result)
		}
	}()

	ctx := task.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if err := ctx.Err(); err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		atomic.AddInt64(&p.failed, 1)
		task.finish(result)
		return
	}

	if task.Run != nil {
		result.Output, result.Err = task.Run(ctx)
	} else {
		result.Err = ErrNoRunFunc
	}

	result.Duration = time.Since(start)

	if result.Err == nil {
		atomic.AddInt64(&p.completed, 1)
	} else {
		atomic.AddInt64(&p.failed, 1)
	}

	task.finish(result)
}

// Submit adds a task to the worker pool for processing.
func (p *WorkerPool) Submit(task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrPoolShutdown
	}
	if task.done == nil {
		task.done = make(chan *Result, 1)
	}

	select {
	case p.taskChan <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitAndWait submits a task and waits for its result or for ctx to end.
func (p *WorkerPool) SubmitAndWait(ctx context.Context, task *Task) (*Result, error) {
	if err := p.Submit(task); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		go releaseWhenDone(task)
		return nil, ctx.Err()
	case result := <-task.Done():
		return result, nil
	}
}

// releaseWhenDone discards the eventual result of an abandoned task.
func releaseWhenDone(task *Task) {
	result := <-task.Done()
	if result.Output != nil {
		result.Output.Release()
	}
}

// GetStats returns current worker pool statistics.
func (p *WorkerPool) GetStats() PoolStats {
	completed := atomic.LoadInt64(&p.completed)
	failed := atomic.LoadInt64(&p.failed)
	total := completed + failed

	var successRate float64
	if total > 0 {
		successRate = float64(completed) / float64(total) * 100
	}

	return PoolStats{
		Name:        p.name,
		Workers:     p.workers,
		Active:      atomic.LoadInt64(&p.active),
		Completed:   completed,
		Failed:      failed,
		Pending:     len(p.taskChan),
		SuccessRate: successRate,
	}
}

// Shutdown stops the workers and fails every task still queued with
// ErrPoolShutdown.
func (p *WorkerPool) Shutdown() {
	if !p.stop() {
		return
	}
	p.wg.Wait()
	p.drain()
}

// ShutdownWithTimeout shuts down with a timeout.
func (p *WorkerPool) ShutdownWithTimeout(timeout time.Duration) error {
	if !p.stop() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.drain()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("shutdown timeout")
	}
}

func (p *WorkerPool) stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return false
	}
	p.running = false
	p.cancel()
	close(p.taskChan)
	return true
}

func (p *WorkerPool) drain() {
	for task := range p.taskChan {
		atomic.AddInt64(&p.failed, 1)
		task.finish(&Result{TaskID: task.ID, Err: ErrPoolShutdown})
	}
}

// IsRunning returns true if the pool is still accepting tasks.
func (p *WorkerPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
