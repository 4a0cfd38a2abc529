package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
)

// DefaultChunkSize is the number of output rows computed per task.
const DefaultChunkSize = 64 * 1024

// Executor runs temporal kernels, splitting large inputs into index ranges
// that are computed concurrently on a WorkerPool and concatenated in order.
type Executor struct {
	pool      *WorkerPool
	chunkSize int
	mem       memory.Allocator
}

// NewExecutor creates an Executor. A nil pool runs every call inline.
func NewExecutor(pool *WorkerPool, chunkSize int, mem memory.Allocator) *Executor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &Executor{
		pool:      pool,
		chunkSize: chunkSize,
		mem:       mem,
	}
}

// Pool returns the executor's worker pool, which may be nil.
func (e *Executor) Pool() *WorkerPool {
	return e.pool
}

type chunk struct {
	start, end int
	task       *Task
}

// Run applies op to lhs and rhs. The result is identical to temporal.Apply;
// any failing chunk aborts the call and no partial output is returned.
func (e *Executor) Run(ctx context.Context, op temporal.Op, lhs, rhs arrow.Array, opts ...temporal.Option) (arrow.Array, error) {
	opts = append([]temporal.Option{temporal.WithAllocator(e.mem)}, opts...)

	n, err := temporal.BroadcastLen(lhs.Len(), rhs.Len())
	if err != nil || e.pool == nil || n <= e.chunkSize {
		return temporal.Apply(op, lhs, rhs, opts...)
	}

	chunks := make([]chunk, 0, (n+e.chunkSize-1)/e.chunkSize)
	for start := 0; start < n; start += e.chunkSize {
		end := start + e.chunkSize
		if end > n {
			end = n
		}

		l, r := sliceOperand(lhs, start, end), sliceOperand(rhs, start, end)
		task := NewTask(fmt.Sprintf("%s[%d:%d]", op, start, end), func(context.Context) (arrow.Array, error) {
			defer l.Release()
			defer r.Release()
			return temporal.Apply(op, l, r, opts...)
		})
		task.Ctx = ctx

		if err := e.pool.Submit(task); err != nil {
			l.Release()
			r.Release()
			discard(chunks)
			return nil, fmt.Errorf("failed to submit chunk [%d, %d): %w", start, end, err)
		}
		chunks = append(chunks, chunk{start: start, end: end, task: task})
	}

	outputs := make([]arrow.Array, 0, len(chunks))
	release := func() {
		for _, out := range outputs {
			out.Release()
		}
	}

	for i, c := range chunks {
		select {
		case <-ctx.Done():
			release()
			discard(chunks[i:])
			return nil, ctx.Err()
		case res := <-c.task.Done():
			if res.Err != nil {
				release()
				discard(chunks[i+1:])
				return nil, fmt.Errorf("chunk [%d, %d): %w", c.start, c.end, rebase(res.Err, c.start))
			}
			outputs = append(outputs, res.Output)
		}
	}
	defer release()

	return array.Concatenate(outputs, e.mem)
}

// rebase shifts the row index of an overflow error from chunk-relative to
// absolute.
func rebase(err error, start int) error {
	var oe *temporal.RowOverflowError
	if !errors.As(err, &oe) {
		return err
	}
	return &temporal.RowOverflowError{Op: oe.Op, Index: oe.Index + start}
}

// sliceOperand returns the [start, end) view of arr, or arr itself when it
// is broadcast. The caller releases the returned array.
func sliceOperand(arr arrow.Array, start, end int) arrow.Array {
	if arr.Len() == 1 {
		arr.Retain()
		return arr
	}
	return array.NewSlice(arr, int64(start), int64(end))
}

// discard releases the outputs of chunks whose results will not be used.
func discard(chunks []chunk) {
	for _, c := range chunks {
		go releaseWhenDone(c.task)
	}
}
