// Package parallel provides the bounded worker pool and flow-control
// primitives used by the minhash build phase.
package parallel

import (
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
)

// WorkerPool bounds concurrent shingle/minhash signing work to a fixed
// number of goroutines. The corpus reader is the single producer; this
// pool fans document-signing work out and the caller is responsible for
// collecting results in offset order.
type WorkerPool struct {
	pool       *ants.Pool
	wg         sync.WaitGroup
	isShutdown atomic.Bool

	submitted atomic.Int64
	completed atomic.Int64
	errors    atomic.Int64
}

// WorkerPoolOptions configures the worker pool.
type WorkerPoolOptions struct {
	Size        int
	PreAlloc    bool
	MaxBlocking int
}

// DefaultWorkerPoolOptions returns the default pool sizing: 4 workers,
// matching the spec's default W=4 for the minhash build phase.
func DefaultWorkerPoolOptions() *WorkerPoolOptions {
	return &WorkerPoolOptions{
		Size:        4,
		PreAlloc:    true,
		MaxBlocking: 1000,
	}
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(opts *WorkerPoolOptions) (*WorkerPool, error) {
	if opts == nil {
		opts = DefaultWorkerPoolOptions()
	}

	pool, err := ants.NewPool(
		opts.Size,
		ants.WithPreAlloc(opts.PreAlloc),
		ants.WithMaxBlockingTasks(opts.MaxBlocking),
	)
	if err != nil {
		return nil, err
	}

	return &WorkerPool{
		pool: pool,
	}, nil
}

// Submit adds a task to the worker pool.
func (wp *WorkerPool) Submit(task func()) error {
	if wp.isShutdown.Load() {
		return ants.ErrPoolClosed
	}

	wp.submitted.Add(1)
	wp.wg.Add(1)

	return wp.pool.Submit(func() {
		defer wp.wg.Done()
		defer wp.completed.Add(1)
		task()
	})
}

// SubmitWithError adds a task that can fail; failures only bump the
// error counter and the error itself is not returned to the caller.
func (wp *WorkerPool) SubmitWithError(task func() error) error {
	return wp.Submit(func() {
		if err := task(); err != nil {
			wp.errors.Add(1)
		}
	})
}

// Wait blocks until all submitted tasks complete.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Shutdown gracefully shuts down the worker pool.
func (wp *WorkerPool) Shutdown() {
	wp.isShutdown.Store(true)
	wp.Wait()
	wp.pool.Release()
}

// PoolStats reports current worker pool statistics.
type PoolStats struct {
	Running   int
	Capacity  int
	Submitted int64
	Completed int64
	Errors    int64
}

// Stats returns current worker pool statistics.
func (wp *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Running:   wp.pool.Running(),
		Capacity:  wp.pool.Cap(),
		Submitted: wp.submitted.Load(),
		Completed: wp.completed.Load(),
		Errors:    wp.errors.Load(),
	}
}

// Tune dynamically adjusts the pool size.
func (wp *WorkerPool) Tune(size int) {
	wp.pool.Tune(size)
}
