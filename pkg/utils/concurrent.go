package utils

import (
	"context"
	"os"
	"strconv"
	"sync"
)

// DefaultConcurrency is used when a pool is created without a positive size
// and CONCURRENCY_LIMIT is unset.
const DefaultConcurrency = 2

// ConcurrencyLimit returns the worker count from CONCURRENCY_LIMIT or the default.
func ConcurrencyLimit() int {
	val := os.Getenv("CONCURRENCY_LIMIT")
	if val == "" {
		return DefaultConcurrency
	}
	limit, err := strconv.Atoi(val)
	if err != nil || limit < 1 {
		return DefaultConcurrency
	}
	return limit
}

// Worker represents a worker function that processes one item
type Worker[T any, R any] func(ctx context.Context, item T) (R, error)

// WorkerPool manages a pool of workers processing items concurrently.
//
// Goroutine Lifecycle:
//   - Worker goroutines are created when ProcessItems is called
//   - Workers read from an internal items channel until it is drained
//   - Once the context is cancelled, workers stop picking up new items
//   - ProcessItems blocks until all workers complete via WaitGroup
//   - Panics in workers are recovered and converted to PanicError
//
// Results and errors are written to per-index slots, so the output order
// matches the input order regardless of completion order.
//
// Example:
//
//	pool := NewWorkerPool(4, func(ctx context.Context, item string) (int, error) {
//	    return len(item), nil
//	})
//	results, errs := pool.ProcessItems(ctx, []string{"a", "bb", "ccc"})
type WorkerPool[T any, R any] struct {
	numWorkers int
	worker     Worker[T, R]
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool[T any, R any](numWorkers int, worker Worker[T, R]) *WorkerPool[T, R] {
	if numWorkers <= 0 {
		numWorkers = ConcurrencyLimit()
	}
	return &WorkerPool[T, R]{
		numWorkers: numWorkers,
		worker:     worker,
	}
}

// Size returns the number of workers.
func (wp *WorkerPool[T, R]) Size() int {
	return wp.numWorkers
}

type indexedItem[T any] struct {
	item  T
	index int
}

// ProcessItems processes items using the worker pool.
// Items never started because ctx was cancelled get ctx.Err() as their error.
func (wp *WorkerPool[T, R]) ProcessItems(ctx context.Context, items []T) ([]R, []error) {
	if len(items) == 0 {
		return nil, nil
	}

	itemsChan := make(chan indexedItem[T], len(items))
	for i, item := range items {
		itemsChan <- indexedItem[T]{item: item, index: i}
	}
	close(itemsChan)

	results := make([]R, len(items))
	errs := make([]error, len(items))
	started := make([]bool, len(items))

	workers := wp.numWorkers
	if workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemsChan {
				if ctx.Err() != nil {
					return
				}
				started[item.index] = true
				wp.run(ctx, item, results, errs)
			}
		}()
	}
	wg.Wait()

	for i := range items {
		if !started[i] {
			errs[i] = ctx.Err()
		}
	}
	return results, errs
}

func (wp *WorkerPool[T, R]) run(ctx context.Context, item indexedItem[T], results []R, errs []error) {
	defer RecoverWithCallback(func(err error) {
		errs[item.index] = err
	})
	results[item.index], errs[item.index] = wp.worker(ctx, item.item)
}
