package utils

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_ProcessItems(t *testing.T) {
	t.Run("results keep input order", func(t *testing.T) {
		pool := NewWorkerPool(3, func(ctx context.Context, item string) (int, error) {
			time.Sleep(time.Duration(5-len(item)) * time.Millisecond)
			return len(item), nil
		})
		results, errs := pool.ProcessItems(context.Background(), []string{"a", "bb", "ccc", "dddd"})
		assert.Equal(t, []int{1, 2, 3, 4}, results)
		for _, err := range errs {
			assert.NoError(t, err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		pool := NewWorkerPool(2, func(ctx context.Context, item int) (int, error) { return item, nil })
		results, errs := pool.ProcessItems(context.Background(), nil)
		assert.Nil(t, results)
		assert.Nil(t, errs)
	})

	t.Run("bounded concurrency", func(t *testing.T) {
		var inFlight, peak atomic.Int32
		pool := NewWorkerPool(2, func(ctx context.Context, item int) (int, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return item, nil
		})
		_, _ = pool.ProcessItems(context.Background(), make([]int, 10))
		assert.LessOrEqual(t, peak.Load(), int32(2))
		assert.Equal(t, 2, pool.Size())
	})

	t.Run("errors and panics land in their slot", func(t *testing.T) {
		pool := NewWorkerPool(2, func(ctx context.Context, item int) (int, error) {
			switch item {
			case 1:
				return 0, errors.New("bad item")
			case 2:
				panic("worker blew up")
			}
			return item * 10, nil
		})
		results, errs := pool.ProcessItems(context.Background(), []int{0, 1, 2, 3})
		require.Len(t, errs, 4)
		assert.NoError(t, errs[0])
		assert.EqualError(t, errs[1], "bad item")
		var panicErr *PanicError
		assert.ErrorAs(t, errs[2], &panicErr)
		assert.NoError(t, errs[3])
		assert.Equal(t, 30, results[3])
	})

	t.Run("cancelled items report ctx error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		pool := NewWorkerPool(1, func(ctx context.Context, item int) (int, error) {
			if item == 0 {
				cancel()
			}
			return item, nil
		})
		_, errs := pool.ProcessItems(ctx, []int{0, 1, 2})
		assert.NoError(t, errs[0])
		assert.ErrorIs(t, errs[1], context.Canceled)
		assert.ErrorIs(t, errs[2], context.Canceled)
	})
}

func TestConcurrencyLimit(t *testing.T) {
	t.Setenv("CONCURRENCY_LIMIT", "")
	assert.Equal(t, DefaultConcurrency, ConcurrencyLimit())
	t.Setenv("CONCURRENCY_LIMIT", "8")
	assert.Equal(t, 8, ConcurrencyLimit())
	t.Setenv("CONCURRENCY_LIMIT", "zero")
	assert.Equal(t, DefaultConcurrency, ConcurrencyLimit())

	pool := NewWorkerPool(0, func(ctx context.Context, i int) (int, error) { return i, nil })
	assert.Equal(t, DefaultConcurrency, pool.Size())
}
