package translate

import (
	"context"
	"sync"
	"time"
)

// forEachIndex calls fn(ctx, i) for every i in [0, n) on at most workers
// goroutines. Indices are handed out in order, at most one per delay when
// delay > 0. After ctx is done no further index is handed out and the
// running calls finish. The first error returned by fn is returned; the
// remaining indices still run.
func forEachIndex(ctx context.Context, n, workers int, delay time.Duration, fn func(context.Context, int) error) error {
	if n == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	next := make(chan int)
	go func() {
		defer close(next)
		var pace <-chan time.Time
		if delay > 0 {
			t := time.NewTicker(delay)
			defer t.Stop()
			pace = t.C
		}
		for i := 0; i < n; i++ {
			if i > 0 && pace != nil {
				select {
				case <-ctx.Done():
					return
				case <-pace:
				}
			}
			select {
			case <-ctx.Done():
				return
			case next <- i:
			}
		}
	}()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range next {
				if err := fn(ctx, i); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// RunParallel runs fn over tasks on at most maxConcurrent goroutines with the
// same cancellation and error rules as the batch translator.
func RunParallel[T any](ctx context.Context, tasks []T, maxConcurrent int, fn func(context.Context, T) error) error {
	return forEachIndex(ctx, len(tasks), maxConcurrent, 0, func(ctx context.Context, i int) error {
		return fn(ctx, tasks[i])
	})
}
