// Package workerpool runs a bounded number of goroutines over a batch of
// jobs and collects their errors, without any allocation beyond the job
// slice itself (callers own their own buffers).
package workerpool

import (
	"context"
	"sync"
)

// Run dispatches n jobs across workers goroutines, calling fn(i) for each
// job index in [0, n). It blocks until every job has run or ctx is
// cancelled, and returns the first non-nil error encountered (others are
// discarded, matching the "stop at the first hard failure" policy used
// throughout the read path). workers <= 0 means unbounded (one goroutine
// per job).
func Run(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 || workers > n {
		workers = n
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	jobs := make(chan int)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
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

feed:
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
