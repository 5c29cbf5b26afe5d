package executor

import (
	"fmt"
	"runtime"
	"sync"
)

// WorkerPool provides generic parallel execution with a worker pool.
// This is intentionally generic so it can be reused for:
// - Parallel query execution per drain
// - Parallel derivative evaluation (future)
// - Any embarrassingly parallel operation
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool creates a new worker pool.
// workerCount: number of worker goroutines (0 = use NumCPU)
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &WorkerPool{
		workerCount: workerCount,
	}
}

// ExecuteParallel executes operation on all inputs using the pool.
// Results are returned in the same order as inputs (order-preserving).
func (p *WorkerPool) ExecuteParallel(
	inputs []interface{},
	operation func(interface{}) (interface{}, error),
) ([]interface{}, error) {
	if len(inputs) == 0 {
		return []interface{}{}, nil
	}

	results := make([]interface{}, len(inputs))
	errors := make([]error, len(inputs))

	jobs := make(chan int, len(inputs))

	var wg sync.WaitGroup
	for w := 0; w < p.workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				result, err := operation(inputs[idx])
				results[idx] = result
				errors[idx] = err
			}
		}()
	}

	for i := range inputs {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	for i, err := range errors {
		if err != nil {
			return nil, fmt.Errorf("parallel execution failed at index %d: %w", i, err)
		}
	}

	return results, nil
}

// GetWorkerCount returns the number of worker goroutines
func (p *WorkerPool) GetWorkerCount() int {
	return p.workerCount
}
