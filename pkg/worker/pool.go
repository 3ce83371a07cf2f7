package worker

import (
	"errors"
	"sync"
)

// WorkerPool holds a fixed set of workers, and a WaitGroup which
// is automatically controlled by the pool as the workers start
// and stop.
type WorkerPool struct {
	mu      sync.Mutex
	workers []Worker
	wg      sync.WaitGroup
	started bool
}

// NewWorkerPool creates a new WorkerPool struct
// and initialises the 'workers' slice.
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{workers: make([]Worker, 0)}
}

// Start cycles through all the workers
// currently inside the WorkerPool and creates
// a goroutine for each.
//
// Start does NOT block, see Close.
func (pool *WorkerPool) Start() error {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	if pool.started {
		return errors.New("cannot start an already started worker pool")
	}

	pool.started = true
	for _, worker := range pool.workers {
		pool.wg.Add(1)
		go func(w Worker) {
			defer pool.wg.Done()
			w.Start()
		}(worker)
	}

	return nil
}

// PushWorker inserts the workers provided in to the worker pool. Workers
// cannot be added to a pool that has already been started.
func (pool *WorkerPool) PushWorker(workers ...Worker) error {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	if pool.started {
		return errors.New("cannot push worker to already started worker pool")
	}

	pool.workers = append(pool.workers, workers...)
	return nil
}

// WakeupWorkers signals every worker in the pool. The wakeup channels
// are buffered, so a worker which is about to sleep will still observe
// the signal and re-check for work.
func (pool *WorkerPool) WakeupWorkers() error {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	if !pool.started {
		return errors.New("cannot wakeup workers on worker pool that is not started")
	}

	for _, w := range pool.workers {
		select {
		case w.WakeupChan() <- 1:
		default:
		}
	}

	return nil
}

// Size returns the number of workers in this pool.
func (pool *WorkerPool) Size() int {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return len(pool.workers)
}

// Close will cycle through all the workers inside this
// worker pool and close their wakeup channels, then waits
// for every worker to exit.
func (pool *WorkerPool) Close() {
	pool.mu.Lock()
	if !pool.started {
		pool.mu.Unlock()
		return
	}

	for _, w := range pool.workers {
		w.Close()
	}
	pool.started = false
	pool.mu.Unlock()

	pool.wg.Wait()
}
