package worker

import (
	"sync/atomic"

	"github.com/hbomb79/Harvest/pkg/logger"
)

var workerLogger = logger.Get("Worker")

type (
	WorkerWakeupChan chan int
	WorkerStatus     int32

	// WorkerTaskFn is the unit of work a worker performs each time it
	// is awake. It should return true if work was performed (and the worker
	// should immediately try again), or false if there was nothing to do,
	// in which case the worker will sleep until woken.
	WorkerTaskFn func(Worker) (bool, error)
)

const (
	Sleeping WorkerStatus = iota
	Working
	Finished
)

type Worker interface {
	Start()
	Status() WorkerStatus
	WakeupChan() WorkerWakeupChan
	Label() string
	Sleep() bool
	Close()
}

type taskWorker struct {
	label         string
	task          WorkerTaskFn
	wakeupChan    WorkerWakeupChan
	currentStatus atomic.Int32
}

func NewWorker(label string, task WorkerTaskFn) *taskWorker {
	return &taskWorker{
		label:      label,
		task:       task,
		wakeupChan: make(WorkerWakeupChan, 1),
	}
}

// Start runs the workers task repeatedly until it reports that no work
// was done, at which point the worker sleeps until woken. The worker exits
// once its wakeup channel is closed.
func (worker *taskWorker) Start() {
	workerLogger.Emit(logger.NEW, "Starting worker %s\n", worker.label)
	worker.setStatus(Working)

	for {
		workDone, err := worker.task(worker)
		if err != nil {
			workerLogger.Emit(logger.ERROR, "Worker %s has reported an error(%T): %v\n", worker.label, err, err.Error())
		}

		if workDone {
			continue
		}

		if !worker.Sleep() {
			break
		}
	}

	worker.setStatus(Finished)
	workerLogger.Emit(logger.STOP, "Worker %s has stopped\n", worker.label)
}

func (worker *taskWorker) Status() WorkerStatus {
	return WorkerStatus(worker.currentStatus.Load())
}

func (worker *taskWorker) WakeupChan() WorkerWakeupChan {
	return worker.wakeupChan
}

// Close closes the Worker by closing the WakeChan.
// Note that this does not interupt currently running
// tasks.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

// Label returns the label for this worker
func (worker *taskWorker) Label() string {
	return worker.label
}

// Sleep puts a worker to sleep until it's wakeupChan is
// signalled from another goroutine. Returns a boolean that
// is 'false' if the wakeup channel was closed - indicating
// the worker should quit.
func (worker *taskWorker) Sleep() (isAlive bool) {
	worker.setStatus(Sleeping)

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.setStatus(Working)
	} else {
		workerLogger.Emit(logger.STOP, "Wakeup channel for worker '%v' has been closed - worker is exiting\n", worker.label)
	}

	return isAlive
}

func (worker *taskWorker) setStatus(status WorkerStatus) {
	worker.currentStatus.Store(int32(status))
}
