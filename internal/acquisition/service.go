// Package acquisition drives submitted tasks through the extractor for
// their platform, recording progress and the terminal outcome of each task
// in the registry as it goes.
package acquisition

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hbomb79/Harvest/internal/event"
	"github.com/hbomb79/Harvest/internal/platform"
	"github.com/hbomb79/Harvest/internal/storage"
	"github.com/hbomb79/Harvest/internal/task"
	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/hbomb79/Harvest/pkg/worker"
)

var log = logger.Get("Acquisition")

type (
	Config struct {
		MaxConcurrentTasks int    `yaml:"max_concurrent_tasks" toml:"max_concurrent_tasks" env:"ACQUISITION_MAX_CONCURRENT_TASKS" env-default:"5" validate:"min=1,max=64"`
		TaskTimeoutSeconds int    `yaml:"task_timeout_seconds" toml:"task_timeout_seconds" env:"ACQUISITION_TASK_TIMEOUT_SECONDS" env-default:"300" validate:"min=1"`
		YtdlpPath          string `yaml:"ytdlp_path" toml:"ytdlp_path" env:"ACQUISITION_YTDLP_PATH" env-default:"yt-dlp" validate:"required"`
		ChromePath         string `yaml:"chrome_path" toml:"chrome_path" env:"ACQUISITION_CHROME_PATH" env-default:"chromium" validate:"required"`
	}

	Resolver interface {
		Resolve(rawURL string, hint string) (platform.Extractor, error)
		Extractor(platform.Platform) (platform.Extractor, bool)
	}

	Storage interface {
		PathFor(name string) string
		PublicURLFor(name string) string
		Delete(name string) error
	}

	// Recorder persists the terminal outcome of a task.
	Recorder interface {
		RecordOutcome(task.Task) error
	}

	EnumerateResult struct {
		Success bool                 `json:"success"`
		Items   []platform.MediaItem `json:"items"`
		Error   string               `json:"error,omitempty"`
	}

	// Service accepts acquisition requests and processes them using a
	// fixed size pool of workers. Tasks wait (as Pending) in a FIFO queue
	// until a worker is free to claim them.
	Service struct {
		config   Config
		registry *task.Registry
		resolver Resolver
		storage  Storage
		eventBus event.EventDispatcher
		metrics  *Metrics
		recorder Recorder

		queueMu sync.Mutex
		queue   []string
		pool    *worker.WorkerPool
	}
)

// PlatformConfig converts the acquisition configuration in to the
// configuration used by the platform extractors.
func (config Config) PlatformConfig() platform.Config {
	cfg := platform.DefaultConfig()
	cfg.YtdlpPath = config.YtdlpPath
	cfg.ChromePath = config.ChromePath
	return cfg
}

func (config Config) taskTimeout() time.Duration {
	return time.Duration(config.TaskTimeoutSeconds) * time.Second
}

// New constructs the acquisition service. The recorder is optional, and
// may be nil if outcomes should not be persisted.
func New(config Config, registry *task.Registry, resolver Resolver, storage Storage, eventBus event.EventDispatcher, metrics *Metrics, recorder Recorder) (*Service, error) {
	if config.MaxConcurrentTasks < 1 {
		return nil, fmt.Errorf("max concurrent tasks must be at least 1 (got %d)", config.MaxConcurrentTasks)
	}
	if config.TaskTimeoutSeconds < 1 {
		return nil, fmt.Errorf("task timeout must be at least 1 second (got %d)", config.TaskTimeoutSeconds)
	}

	return &Service{
		config:   config,
		registry: registry,
		resolver: resolver,
		storage:  storage,
		eventBus: eventBus,
		metrics:  metrics,
		recorder: recorder,
		queue:    make([]string, 0),
	}, nil
}

// Run starts the worker pool and blocks until the context is cancelled.
// Tasks submitted before Run is called are processed once the pool starts.
func (service *Service) Run(ctx context.Context) error {
	pool := worker.NewWorkerPool()
	for i := range service.config.MaxConcurrentTasks {
		label := fmt.Sprintf("acquisition-worker-%d", i)
		if err := pool.PushWorker(worker.NewWorker(label, service.claimAndExecute(ctx))); err != nil {
			return err
		}
	}

	if err := pool.Start(); err != nil {
		return err
	}

	service.queueMu.Lock()
	service.pool = pool
	service.queueMu.Unlock()

	log.Emit(logger.NEW, "Acquisition service started with %d workers\n", pool.Size())
	<-ctx.Done()

	service.queueMu.Lock()
	service.pool = nil
	pending := len(service.queue)
	service.queueMu.Unlock()

	pool.Close()
	log.Emit(logger.STOP, "Acquisition service closed (%d tasks left pending)\n", pending)
	return nil
}

// Submit validates the URL, creates a Pending task and queues it for
// processing. The ID of the new task is returned immediately.
func (service *Service) Submit(rawURL string, platformHint string, mediaType string) (string, error) {
	extractor, err := service.resolver.Resolve(rawURL, platformHint)
	if err != nil {
		return "", err
	}

	created := service.registry.Create(rawURL, string(extractor.Platform()), mediaType)
	log.Emit(logger.NEW, "Created task %s for %s (%s)\n", created.ID, rawURL, extractor.Platform())
	service.eventBus.Dispatch(event.TASK_UPDATE, created.ID)

	service.queueMu.Lock()
	service.queue = append(service.queue, created.ID)
	pool := service.pool
	service.queueMu.Unlock()

	if pool != nil {
		if err := pool.WakeupWorkers(); err != nil {
			log.Emit(logger.WARNING, "Failed to wake acquisition workers for task %s: %v\n", created.ID, err)
		}
	}

	return created.ID, nil
}

// Query returns the current state of the task with the ID provided. The
// boolean is false if no such task exists (or it has been evicted).
func (service *Service) Query(taskID string) (task.Task, bool) {
	return service.registry.Get(taskID)
}

// Tasks returns every task currently held in the registry.
func (service *Service) Tasks() []task.Task {
	return service.registry.List()
}

// QueueLength returns the number of tasks waiting for a worker.
func (service *Service) QueueLength() int {
	service.queueMu.Lock()
	defer service.queueMu.Unlock()
	return len(service.queue)
}

// Enumerate lists the media contained in the post at the URL provided.
// Failures are reported inside of the result rather than as an error.
func (service *Service) Enumerate(ctx context.Context, rawURL string, platformHint string) EnumerateResult {
	extractor, err := service.resolver.Resolve(rawURL, platformHint)
	if err != nil {
		return EnumerateResult{Items: []platform.MediaItem{}, Error: platform.UserMessage(err)}
	}

	ctx, cancel := context.WithTimeout(ctx, service.config.taskTimeout())
	defer cancel()

	items, err := extractor.EnumerateMedia(ctx, rawURL)
	if err != nil {
		log.Emit(logger.WARNING, "Enumeration of %s failed: %v\n", rawURL, err)
		return EnumerateResult{Items: []platform.MediaItem{}, Error: platform.UserMessage(err)}
	}

	return EnumerateResult{Success: true, Items: items}
}

func (service *Service) claimAndExecute(ctx context.Context) worker.WorkerTaskFn {
	return func(w worker.Worker) (bool, error) {
		if ctx.Err() != nil {
			return false, nil
		}

		taskID, ok := service.dequeue()
		if !ok {
			return false, nil
		}

		log.Emit(logger.DEBUG, "Worker %s claimed task %s\n", w.Label(), taskID)
		service.execute(ctx, taskID)
		return true, nil
	}
}

func (service *Service) dequeue() (string, bool) {
	service.queueMu.Lock()
	defer service.queueMu.Unlock()
	if len(service.queue) == 0 {
		return "", false
	}

	taskID := service.queue[0]
	service.queue = service.queue[1:]
	return taskID, true
}

// execute drives a single task from Pending to a terminal status. Panics
// raised while processing are recovered and fail the task.
func (service *Service) execute(ctx context.Context, taskID string) {
	current, ok := service.registry.Get(taskID)
	if !ok {
		log.Emit(logger.WARNING, "Task %s was evicted before processing began, skipping\n", taskID)
		return
	}

	started := time.Now()
	service.metrics.inFlight.Inc()
	defer service.metrics.inFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			log.Emit(logger.ERROR, "Task %s panicked: %v\n", taskID, r)
			service.fail(taskID, started, platform.KindUnexpectedFault, fmt.Sprintf("processing error: %v", r))
		}
	}()

	service.update(taskID, task.Patch{}.WithStatus(task.Processing), event.TASK_UPDATE)

	extractor, ok := service.resolver.Extractor(platform.Platform(current.Platform))
	if !ok {
		service.fail(taskID, started, platform.KindUnsupportedPlatform, "unsupported platform")
		return
	}

	name := storage.NameFor(taskID)
	sink := platform.ProgressFunc(func(percent int) {
		service.update(taskID, task.Patch{}.WithProgress(percent), event.TASK_PROGRESS)
	})

	taskCtx, cancel := context.WithTimeout(ctx, service.config.taskTimeout())
	defer cancel()

	path, err := extractor.Acquire(taskCtx, current.URL, service.storage.PathFor(name), sink)
	if err != nil {
		log.Emit(logger.WARNING, "Task %s failed (%s): %v\n", taskID, platform.KindOf(err), err)
		service.fail(taskID, started, platform.KindOf(err), platform.UserMessage(err))
		return
	}

	resultName := filepath.Base(path)
	concluded := service.finish(taskID, started, task.Patch{}.
		WithStatus(task.Completed).
		WithProgress(100).
		WithResultURL(service.storage.PublicURLFor(resultName)).
		WithResultPath(path))
	if concluded {
		return
	}

	// Evicted while in flight; nothing else owns the artifact now
	if _, exists := service.registry.Get(taskID); !exists {
		log.Emit(logger.WARNING, "Task %s was evicted during processing, removing artifact %s\n", taskID, resultName)
		if err := service.storage.Delete(resultName); err != nil {
			log.Emit(logger.ERROR, "Failed to remove artifact of evicted task %s: %v\n", taskID, err)
		}
	}
}

func (service *Service) fail(taskID string, started time.Time, kind platform.ErrorKind, message string) {
	if message == "" {
		message = "download failed"
	}

	log.Emit(logger.ERROR, "Task %s failed [%s]: %s\n", taskID, kind, message)
	service.finish(taskID, started, task.Patch{}.WithStatus(task.Failed).WithError(message))
}

// finish applies the terminal patch and publishes the outcome. If the task
// has already reached a terminal status the whole patch is discarded, so
// a late failure can not attach an error to a completed task.
func (service *Service) finish(taskID string, started time.Time, patch task.Patch) bool {
	if current, ok := service.registry.Get(taskID); !ok || current.Status.IsTerminal() {
		log.Emit(logger.DEBUG, "Task %s already concluded, discarding terminal patch\n", taskID)
		return false
	}

	updated, ok := service.update(taskID, patch, event.TASK_COMPLETE)
	if !ok || updated.Status != *patch.Status {
		return false
	}

	log.Emit(logger.SUCCESS, "Task %s finished with status %s\n", taskID, updated.Status)
	service.metrics.observeTerminal(updated, time.Since(started).Seconds())
	if service.recorder != nil {
		if err := service.recorder.RecordOutcome(updated); err != nil {
			log.Emit(logger.ERROR, "Failed to record outcome of task %s in journal: %v\n", taskID, err)
		}
	}

	return true
}

func (service *Service) update(taskID string, patch task.Patch, ev event.Event) (task.Task, bool) {
	updated, ok := service.registry.Update(taskID, patch)
	if ok {
		service.eventBus.Dispatch(ev, taskID)
	}

	return updated, ok
}
