package task

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Harvest/pkg/logger"
)

const idLength = 8

var log = logger.Get("Registry")

type (
	Option func(*Registry)

	// Registry is the process-wide store of acquisition tasks. All
	// operations are safe for concurrent use; callers never hold a lock
	// and only ever receive copies of the stored records.
	Registry struct {
		*sync.RWMutex
		tasks map[string]*Task
		now   func() time.Time
		newID func() string
	}
)

// WithClock replaces the clock used to stamp tasks.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator replaces the function used to generate task IDs.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.newID = gen }
}

func NewRegistry(opts ...Option) *Registry {
	registry := &Registry{
		RWMutex: &sync.RWMutex{},
		tasks:   make(map[string]*Task),
		now:     time.Now,
		newID:   func() string { return uuid.New().String()[:idLength] },
	}

	for _, opt := range opts {
		opt(registry)
	}

	return registry
}

// Create inserts a new Pending task for the URL and platform provided,
// returning a copy of the created record.
func (registry *Registry) Create(url string, platform string, mediaType string) Task {
	registry.Lock()
	defer registry.Unlock()

	id := registry.newID()
	for {
		if _, exists := registry.tasks[id]; !exists {
			break
		}
		id = registry.newID()
	}

	now := registry.now()
	task := &Task{
		ID:        id,
		URL:       url,
		Platform:  platform,
		Status:    Pending,
		Progress:  0,
		MediaType: mediaType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	registry.tasks[id] = task

	log.Emit(logger.NEW, "Created %s for %s\n", task, url)
	return *task
}

// Get returns a copy of the task with the ID provided, if one exists.
func (registry *Registry) Get(id string) (Task, bool) {
	registry.RLock()
	defer registry.RUnlock()

	if task, ok := registry.tasks[id]; ok {
		return *task, true
	}

	return Task{}, false
}

// Update merges the patch in to the task with the ID provided. Fields
// absent from the patch keep their existing value. Progress is clamped,
// and a status that would move the task backwards (or out of a terminal
// state) is discarded while the rest of the patch is still applied.
//
// Returns false if no such task exists, which callers should treat as
// the task having vanished rather than as an error.
func (registry *Registry) Update(id string, patch Patch) (Task, bool) {
	registry.Lock()
	defer registry.Unlock()

	task, ok := registry.tasks[id]
	if !ok {
		return Task{}, false
	}

	if patch.Status != nil {
		if task.Status.CanTransitionTo(*patch.Status) {
			task.Status = *patch.Status
		} else {
			log.Emit(logger.WARNING, "Ignoring illegal status transition %s -> %s for task %s\n", task.Status, *patch.Status, id)
		}
	}
	if patch.Progress != nil {
		task.Progress = ClampProgress(*patch.Progress)
	}
	if patch.ResultURL != nil {
		task.ResultURL = *patch.ResultURL
	}
	if patch.ResultPath != nil {
		task.ResultPath = *patch.ResultPath
	}
	if patch.Error != nil {
		task.Error = *patch.Error
	}
	task.UpdatedAt = registry.now()

	return *task, true
}

// Delete removes the task with the ID provided, returning true if
// a task was removed.
func (registry *Registry) Delete(id string) bool {
	registry.Lock()
	defer registry.Unlock()

	if _, ok := registry.tasks[id]; !ok {
		return false
	}

	delete(registry.tasks, id)
	return true
}

// EvictOlderThan removes every task created more than maxAge ago and
// returns copies of the evicted records so that any artifacts they own
// can be reclaimed.
func (registry *Registry) EvictOlderThan(maxAge time.Duration) []Task {
	registry.Lock()
	defer registry.Unlock()

	threshold := registry.now().Add(-maxAge)
	evicted := make([]Task, 0)
	for id, task := range registry.tasks {
		if task.CreatedAt.Before(threshold) {
			evicted = append(evicted, *task)
			delete(registry.tasks, id)
		}
	}

	return evicted
}

// List returns copies of all tasks, oldest first.
func (registry *Registry) List() []Task {
	registry.RLock()
	defer registry.RUnlock()

	out := make([]Task, 0, len(registry.tasks))
	for _, task := range registry.tasks {
		out = append(out, *task)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len returns the number of tasks currently held.
func (registry *Registry) Len() int {
	registry.RLock()
	defer registry.RUnlock()

	return len(registry.tasks)
}
