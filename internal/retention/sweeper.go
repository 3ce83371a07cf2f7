// Package retention periodically evicts aged tasks from the registry,
// reclaiming the artifacts they own and pruning the outcome journal.
package retention

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hbomb79/Harvest/internal/event"
	"github.com/hbomb79/Harvest/internal/storage"
	"github.com/hbomb79/Harvest/internal/task"
	"github.com/hbomb79/Harvest/pkg/logger"
)

var log = logger.Get("Retention")

type (
	Config struct {
		CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds" toml:"cleanup_interval_seconds" env:"RETENTION_CLEANUP_INTERVAL_SECONDS" env-default:"3600" validate:"min=1"`
		MaxAgeSeconds          int `yaml:"max_age_seconds" toml:"max_age_seconds" env:"RETENTION_MAX_AGE_SECONDS" env-default:"86400" validate:"min=1"`
	}

	evictor interface {
		EvictOlderThan(maxAge time.Duration) []task.Task
	}

	artifactStore interface {
		Delete(name string) error
	}

	// Pruner removes journal entries which finished before the cutoff.
	Pruner interface {
		Prune(cutoff time.Time) (int64, error)
	}

	// Sweeper evicts tasks older than the configured max age on a fixed
	// interval. Artifacts belonging to evicted tasks are deleted (unless
	// the task is still processing), and an eviction event is dispatched
	// for each task.
	Sweeper struct {
		config   Config
		registry evictor
		storage  artifactStore
		pruner   Pruner
		eventBus event.EventDispatcher
		now      func() time.Time
	}

	// Report summarises a single sweep.
	Report struct {
		Evicted          int
		ArtifactsDeleted int
		JournalPruned    int64
	}
)

func (config Config) interval() time.Duration {
	return time.Duration(config.CleanupIntervalSeconds) * time.Second
}

func (config Config) maxAge() time.Duration {
	return time.Duration(config.MaxAgeSeconds) * time.Second
}

// New creates a Sweeper. The pruner is optional and may be nil when the
// journal is disabled.
func New(config Config, registry evictor, storage artifactStore, pruner Pruner, eventBus event.EventDispatcher) (*Sweeper, error) {
	if config.CleanupIntervalSeconds < 1 || config.MaxAgeSeconds < 1 {
		return nil, fmt.Errorf("retention interval and max age must be positive (got %ds and %ds)", config.CleanupIntervalSeconds, config.MaxAgeSeconds)
	}

	return &Sweeper{
		config:   config,
		registry: registry,
		storage:  storage,
		pruner:   pruner,
		eventBus: eventBus,
		now:      time.Now,
	}, nil
}

// Run sweeps once per cleanup interval until the context is cancelled.
func (sweeper *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweeper.config.interval())
	defer ticker.Stop()

	log.Emit(logger.NEW, "Retention sweeper started (interval %s, max age %s)\n", sweeper.config.interval(), sweeper.config.maxAge())
	for {
		select {
		case <-ticker.C:
			sweeper.Sweep()
		case <-ctx.Done():
			log.Emit(logger.STOP, "Retention sweeper stopped\n")
			return nil
		}
	}
}

// Sweep performs a single eviction pass. Failures to delete individual
// artifacts, or to prune the journal, are logged and do not abort the pass.
func (sweeper *Sweeper) Sweep() Report {
	evicted := sweeper.registry.EvictOlderThan(sweeper.config.maxAge())
	report := Report{Evicted: len(evicted)}

	for _, t := range evicted {
		sweeper.eventBus.Dispatch(event.TASK_EVICTED, t.ID)

		// The executor of an in-flight task reclaims its own artifact once
		// it finds the task gone
		if t.Status == task.Processing {
			continue
		}

		if err := sweeper.storage.Delete(artifactName(t)); err != nil {
			log.Emit(logger.WARNING, "Failed to delete artifact for evicted task %s: %v\n", t.ID, err)
		} else {
			report.ArtifactsDeleted++
		}
	}

	if sweeper.pruner != nil {
		pruned, err := sweeper.pruner.Prune(sweeper.now().Add(-sweeper.config.maxAge()))
		if err != nil {
			log.Emit(logger.ERROR, "Failed to prune journal: %v\n", err)
		}
		report.JournalPruned = pruned
	}

	if report.Evicted > 0 || report.JournalPruned > 0 {
		log.Emit(logger.REMOVE, "Evicted %d tasks (%d artifacts removed, %d journal entries pruned)\n", report.Evicted, report.ArtifactsDeleted, report.JournalPruned)
	}

	return report
}

// artifactName returns the name of the artifact owned by the task. Tasks
// which never completed fall back to the name their output would have had,
// so partial downloads are reclaimed too.
func artifactName(t task.Task) string {
	if t.ResultPath != "" {
		return filepath.Base(t.ResultPath)
	}

	return storage.NameFor(t.ID)
}
