package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/hbomb79/Harvest/internal/acquisition"
	"github.com/hbomb79/Harvest/internal/api"
	"github.com/hbomb79/Harvest/internal/api/history"
	"github.com/hbomb79/Harvest/internal/database"
	"github.com/hbomb79/Harvest/internal/event"
	"github.com/hbomb79/Harvest/internal/http/fetch"
	"github.com/hbomb79/Harvest/internal/journal"
	"github.com/hbomb79/Harvest/internal/platform"
	"github.com/hbomb79/Harvest/internal/retention"
	"github.com/hbomb79/Harvest/internal/storage"
	"github.com/hbomb79/Harvest/internal/task"
	"github.com/hbomb79/Harvest/internal/toolrun"
	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	RestGateway interface {
		RunnableService
		BroadcastTaskUpdate(string) error
		BroadcastTaskProgressUpdate(string) error
		BroadcastTaskEviction(string) error
	}

	DatabaseServer interface {
		Connect(context.Context, database.Config) error
		Close() error
	}
)

// harvestImpl is the top-level object for the server, and is responsible
// for constructing the services, stores and event handling, and for
// running them until shutdown.
type harvestImpl struct {
	config   HarvestConfig
	eventBus event.EventCoordinator
	metrics  *prometheus.Registry
	db       DatabaseServer

	registry        *task.Registry
	storage         *storage.Local
	journal         *journal.Journal
	activityService *activityService

	acquisitionService *acquisition.Service
	sweeper            *retention.Sweeper
	restGateway        RestGateway
}

// NewDispatcher constructs the platform dispatcher backed by the real tool
// runner and HTTP client.
func NewDispatcher(config acquisition.Config, opts ...platform.DispatcherOption) *platform.Dispatcher {
	return platform.NewDispatcher(config.PlatformConfig(), toolrun.New(), fetch.New(), opts...)
}

func New(config HarvestConfig) (*harvestImpl, error) {
	logger.SetMinLoggingLevel(logger.ParseLevel(config.LogLevel).Level())
	log.Emit(logger.DEBUG, "Bootstrapping Harvest services using config: %#v\n", config)

	harvest := &harvestImpl{
		config:   config,
		eventBus: event.New(),
		metrics:  prometheus.NewRegistry(),
		registry: task.NewRegistry(),
	}
	harvest.metrics.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	store, err := storage.New(config.StorageConfig)
	if err != nil {
		return nil, err
	}
	harvest.storage = store

	// The journal is optional; each consumer receives a nil interface
	// when it is disabled.
	var (
		recorder     acquisition.Recorder
		pruner       retention.Pruner
		historyStore history.Store
	)
	if !config.DatabaseConfig.Disabled {
		db := database.New()
		harvest.db = db
		harvest.journal = journal.New(db)
		recorder, pruner, historyStore = harvest.journal, harvest.journal, harvest.journal
	} else {
		log.Emit(logger.WARNING, "Journal is disabled, task outcomes will not be persisted\n")
	}

	metrics := acquisition.NewMetrics(harvest.metrics)
	dispatcher := NewDispatcher(config.AcquisitionConfig, platform.WithStrategyFailureHook(metrics.StrategyFailureHook()))

	if serv, err := acquisition.New(config.AcquisitionConfig, harvest.registry, dispatcher, store, harvest.eventBus, metrics, recorder); err == nil {
		harvest.acquisitionService = serv
	} else {
		return nil, fmt.Errorf("failed to construct acquisition service: %w", err)
	}

	if sweeper, err := retention.New(config.RetentionConfig, harvest.registry, store, pruner, harvest.eventBus); err == nil {
		harvest.sweeper = sweeper
	} else {
		return nil, fmt.Errorf("failed to construct retention sweeper: %w", err)
	}

	harvest.restGateway = api.NewRestGateway(&config.RestConfig, harvest.acquisitionService, store, historyStore, harvest.metrics)
	harvest.activityService = newActivityService(harvest.restGateway, harvest.eventBus)

	return harvest, nil
}

// Run will start all of Harvest by connecting to the journal database (if
// enabled) and spawning every service.
//
// This function will not return until Harvest is stopped.
// To stop Harvest, the provided context must be cancelled. Errors from which Harvest cannot recover
// will also cause Harvest to stop.
func (harvest *harvestImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	if harvest.db != nil {
		log.Emit(logger.NEW, "Connecting to journal database (%s)...\n", harvest.config.DatabaseConfig.Driver)
		if err := harvest.db.Connect(ctx, harvest.config.DatabaseConfig); err != nil {
			return fmt.Errorf("failed to connect to journal database: %w", err)
		}
		defer harvest.db.Close()
	}

	wg := &sync.WaitGroup{}
	harvest.spawnAsyncService(ctx, wg, harvest.acquisitionService, "acquisition-service", crashHandler)
	harvest.spawnAsyncService(ctx, wg, harvest.sweeper, "retention-sweeper", crashHandler)
	harvest.spawnAsyncService(ctx, wg, harvest.activityService, "activity-service", crashHandler)
	harvest.spawnAsyncService(ctx, wg, harvest.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Harvest services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the Harvest service waitgroup is updated correctly
func (harvest *harvestImpl) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
