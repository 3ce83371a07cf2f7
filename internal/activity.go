package internal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hbomb79/Harvest/internal/event"
	"github.com/hbomb79/Harvest/pkg/logger"
)

const (
	DEBOUNCE_DURATION  time.Duration = time.Second * 2
	MAX_TIMER_DURATION time.Duration = time.Second * 5

	RAPID_EVENT_DEBOUNCE_DURATION  time.Duration = time.Millisecond * 500
	RAPID_EVENT_MAX_TIMER_DURATION time.Duration = time.Second * 2
)

type (
	broadcastHandler func(string) error

	broadcaster interface {
		BroadcastTaskUpdate(string) error
		BroadcastTaskProgressUpdate(string) error
		BroadcastTaskEviction(string) error
	}

	eventKey struct {
		ev event.Event
		id string
	}

	// activityService listens for task events on the event bus and
	// forwards them to the broadcaster. Bursts of events for the same task
	// are debounced so that clients are not flooded with updates.
	activityService struct {
		*sync.Mutex
		broadcaster
		eventBus       event.EventHandler
		debounceTimers map[eventKey]*time.Timer
		maxTimers      map[eventKey]*time.Timer
		timings        activityTimings
	}

	activityTimings struct {
		debounce, max           time.Duration
		rapidDebounce, rapidMax time.Duration
	}
)

var defaultActivityTimings = activityTimings{
	debounce:      DEBOUNCE_DURATION,
	max:           MAX_TIMER_DURATION,
	rapidDebounce: RAPID_EVENT_DEBOUNCE_DURATION,
	rapidMax:      RAPID_EVENT_MAX_TIMER_DURATION,
}

func newActivityService(broadcaster broadcaster, eventBus event.EventHandler) *activityService {
	return &activityService{
		Mutex:          &sync.Mutex{},
		broadcaster:    broadcaster,
		eventBus:       eventBus,
		debounceTimers: make(map[eventKey]*time.Timer),
		maxTimers:      make(map[eventKey]*time.Timer),
		timings:        defaultActivityTimings,
	}
}

func (service *activityService) Run(ctx context.Context) error {
	messageChan := make(chan event.HandlerEvent, 100)
	service.eventBus.RegisterHandlerChannel(messageChan,
		event.TASK_UPDATE, event.TASK_PROGRESS, event.TASK_COMPLETE, event.TASK_EVICTED)

	log.Emit(logger.NEW, "Activity service started\n")
	defer service.stopAllTimers()
	for {
		select {
		case ev := <-messageChan:
			if err := service.handleEvent(ev); err != nil {
				log.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev, err)
			}
		case <-ctx.Done():
			log.Emit(logger.STOP, "Activity service closed\n")
			return nil
		}
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) error {
	taskID, ok := ev.Payload.(string)
	if !ok {
		return errors.New("illegal payload (expected task ID)")
	}

	resourceKey := eventKey{id: taskID, ev: ev.Event}

	switch ev.Event {
	case event.TASK_UPDATE, event.TASK_COMPLETE:
		service.scheduleEventBroadcast(resourceKey, service.BroadcastTaskUpdate)
	case event.TASK_PROGRESS:
		service.scheduleRapidEventBroadcast(resourceKey, service.BroadcastTaskProgressUpdate)
	case event.TASK_EVICTED:
		service.cancelPendingBroadcasts(taskID)
		if err := service.BroadcastTaskEviction(taskID); err != nil {
			return err
		}
	default:
		return errors.New("unknown event type")
	}

	return nil
}

func (service *activityService) scheduleEventBroadcast(resourceKey eventKey, handler broadcastHandler) {
	service._scheduleEventBroadcast(resourceKey, handler, service.timings.debounce, service.timings.max)
}

func (service *activityService) scheduleRapidEventBroadcast(resourceKey eventKey, handler broadcastHandler) {
	service._scheduleEventBroadcast(resourceKey, handler, service.timings.rapidDebounce, service.timings.rapidMax)
}

func (service *activityService) _scheduleEventBroadcast(resourceKey eventKey, handler broadcastHandler, debounceTime time.Duration, maxTime time.Duration) {
	service.Lock()
	defer service.Unlock()

	broadcaster := func() { service.broadcast(resourceKey, handler) }

	// Cancel and re-set a debounce timer
	if t, ok := service.debounceTimers[resourceKey]; ok {
		t.Stop()
	}
	service.debounceTimers[resourceKey] = time.AfterFunc(debounceTime, broadcaster)

	// Set a max timer if not already set
	if _, ok := service.maxTimers[resourceKey]; !ok {
		service.maxTimers[resourceKey] = time.AfterFunc(maxTime, broadcaster)
	}
}

func (service *activityService) broadcast(resourceKey eventKey, handler broadcastHandler) {
	service.Lock()
	_, debouncePending := service.debounceTimers[resourceKey]
	_, maxPending := service.maxTimers[resourceKey]
	service.clearTimers(resourceKey)
	service.Unlock()

	// Both timers fire the same broadcast; whichever fires second finds
	// nothing pending and must not broadcast again.
	if !debouncePending && !maxPending {
		return
	}

	if err := handler(resourceKey.id); err != nil {
		log.Emit(logger.WARNING, "Broadcast of %s for task %s failed: %v\n", resourceKey.ev, resourceKey.id, err)
	}
}

// cancelPendingBroadcasts drops any scheduled broadcasts for the task, as
// the task no longer exists to be described.
func (service *activityService) cancelPendingBroadcasts(taskID string) {
	service.Lock()
	defer service.Unlock()

	for _, ev := range []event.Event{event.TASK_UPDATE, event.TASK_COMPLETE, event.TASK_PROGRESS} {
		service.clearTimers(eventKey{ev: ev, id: taskID})
	}
}

func (service *activityService) stopAllTimers() {
	service.Lock()
	defer service.Unlock()

	for key := range service.debounceTimers {
		service.clearTimers(key)
	}
	for key := range service.maxTimers {
		service.clearTimers(key)
	}
}

// clearTimers stops and forgets both timers for the key. The caller
// must hold the lock.
func (service *activityService) clearTimers(resourceKey eventKey) {
	if t, ok := service.debounceTimers[resourceKey]; ok {
		t.Stop()
		delete(service.debounceTimers, resourceKey)
	}

	if t, ok := service.maxTimers[resourceKey]; ok {
		t.Stop()
		delete(service.maxTimers, resourceKey)
	}
}
