package internal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/Harvest/internal/event"
	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type recordingBroadcaster struct {
	sync.Mutex
	updates   []string
	progress  []string
	evictions []string
}

func (b *recordingBroadcaster) BroadcastTaskUpdate(id string) error {
	b.Lock()
	defer b.Unlock()
	b.updates = append(b.updates, id)
	return nil
}

func (b *recordingBroadcaster) BroadcastTaskProgressUpdate(id string) error {
	b.Lock()
	defer b.Unlock()
	b.progress = append(b.progress, id)
	return nil
}

func (b *recordingBroadcaster) BroadcastTaskEviction(id string) error {
	b.Lock()
	defer b.Unlock()
	b.evictions = append(b.evictions, id)
	return nil
}

func (b *recordingBroadcaster) snapshot() (updates, progress, evictions []string) {
	b.Lock()
	defer b.Unlock()
	return append([]string{}, b.updates...), append([]string{}, b.progress...), append([]string{}, b.evictions...)
}

func startActivityService(t *testing.T, timings activityTimings) (*recordingBroadcaster, event.EventCoordinator) {
	broadcaster := &recordingBroadcaster{}
	eventBus := event.New()
	service := newActivityService(broadcaster, eventBus)
	service.timings = timings

	wg := sync.WaitGroup{}
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer wg.Done()
		assert.Nil(t, service.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	// Run registers its handler channel asynchronously
	time.Sleep(20 * time.Millisecond)
	return broadcaster, eventBus
}

func TestBurstOfUpdatesIsDebounced(t *testing.T) {
	broadcaster, eventBus := startActivityService(t, activityTimings{
		debounce: 50 * time.Millisecond, max: time.Second,
		rapidDebounce: 50 * time.Millisecond, rapidMax: time.Second,
	})

	for range 5 {
		eventBus.Dispatch(event.TASK_UPDATE, "ab12cd34")
	}
	eventBus.Dispatch(event.TASK_UPDATE, "ff00ff00")

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		updates, _, _ := broadcaster.snapshot()
		assert.ElementsMatch(c, []string{"ab12cd34", "ff00ff00"}, updates)
	}, time.Second, 10*time.Millisecond)

	// Nothing further arrives once the max timer would have elapsed
	time.Sleep(100 * time.Millisecond)
	updates, _, _ := broadcaster.snapshot()
	assert.Len(t, updates, 2)
}

func TestMaxTimerBoundsDebounce(t *testing.T) {
	broadcaster, eventBus := startActivityService(t, activityTimings{
		debounce: 80 * time.Millisecond, max: 200 * time.Millisecond,
		rapidDebounce: 80 * time.Millisecond, rapidMax: 200 * time.Millisecond,
	})

	// Progress keeps arriving faster than the debounce, so only the
	// max timer can trigger the broadcast.
	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		eventBus.Dispatch(event.TASK_PROGRESS, "ab12cd34")
		time.Sleep(20 * time.Millisecond)
	}

	_, progress, _ := broadcaster.snapshot()
	assert.NotEmpty(t, progress)
	assert.LessOrEqual(t, len(progress), 3)
}

func TestEvictionBroadcastsImmediatelyAndCancelsPending(t *testing.T) {
	broadcaster, eventBus := startActivityService(t, activityTimings{
		debounce: 100 * time.Millisecond, max: 200 * time.Millisecond,
		rapidDebounce: 100 * time.Millisecond, rapidMax: 200 * time.Millisecond,
	})

	eventBus.Dispatch(event.TASK_COMPLETE, "ab12cd34")
	eventBus.Dispatch(event.TASK_EVICTED, "ab12cd34")

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		_, _, evictions := broadcaster.snapshot()
		assert.Equal(c, []string{"ab12cd34"}, evictions)
	}, time.Second, 10*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	updates, _, _ := broadcaster.snapshot()
	assert.Empty(t, updates)
}
