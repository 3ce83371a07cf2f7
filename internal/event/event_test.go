package event_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/hbomb79/Harvest/internal/event"
	"github.com/stretchr/testify/assert"
)

func TestDispatch_DeliversToFunctionsAndChannels(t *testing.T) {
	t.Parallel()
	bus := event.New()

	var syncCalls atomic.Int32
	bus.RegisterHandlerFunction(event.TASK_UPDATE, func(ev event.Event, payload event.Payload) {
		assert.Equal(t, event.TASK_UPDATE, ev)
		assert.Equal(t, "abcd1234", payload)
		syncCalls.Add(1)
	})

	asyncDone := make(chan struct{}, 1)
	bus.RegisterAsyncHandlerFunction(event.TASK_UPDATE, func(event.Event, event.Payload) { asyncDone <- struct{}{} })

	ch := make(event.HandlerChannel, 2)
	bus.RegisterHandlerChannel(ch, event.TASK_UPDATE, event.TASK_COMPLETE)

	bus.Dispatch(event.TASK_UPDATE, "abcd1234")
	bus.Dispatch(event.TASK_COMPLETE, "abcd1234")

	assert.Equal(t, int32(1), syncCalls.Load())
	assert.Equal(t, event.HandlerEvent{Event: event.TASK_UPDATE, Payload: "abcd1234"}, <-ch)
	assert.Equal(t, event.HandlerEvent{Event: event.TASK_COMPLETE, Payload: "abcd1234"}, <-ch)

	select {
	case <-asyncDone:
	case <-time.After(time.Second):
		t.Fatal("async handler was never called")
	}
}

func TestDispatch_InvalidPayloadIsDropped(t *testing.T) {
	t.Parallel()
	bus := event.New()

	ch := make(event.HandlerChannel, 3)
	bus.RegisterHandlerChannel(ch, event.TASK_PROGRESS, event.Event("unknown"))

	bus.Dispatch(event.TASK_PROGRESS, 42)
	bus.Dispatch(event.TASK_PROGRESS, "")
	bus.Dispatch(event.Event("unknown"), "abcd1234")

	assert.Len(t, ch, 0)
}
