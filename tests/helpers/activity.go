package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ActivityMessage mirrors the messages sent over the activity socket.
type ActivityMessage struct {
	Title     string         `json:"title"`
	Arguments map[string]any `json:"arguments"`
	Id        int            `json:"id"`
	Type      int            `json:"type"`
}

// MessageMatcher reports whether a received activity message is the one
// being waited for.
type MessageMatcher func(ActivityMessage) bool

// ActivityListener reads every message from an activity socket in to a
// buffered channel so tests can wait for specific messages.
type ActivityListener struct {
	messages chan ActivityMessage
}

func (service *TestService) ActivityListener(t *testing.T) *ActivityListener {
	ws := service.ConnectToActivitySocket(t)
	listener := &ActivityListener{messages: make(chan ActivityMessage, 128)}

	go func() {
		defer close(listener.messages)
		for {
			var message ActivityMessage
			// Errors here are expected once the socket is closed during cleanup
			if err := ws.ReadJSON(&message); err != nil {
				return
			}

			listener.messages <- message
		}
	}()

	return listener
}

// AwaitMessage blocks until a message satisfying the matcher arrives,
// failing the test if none does before the timeout. Messages which do not
// match are discarded.
func (listener *ActivityListener) AwaitMessage(t *testing.T, matcher MessageMatcher, timeout time.Duration) ActivityMessage {
	deadline := time.After(timeout)
	for {
		select {
		case message, ok := <-listener.messages:
			require.True(t, ok, "activity socket closed before expected message arrived")
			if matcher(message) {
				return message
			}
		case <-deadline:
			require.FailNow(t, "timed out waiting for activity message")
			return ActivityMessage{}
		}
	}
}

// MatchTitle matches any message with the title provided.
func MatchTitle(title string) MessageMatcher {
	return func(message ActivityMessage) bool { return message.Title == title }
}

// MatchTaskUpdate matches a TASK_UPDATE message for the task provided in
// which the task has the status given.
func MatchTaskUpdate(taskID string, status string) MessageMatcher {
	return func(message ActivityMessage) bool {
		if message.Title != "TASK_UPDATE" {
			return false
		}

		update, ok := message.Arguments["arguments"].(map[string]any)
		if !ok || update["task_id"] != taskID {
			return false
		}

		taskDto, ok := update["task"].(map[string]any)
		return ok && taskDto["status"] == status
	}
}
