package api

import (
	"fmt"

	"github.com/hbomb79/Harvest/internal/api/downloads"
	"github.com/hbomb79/Harvest/internal/http/websocket"
	"github.com/hbomb79/Harvest/internal/task"
)

const (
	TITLE_TASK_UPDATE   = "TASK_UPDATE"
	TITLE_TASK_PROGRESS = "TASK_PROGRESS_UPDATE"
	TITLE_TASK_EVICTED  = "TASK_EVICTED"
)

type (
	TaskUpdate struct {
		TaskID string              `json:"task_id"`
		Task   downloads.StatusDto `json:"task"`
	}

	TaskProgressUpdate struct {
		TaskID   string `json:"task_id"`
		Progress int    `json:"progress"`
	}

	TaskEviction struct {
		TaskID string `json:"task_id"`
	}

	taskSource interface {
		Query(taskID string) (task.Task, bool)
		Tasks() []task.Task
	}

	broadcaster struct {
		socketHub *websocket.SocketHub
		tasks     taskSource
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, tasks taskSource) *broadcaster {
	return &broadcaster{socketHub, tasks}
}

func (hub *broadcaster) BroadcastTaskUpdate(id string) error {
	t, ok := hub.tasks.Query(id)
	if !ok {
		return fmt.Errorf("task %s no longer exists", id)
	}

	hub.broadcast(TITLE_TASK_UPDATE, TaskUpdate{TaskID: id, Task: downloads.NewStatusDto(t)})
	return nil
}

func (hub *broadcaster) BroadcastTaskProgressUpdate(id string) error {
	t, ok := hub.tasks.Query(id)
	if !ok {
		return fmt.Errorf("task %s no longer exists", id)
	}

	hub.broadcast(TITLE_TASK_PROGRESS, TaskProgressUpdate{TaskID: id, Progress: t.Progress})
	return nil
}

func (hub *broadcaster) BroadcastTaskEviction(id string) error {
	hub.broadcast(TITLE_TASK_EVICTED, TaskEviction{TaskID: id})
	return nil
}

// connectionPayload furnishes newly connected clients with the state of
// every task currently held.
func (hub *broadcaster) connectionPayload() map[string]any {
	return map[string]any{"tasks": hub.statusSnapshot()}
}

func (hub *broadcaster) statusSnapshot() []downloads.StatusDto {
	tasks := hub.tasks.Tasks()
	dtos := make([]downloads.StatusDto, 0, len(tasks))
	for _, t := range tasks {
		dtos = append(dtos, downloads.NewStatusDto(t))
	}

	return dtos
}

func (hub *broadcaster) broadcast(title string, update any) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]any{"arguments": update},
		Type:  websocket.Update,
	})
}

// ** Websocket commands ** //

func (hub *broadcaster) wsTaskList(socket *websocket.SocketHub, message *websocket.SocketMessage) error {
	dtos := hub.statusSnapshot()
	socket.Send(message.FormReply("COMMAND_SUCCESS", map[string]any{"payload": dtos}, websocket.Response))
	return nil
}

func (hub *broadcaster) wsTaskGet(socket *websocket.SocketHub, message *websocket.SocketMessage) error {
	if err := message.ValidateArguments(map[string]string{"id": "string"}); err != nil {
		return err
	}

	id := message.Body["id"].(string)
	t, ok := hub.tasks.Query(id)
	if !ok {
		return fmt.Errorf("task %s does not exist", id)
	}

	socket.Send(message.FormReply("COMMAND_SUCCESS", map[string]any{"payload": downloads.NewStatusDto(t)}, websocket.Response))
	return nil
}
