package helpers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const (
	ServerBasePathTemplate = "%s://127.0.0.1:%d/"
	ActivityPath           = "api/activity/ws"
)

// TestService holds information about a spawned Harvest
// service which a test can request resources from (typically
// test clients for making requests).
type TestService struct {
	Port        int
	StoragePath string
}

func (service *TestService) GetServerBasePath() string {
	return fmt.Sprintf(ServerBasePathTemplate, "http", service.Port)
}

func (service *TestService) GetActivityURL() string {
	return fmt.Sprintf(ServerBasePathTemplate, "ws", service.Port) + ActivityPath
}

// ConnectToActivitySocket dials the activity socket. The socket hub starts
// alongside the HTTP listener, so early dials are retried briefly.
func (service *TestService) ConnectToActivitySocket(t *testing.T) *websocket.Conn {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	var (
		ws   *websocket.Conn
		resp *http.Response
		err  error
	)
	for range 20 {
		if ws, resp, err = dialer.Dial(service.GetActivityURL(), nil); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to connect to activity socket: %s", err)
	}

	t.Logf("Connected: %v [%v]", ws.RemoteAddr(), resp.Status)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (service *TestService) String() string {
	return fmt.Sprintf("TestService{port=%d storage=%s}", service.Port, service.StoragePath)
}

func (service *TestService) NewClient() *APIClient {
	return &APIClient{
		baseURL: service.GetServerBasePath(),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// waitForHealthy will ping the service (every pollFrequency) until the timeout is reached.
// If no successful request has been made when the timeout is reached, then the most
// recent error is returned to the caller, indicating that the service failed to become
// healthy (i.e. the service is not accepting HTTP connections).
func (service *TestService) waitForHealthy(pollFrequency time.Duration, timeout time.Duration) error {
	client := service.NewClient()
	attempts := timeout.Milliseconds() / pollFrequency.Milliseconds()

	var lastErr error
	for range attempts {
		resp, err := client.http.Get(client.baseURL + "health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			err = fmt.Errorf("health check returned %s", resp.Status)
		}

		lastErr = err
		time.Sleep(pollFrequency)
	}

	return lastErr
}
