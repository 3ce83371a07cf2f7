package helpers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/Harvest/internal/acquisition"
	"github.com/hbomb79/Harvest/internal/api/downloads"
	"github.com/hbomb79/Harvest/internal/journal"
	"github.com/hbomb79/Harvest/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// APIClient is a thin JSON client for the Harvest HTTP API.
type APIClient struct {
	baseURL string
	http    *http.Client
}

// Response is a completed request, with the body already read.
type Response struct {
	HTTPResponse *http.Response
	Body         []byte
}

func (r Response) StatusCode() int { return r.HTTPResponse.StatusCode }

// Decode unmarshals the body in to a new T, failing the test if that
// is not possible.
func Decode[T any](t *testing.T, r Response) T {
	var out T
	require.NoError(t, json.Unmarshal(r.Body, &out), "failed to decode response body %q", string(r.Body))
	return out
}

func (client *APIClient) Do(t *testing.T, method string, path string, body any) Response {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, client.baseURL+strings.TrimPrefix(path, "/"), reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.http.Do(req)
	require.NoError(t, err, "%s %s failed", method, path)
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return Response{HTTPResponse: resp, Body: bodyBytes}
}

// SubmitDownload submits the URL for download, asserting it was accepted,
// and returns the ID of the new task.
func (client *APIClient) SubmitDownload(t *testing.T, rawURL string, platform string) string {
	resp := client.Do(t, http.MethodPost, "/api/download", downloads.DownloadRequest{URL: rawURL, Platform: platform})
	require.Equal(t, http.StatusOK, resp.StatusCode(), "failed to submit %s: %s", rawURL, string(resp.Body))

	taskID := Decode[downloads.DownloadResponse](t, resp).TaskID
	require.NotEmpty(t, taskID, "submission of %s returned no task ID", rawURL)
	return taskID
}

func (client *APIClient) Status(t *testing.T, taskID string) (downloads.StatusDto, Response) {
	resp := client.Do(t, http.MethodGet, "/api/status/"+url.PathEscape(taskID), nil)
	if resp.StatusCode() != http.StatusOK {
		return downloads.StatusDto{}, resp
	}

	return Decode[downloads.StatusDto](t, resp), resp
}

// WaitForTerminalStatus polls the status of the task until it is either
// completed or failed, failing the test if that does not happen before
// the timeout.
func (client *APIClient) WaitForTerminalStatus(t *testing.T, taskID string, timeout time.Duration) downloads.StatusDto {
	var (
		last downloads.StatusDto
		mu   sync.Mutex
	)
	reached := assert.Eventually(t, func() bool {
		status, err := client.pollStatus(taskID)
		if err != nil {
			return false
		}

		mu.Lock()
		defer mu.Unlock()
		last = status
		return task.Status(status.Status).IsTerminal()
	}, timeout, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, reached, "task %s did not reach a terminal status (last seen %+v)", taskID, last)
	return last
}

// pollStatus is safe to call from outside the test goroutine.
func (client *APIClient) pollStatus(taskID string) (downloads.StatusDto, error) {
	resp, err := client.http.Get(client.baseURL + "api/status/" + url.PathEscape(taskID))
	if err != nil {
		return downloads.StatusDto{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return downloads.StatusDto{}, fmt.Errorf("status request returned %s", resp.Status)
	}

	var status downloads.StatusDto
	return status, json.NewDecoder(resp.Body).Decode(&status)
}

func (client *APIClient) Parse(t *testing.T, rawURL string, platform string) acquisition.EnumerateResult {
	resp := client.Do(t, http.MethodPost, "/api/parse", downloads.ParseRequest{URL: rawURL, Platform: platform})
	require.Equal(t, http.StatusOK, resp.StatusCode(), "failed to parse %s: %s", rawURL, string(resp.Body))

	return Decode[acquisition.EnumerateResult](t, resp)
}

// DownloadArtifact fetches the file at the download URL reported by a
// completed task.
func (client *APIClient) DownloadArtifact(t *testing.T, status downloads.StatusDto) []byte {
	require.NotNil(t, status.DownloadURL, "task %s has no download URL", status.TaskID)

	resp := client.Do(t, http.MethodGet, *status.DownloadURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode(), "failed to fetch artifact for %s", status.TaskID)
	assert.Contains(t, resp.HTTPResponse.Header.Get("Content-Disposition"), "attachment")

	return resp.Body
}

func (client *APIClient) ListHistory(t *testing.T, query url.Values) []journal.Entry {
	entries, err := client.TryListHistory(query)
	require.NoError(t, err, "failed to list history")

	return entries
}

// TryListHistory is safe to call from outside the test goroutine.
func (client *APIClient) TryListHistory(query url.Values) ([]journal.Entry, error) {
	path := client.baseURL + "api/history"
	if len(query) > 0 {
		path = fmt.Sprintf("%s?%s", path, query.Encode())
	}

	resp, err := client.http.Get(path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request returned %s", resp.Status)
	}

	var entries []journal.Entry
	return entries, json.NewDecoder(resp.Body).Decode(&entries)
}
